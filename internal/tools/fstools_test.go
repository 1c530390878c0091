package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/localcoworker/engine/internal/pathgate"
)

func newWorkspaceCtx(t *testing.T) (string, context.Context) {
	t.Helper()
	workspace := t.TempDir()
	gate := pathgate.New([]string{workspace}, []string{workspace})
	ctx := WithGate(context.Background(), gate)
	return workspace, ctx
}

func TestWriteThenReadTool(t *testing.T) {
	workspace, ctx := newWorkspaceCtx(t)

	writeTool := NewWriteTool(workspace)
	result := writeTool.Execute(ctx, map[string]interface{}{
		"filePath": "notes/todo.txt",
		"content":  "line one\nline two\nline three\n",
	})
	if result.IsError {
		t.Fatalf("write failed: %+v", result)
	}

	readTool := NewReadTool(workspace)
	result = readTool.Execute(ctx, map[string]interface{}{"filePath": "notes/todo.txt"})
	if result.IsError {
		t.Fatalf("read failed: %+v", result)
	}
	want := "1\tline one\n2\tline two\n3\tline three"
	if result.ForLLM != want {
		t.Fatalf("read content = %q, want %q", result.ForLLM, want)
	}
}

func TestReadTool_EmptyFile(t *testing.T) {
	workspace, ctx := newWorkspaceCtx(t)
	path := filepath.Join(workspace, "empty.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	readTool := NewReadTool(workspace)
	result := readTool.Execute(ctx, map[string]interface{}{"filePath": "empty.txt"})
	if result.IsError || result.ForLLM != "1\t" {
		t.Fatalf("expected empty-file sentinel, got %+v", result)
	}
}

func TestWriteTool_DeniedOutsideWorkspace(t *testing.T) {
	workspace, ctx := newWorkspaceCtx(t)
	outside := t.TempDir()

	writeTool := NewWriteTool(workspace)
	result := writeTool.Execute(ctx, map[string]interface{}{
		"filePath": filepath.Join(outside, "escape.txt"),
		"content":  "nope",
	})
	if !result.IsError || result.Kind != ErrPolicyDenied {
		t.Fatalf("expected PolicyDenied, got %+v", result)
	}
}

func TestEditTool_RequiresUniqueMatchUnlessReplaceAll(t *testing.T) {
	workspace, ctx := newWorkspaceCtx(t)
	path := filepath.Join(workspace, "dup.txt")
	if err := os.WriteFile(path, []byte("foo foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}

	editTool := NewEditTool(workspace)
	result := editTool.Execute(ctx, map[string]interface{}{
		"filePath":  "dup.txt",
		"oldString": "foo",
		"newString": "bar",
	})
	if !result.IsError || result.Kind != ErrValidation {
		t.Fatalf("expected ValidationError for ambiguous match, got %+v", result)
	}

	result = editTool.Execute(ctx, map[string]interface{}{
		"filePath":    "dup.txt",
		"oldString":   "foo",
		"newString":   "bar",
		"replaceAll":  true,
	})
	if result.IsError {
		t.Fatalf("expected replaceAll edit to succeed, got %+v", result)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "bar bar bar" {
		t.Fatalf("content = %q, want %q", content, "bar bar bar")
	}
}

func TestEditTool_NotFoundWhenOldStringAbsent(t *testing.T) {
	workspace, ctx := newWorkspaceCtx(t)
	path := filepath.Join(workspace, "file.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	editTool := NewEditTool(workspace)
	result := editTool.Execute(ctx, map[string]interface{}{
		"filePath":  "file.txt",
		"oldString": "missing",
		"newString": "x",
	})
	if !result.IsError || result.Kind != ErrNotFound {
		t.Fatalf("expected NotFound, got %+v", result)
	}
}

func TestGlobTool_RejectsAbsoluteAndParentTraversalPatterns(t *testing.T) {
	workspace, ctx := newWorkspaceCtx(t)
	globTool := NewGlobTool(workspace)

	if r := globTool.Execute(ctx, map[string]interface{}{"pattern": "/etc/*"}); !r.IsError || r.Kind != ErrPolicyDenied {
		t.Fatalf("expected PolicyDenied for absolute pattern, got %+v", r)
	}
	if r := globTool.Execute(ctx, map[string]interface{}{"pattern": "../*"}); !r.IsError || r.Kind != ErrPolicyDenied {
		t.Fatalf("expected PolicyDenied for parent traversal, got %+v", r)
	}
}

func TestGlobTool_FindsMatches(t *testing.T) {
	workspace, ctx := newWorkspaceCtx(t)
	for _, name := range []string{"a.go", "b.go", "c.txt"} {
		if err := os.WriteFile(filepath.Join(workspace, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	globTool := NewGlobTool(workspace)
	result := globTool.Execute(ctx, map[string]interface{}{"pattern": "*.go"})
	if result.IsError {
		t.Fatalf("glob failed: %+v", result)
	}
	if result.ForLLM == "No matches found." {
		t.Fatalf("expected matches, got none")
	}
}
