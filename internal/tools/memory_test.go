package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryTool_ReadHotCacheFallsBackToAgentMD(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "AGENT.md"), []byte("hello agent"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := NewMemoryTool([]string{dir})

	result := tool.Execute(context.Background(), map[string]interface{}{"action": "read"})
	if result.IsError || result.ForLLM != "hello agent" {
		t.Fatalf("expected AGENT.md content, got %+v", result)
	}
}

func TestMemoryTool_WriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool([]string{dir})

	writeResult := tool.Execute(context.Background(), map[string]interface{}{
		"action": "write", "key": "notes/plan", "content": "step one",
	})
	if writeResult.IsError {
		t.Fatalf("write failed: %+v", writeResult)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes", "plan.md")); err != nil {
		t.Fatalf("expected plan.md to exist: %v", err)
	}

	readResult := tool.Execute(context.Background(), map[string]interface{}{
		"action": "read", "key": "notes/plan",
	})
	if readResult.IsError || readResult.ForLLM != "step one" {
		t.Fatalf("expected round-tripped content, got %+v", readResult)
	}
}

func TestMemoryTool_RejectsEscapingKey(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool([]string{dir})
	result := tool.Execute(context.Background(), map[string]interface{}{
		"action": "write", "key": "../escape", "content": "x",
	})
	if !result.IsError || result.Kind != ErrValidation {
		t.Fatalf("expected ValidationError for escaping key, got %+v", result)
	}
}

func TestMemoryTool_SearchAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("the quick fox\njumps"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := NewMemoryTool([]string{dir})

	result := tool.Execute(context.Background(), map[string]interface{}{"action": "search", "query": "quick"})
	if result.IsError {
		t.Fatalf("search failed: %+v", result)
	}
	if result.ForLLM == "No memory found." {
		t.Fatalf("expected a match, got none")
	}
}

func TestMemoryTool_SearchNoMatches(t *testing.T) {
	dir := t.TempDir()
	tool := NewMemoryTool([]string{dir})
	result := tool.Execute(context.Background(), map[string]interface{}{"action": "search", "query": "nonexistent"})
	if result.IsError || result.ForLLM != "No memory found." {
		t.Fatalf("expected no-memory-found sentinel, got %+v", result)
	}
}
