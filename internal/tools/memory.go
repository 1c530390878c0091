package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MemoryTool implements §4.2's memory(action, key?, content?, query?) over
// an ordered list of memory directories. "read" with no key (or "hot" /
// "AGENT.md") falls back to each directory's AGENT.md; "write" creates
// parent directories as needed; "search" greps file contents across every
// memory directory.
type MemoryTool struct {
	memoryDirs []string
}

func NewMemoryTool(memoryDirs []string) *MemoryTool {
	return &MemoryTool{memoryDirs: memoryDirs}
}

func (t *MemoryTool) Name() string        { return "memory" }
func (t *MemoryTool) Description() string { return "Read, write, or search persistent memory files" }
func (t *MemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":  map[string]interface{}{"type": "string", "enum": []string{"read", "write", "search"}},
			"key":     map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
			"query":   map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *MemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action := strArg(args, "action")
	switch action {
	case "read":
		return t.read(strArg(args, "key"))
	case "write":
		return t.write(strArg(args, "key"), strArg(args, "content"))
	case "search":
		return t.search(ctx, strArg(args, "query"))
	default:
		return ErrorResult(ErrValidation, fmt.Sprintf("unknown memory action %q", action))
	}
}

func (t *MemoryTool) resolve(relPath string) (string, error) {
	if strings.Contains(relPath, "..") {
		return "", fmt.Errorf("key must not contain ..")
	}
	for _, dir := range t.memoryDirs {
		candidate := filepath.Join(dir, relPath)
		if !strings.HasPrefix(candidate, filepath.Clean(dir)+string(filepath.Separator)) && candidate != filepath.Clean(dir) {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func (t *MemoryTool) read(relPath string) *Result {
	if len(t.memoryDirs) == 0 {
		return ErrorResult(ErrUpstream, "no memory directories configured")
	}
	if relPath == "" || relPath == "hot" || relPath == "AGENT.md" {
		for _, dir := range t.memoryDirs {
			content, err := os.ReadFile(filepath.Join(dir, "AGENT.md"))
			if err == nil {
				return SilentResult(string(content))
			}
		}
		return ErrorResult(ErrNotFound, "no AGENT.md found in any memory directory")
	}
	if !strings.HasSuffix(relPath, ".md") {
		relPath += ".md"
	}

	found, err := t.resolve(relPath)
	if err != nil {
		return ErrorResult(ErrValidation, err.Error())
	}
	if found == "" {
		return ErrorResult(ErrNotFound, fmt.Sprintf("memory file not found: %s", relPath))
	}
	content, err := os.ReadFile(found)
	if err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	return SilentResult(string(content))
}

func (t *MemoryTool) write(relPath, content string) *Result {
	if relPath == "" {
		return ErrorResult(ErrValidation, "key is required for write")
	}
	if strings.Contains(relPath, "..") {
		return ErrorResult(ErrValidation, "key must not contain ..")
	}
	if !strings.HasSuffix(relPath, ".md") {
		relPath += ".md"
	}
	if len(t.memoryDirs) == 0 {
		return ErrorResult(ErrUpstream, "no memory directories configured")
	}
	target := filepath.Join(t.memoryDirs[0], relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	if err := writeFileAtomic(target, []byte(content)); err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	return SilentResult(fmt.Sprintf("Wrote %d chars to %s", len(content), relPath))
}

// writeFileAtomic writes via a temp file in the same directory then renames
// over the target, so a crash mid-write never leaves a truncated memory file.
func writeFileAtomic(target string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, target)
}

func (t *MemoryTool) search(ctx context.Context, query string) *Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrorResult(ErrValidation, "query is required for search")
	}
	var b strings.Builder
	matches := 0
	for _, dir := range t.memoryDirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			f, ferr := os.Open(path)
			if ferr != nil {
				return nil
			}
			defer f.Close()
			scanner := bufio.NewScanner(f)
			lineNo := 0
			for scanner.Scan() {
				lineNo++
				line := scanner.Text()
				if strings.Contains(strings.ToLower(line), strings.ToLower(query)) {
					rel, _ := filepath.Rel(dir, path)
					fmt.Fprintf(&b, "%s:%d: %s\n", rel, lineNo, strings.TrimSpace(line))
					matches++
				}
			}
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return ErrorResult(ErrCancelled, "memory search cancelled")
		}
	}
	if matches == 0 {
		return SilentResult("No memory found.")
	}
	return SilentResult(strings.TrimSuffix(b.String(), "\n"))
}
