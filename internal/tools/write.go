package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTool implements §4.2's write(filePath, content).
type WriteTool struct {
	workspace string
}

func NewWriteTool(workspace string) *WriteTool {
	return &WriteTool{workspace: workspace}
}

func (t *WriteTool) Name() string        { return "write" }
func (t *WriteTool) Description() string { return "Write content to a file, creating parent directories as needed" }
func (t *WriteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filePath": map[string]interface{}{"type": "string"},
			"content":  map[string]interface{}{"type": "string"},
		},
		"required": []string{"filePath", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["filePath"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult(ErrValidation, "filePath is required")
	}

	gate := GateFromCtx(ctx)
	resolved, err := gate.Resolve(path, t.workspace)
	if err != nil {
		return ErrorResult(ErrPolicyDenied, err.Error())
	}
	if err := gate.AssertWriteAllowed(resolved); err != nil {
		return ErrorResult(ErrPolicyDenied, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}

	return SilentResult(fmt.Sprintf("Wrote %d chars to %s", len(content), path))
}
