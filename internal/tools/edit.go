package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EditTool implements §4.2's edit(filePath, oldString, newString, replaceAll).
type EditTool struct {
	workspace string
}

func NewEditTool(workspace string) *EditTool {
	return &EditTool{workspace: workspace}
}

func (t *EditTool) Name() string        { return "edit" }
func (t *EditTool) Description() string { return "Replace an exact string occurrence within a file" }
func (t *EditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filePath":    map[string]interface{}{"type": "string"},
			"oldString":   map[string]interface{}{"type": "string"},
			"newString":   map[string]interface{}{"type": "string"},
			"replaceAll":  map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"filePath", "oldString", "newString"},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["filePath"].(string)
	oldString, _ := args["oldString"].(string)
	newString, _ := args["newString"].(string)
	replaceAll, _ := args["replaceAll"].(bool)

	if path == "" {
		return ErrorResult(ErrValidation, "filePath is required")
	}
	if oldString == "" {
		return ErrorResult(ErrValidation, "oldString must not be empty")
	}

	gate := GateFromCtx(ctx)
	resolved, err := gate.ResolveAndAssertWrite(path, t.workspace)
	if err != nil {
		return ErrorResult(ErrPolicyDenied, err.Error())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(ErrNotFound, fmt.Sprintf("file not found: %s", path))
		}
		return ErrorResult(ErrUpstream, err.Error())
	}
	content := string(data)

	count := strings.Count(content, oldString)
	if count == 0 {
		return ErrorResult(ErrNotFound, fmt.Sprintf("oldString not found in %s", path))
	}
	if !replaceAll && count > 1 {
		return ErrorResult(ErrValidation, fmt.Sprintf("oldString found %d times; pass replaceAll=true or narrow the match", count))
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, oldString, newString)
	} else {
		updated = strings.Replace(content, oldString, newString, 1)
	}

	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	return SilentResult("Edit applied.")
}
