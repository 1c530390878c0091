package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// NotebookEditTool implements §4.2's notebookEdit(notebookPath, cellIndex,
// newSource, mode?) over Jupyter .ipynb JSON documents.
type NotebookEditTool struct {
	workspace string
}

func NewNotebookEditTool(workspace string) *NotebookEditTool {
	return &NotebookEditTool{workspace: workspace}
}

func (t *NotebookEditTool) Name() string        { return "notebookEdit" }
func (t *NotebookEditTool) Description() string { return "Edit a cell in a Jupyter notebook" }
func (t *NotebookEditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"notebookPath": map[string]interface{}{"type": "string"},
			"cellIndex":    map[string]interface{}{"type": "integer"},
			"newSource":    map[string]interface{}{"type": "string"},
			"mode":         map[string]interface{}{"type": "string", "enum": []string{"replace", "insert", "delete"}},
			"cellType":     map[string]interface{}{"type": "string", "enum": []string{"code", "markdown"}},
		},
		"required": []string{"notebookPath", "cellIndex"},
	}
}

type notebookCell struct {
	CellType       string                 `json:"cell_type"`
	Source         []string               `json:"source"`
	Metadata       map[string]interface{} `json:"metadata"`
	ExecutionCount interface{}            `json:"execution_count,omitempty"`
	Outputs        []interface{}          `json:"outputs,omitempty"`
}

type notebookDoc struct {
	Cells         []notebookCell         `json:"cells"`
	Metadata      map[string]interface{} `json:"metadata"`
	NBFormat      int                    `json:"nbformat"`
	NBFormatMinor int                    `json:"nbformat_minor"`
}

func (t *NotebookEditTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["notebookPath"].(string)
	if path == "" {
		return ErrorResult(ErrValidation, "notebookPath is required")
	}
	if !strings.HasSuffix(strings.ToLower(path), ".ipynb") {
		return ErrorResult(ErrValidation, "notebookPath must end in .ipynb")
	}
	cellIndex := intArg(args, "cellIndex", -1)
	if cellIndex < 0 {
		return ErrorResult(ErrValidation, "cellIndex is required and must be >= 0")
	}
	mode := strArg(args, "mode")
	if mode == "" {
		mode = "replace"
	}
	if mode != "replace" && mode != "insert" && mode != "delete" {
		return ErrorResult(ErrValidation, fmt.Sprintf("invalid mode %q", mode))
	}
	newSource, _ := args["newSource"].(string)
	if mode != "delete" && newSource == "" {
		return ErrorResult(ErrValidation, "newSource is required for replace/insert")
	}

	gate := GateFromCtx(ctx)
	resolved, err := gate.ResolveAndAssertWrite(path, t.workspace)
	if err != nil {
		return ErrorResult(ErrPolicyDenied, err.Error())
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(ErrNotFound, fmt.Sprintf("notebook not found: %s", path))
		}
		return ErrorResult(ErrUpstream, err.Error())
	}

	var doc notebookDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ErrorResult(ErrValidation, fmt.Sprintf("invalid notebook JSON: %v", err))
	}

	switch mode {
	case "delete":
		if cellIndex >= len(doc.Cells) {
			return ErrorResult(ErrNotFound, fmt.Sprintf("cell index %d out of range", cellIndex))
		}
		doc.Cells = append(doc.Cells[:cellIndex], doc.Cells[cellIndex+1:]...)
	case "insert":
		cellType := strArg(args, "cellType")
		if cellType == "" {
			cellType = "code"
		}
		cell := notebookCell{CellType: cellType, Source: splitSourceLines(newSource), Metadata: map[string]interface{}{}}
		if cellIndex > len(doc.Cells) {
			cellIndex = len(doc.Cells)
		}
		doc.Cells = append(doc.Cells[:cellIndex], append([]notebookCell{cell}, doc.Cells[cellIndex:]...)...)
	case "replace":
		if cellIndex >= len(doc.Cells) {
			return ErrorResult(ErrNotFound, fmt.Sprintf("cell index %d out of range", cellIndex))
		}
		doc.Cells[cellIndex].Source = splitSourceLines(newSource)
		if cellType := strArg(args, "cellType"); cellType != "" {
			doc.Cells[cellIndex].CellType = cellType
		}
	}

	out, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	if err := os.WriteFile(resolved, out, 0o644); err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	return SilentResult(fmt.Sprintf("Notebook cell %d %sd.", cellIndex, mode))
}

// splitSourceLines preserves nbformat's convention of a slice of lines each
// keeping its trailing newline except the last.
func splitSourceLines(source string) []string {
	lines := strings.SplitAfter(source, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
