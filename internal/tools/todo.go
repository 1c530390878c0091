package tools

import (
	"context"
	"fmt"
	"strings"
)

// TodoItem is one entry in the turn's working task list, wholly replaced by
// each todoWrite call (§4.2: "todoWrite overwrites the entire list, it does
// not merge").
type TodoItem struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm,omitempty"`
}

var validTodoStatuses = map[string]bool{"pending": true, "in_progress": true, "completed": true}

// TodoWriteTool implements §4.2's todoWrite(todos).
type TodoWriteTool struct{}

func NewTodoWriteTool() *TodoWriteTool { return &TodoWriteTool{} }

func (t *TodoWriteTool) Name() string        { return "todoWrite" }
func (t *TodoWriteTool) Description() string { return "Replace the current task list" }
func (t *TodoWriteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"todos": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"content":    map[string]interface{}{"type": "string"},
						"status":     map[string]interface{}{"type": "string"},
						"activeForm": map[string]interface{}{"type": "string"},
					},
					"required": []string{"content", "status"},
				},
			},
		},
		"required": []string{"todos"},
	}
}

func (t *TodoWriteTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	raw, ok := args["todos"].([]interface{})
	if !ok {
		return ErrorResult(ErrValidation, "todos must be an array")
	}

	todos := make([]TodoItem, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return ErrorResult(ErrValidation, "each todo must be an object")
		}
		content := strings.TrimSpace(strArg(m, "content"))
		if content == "" {
			return ErrorResult(ErrValidation, "todo content must not be blank")
		}
		status := strArg(m, "status")
		if !validTodoStatuses[status] {
			return ErrorResult(ErrValidation, fmt.Sprintf("invalid status %q", status))
		}
		todos = append(todos, TodoItem{
			Content:    content,
			Status:     status,
			ActiveForm: strArg(m, "activeForm"),
		})
	}

	if update := UpdateTodosFromCtx(ctx); update != nil {
		if err := update(ctx, todos); err != nil {
			return ErrorResult(ErrUpstream, err.Error())
		}
	}

	if len(todos) == 0 {
		return SilentResult("Task list cleared.")
	}
	var b strings.Builder
	for _, item := range todos {
		fmt.Fprintf(&b, "[%s] %s\n", item.Status, item.Content)
	}
	return SilentResult(strings.TrimSuffix(b.String(), "\n"))
}
