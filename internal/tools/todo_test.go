package tools

import (
	"context"
	"testing"
)

func TestTodoWriteTool_OverwritesWholeList(t *testing.T) {
	var captured []TodoItem
	ctx := WithUpdateTodos(context.Background(), func(ctx context.Context, todos []TodoItem) error {
		captured = todos
		return nil
	})

	tool := NewTodoWriteTool()
	result := tool.Execute(ctx, map[string]interface{}{
		"todos": []interface{}{
			map[string]interface{}{"content": "write tests", "status": "in_progress"},
			map[string]interface{}{"content": "ship it", "status": "pending"},
		},
	})
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	if len(captured) != 2 || captured[0].Status != "in_progress" {
		t.Fatalf("callback did not receive the full replacement list: %+v", captured)
	}
}

func TestTodoWriteTool_RejectsInvalidStatus(t *testing.T) {
	tool := NewTodoWriteTool()
	result := tool.Execute(context.Background(), map[string]interface{}{
		"todos": []interface{}{
			map[string]interface{}{"content": "x", "status": "done-ish"},
		},
	})
	if !result.IsError || result.Kind != ErrValidation {
		t.Fatalf("expected ValidationError for invalid status, got %+v", result)
	}
}

func TestTodoWriteTool_EmptyListClears(t *testing.T) {
	tool := NewTodoWriteTool()
	result := tool.Execute(context.Background(), map[string]interface{}{"todos": []interface{}{}})
	if result.IsError || result.ForLLM != "Task list cleared." {
		t.Fatalf("expected cleared sentinel, got %+v", result)
	}
}

func TestAskTool_DeniedForSubagent(t *testing.T) {
	tool := NewAskTool()
	ctx := WithSubagent(context.Background(), true)
	result := tool.Execute(ctx, map[string]interface{}{
		"questions": []interface{}{map[string]interface{}{"question": "which path?"}},
	})
	if !result.IsError || result.Kind != ErrPolicyDenied {
		t.Fatalf("expected PolicyDenied for sub-agent ask, got %+v", result)
	}
}

func TestAskTool_RoutesThroughCallback(t *testing.T) {
	ctx := WithAskUser(context.Background(), func(ctx context.Context, questions []AskQuestion) (map[string]string, error) {
		answers := make(map[string]string)
		for _, q := range questions {
			answers[q.Question] = "yes"
		}
		return answers, nil
	})

	tool := NewAskTool()
	result := tool.Execute(ctx, map[string]interface{}{
		"questions": []interface{}{map[string]interface{}{"question": "continue?"}},
	})
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	if result.ForLLM != "continue?: yes" {
		t.Fatalf("unexpected answer formatting: %q", result.ForLLM)
	}
}
