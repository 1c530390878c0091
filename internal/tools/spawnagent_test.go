package tools

import (
	"context"
	"testing"
)

func TestSpawnAgentTool_DepthLimit(t *testing.T) {
	full := NewRegistry()
	full.Register(&stubTool{name: "read"})
	tool := NewSpawnAgentTool(full)

	ctx := WithSpawnAgent(context.Background(), func(ctx context.Context, task string, tools *Registry) (string, error) {
		return "done", nil
	})
	ctx = WithSpawnDepth(ctx, maxSpawnDepth)

	result := tool.Execute(ctx, map[string]interface{}{"task": "look around", "agentType": "explore"})
	if !result.IsError || result.Kind != ErrPolicyDenied {
		t.Fatalf("expected PolicyDenied at depth limit, got %+v", result)
	}
}

func TestSpawnAgentTool_UnknownAgentType(t *testing.T) {
	full := NewRegistry()
	tool := NewSpawnAgentTool(full)
	result := tool.Execute(context.Background(), map[string]interface{}{"task": "x", "agentType": "wizard"})
	if !result.IsError || result.Kind != ErrValidation {
		t.Fatalf("expected ValidationError for unknown agentType, got %+v", result)
	}
}

func TestSpawnAgentTool_TaskTooLong(t *testing.T) {
	full := NewRegistry()
	tool := NewSpawnAgentTool(full)
	huge := make([]byte, maxSpawnTaskChar+1)
	for i := range huge {
		huge[i] = 'x'
	}
	result := tool.Execute(context.Background(), map[string]interface{}{"task": string(huge), "agentType": "explore"})
	if !result.IsError || result.Kind != ErrValidation {
		t.Fatalf("expected ValidationError for oversized task, got %+v", result)
	}
}

func TestSpawnAgentTool_DelegatesWithRestrictedSubset(t *testing.T) {
	full := NewRegistry()
	full.Register(&stubTool{name: "read"})
	full.Register(&stubTool{name: "write"})
	full.Register(&stubTool{name: "bash"})
	tool := NewSpawnAgentTool(full)

	var gotNames []string
	ctx := WithSpawnAgent(context.Background(), func(ctx context.Context, task string, tools *Registry) (string, error) {
		gotNames = tools.Names()
		if !IsSubagentFromCtx(ctx) {
			t.Fatalf("sub-agent context should mark IsSubagent")
		}
		return "explored fine", nil
	})

	result := tool.Execute(ctx, map[string]interface{}{"task": "look around", "agentType": "explore"})
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	if result.ForLLM != "explored fine" {
		t.Fatalf("expected sub-agent's final text to pass through, got %q", result.ForLLM)
	}
	for _, n := range gotNames {
		if n == "write" {
			t.Fatalf("explore subset must not include write, got %v", gotNames)
		}
	}
}

func TestSpawnAgentTool_NoSpawnFuncConfigured(t *testing.T) {
	full := NewRegistry()
	tool := NewSpawnAgentTool(full)
	result := tool.Execute(context.Background(), map[string]interface{}{"task": "x", "agentType": "general"})
	if !result.IsError || result.Kind != ErrUpstream {
		t.Fatalf("expected Upstream when no spawn function is wired, got %+v", result)
	}
}
