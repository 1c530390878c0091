package tools

import (
	"context"
	"testing"
)

type stubTool struct {
	name   string
	calls  int
	result *Result
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"x": map[string]interface{}{"type": "string"}},
		"required":   []string{"x"},
	}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	s.calls++
	if s.result != nil {
		return s.result
	}
	return SilentResult("ok")
}

func TestRegistry_Execute_ValidationError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "stub"})

	result := reg.Execute(context.Background(), nil, "stub", map[string]interface{}{})
	if !result.IsError || result.Kind != ErrValidation {
		t.Fatalf("expected ValidationError, got %+v", result)
	}
}

func TestRegistry_Execute_UnknownTool(t *testing.T) {
	reg := NewRegistry()
	result := reg.Execute(context.Background(), nil, "missing", map[string]interface{}{"x": "y"})
	if !result.IsError || result.Kind != ErrNotFound {
		t.Fatalf("expected NotFound, got %+v", result)
	}
}

func TestRegistry_Execute_CancelledBeforeRun(t *testing.T) {
	reg := NewRegistry()
	st := &stubTool{name: "stub"}
	reg.Register(st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := reg.Execute(ctx, nil, "stub", map[string]interface{}{"x": "y"})
	if !result.IsError || result.Kind != ErrCancelled {
		t.Fatalf("expected Cancelled, got %+v", result)
	}
	if st.calls != 0 {
		t.Fatalf("tool should not have run after cancellation, calls=%d", st.calls)
	}
}

func TestRegistry_Execute_PanicRecovered(t *testing.T) {
	reg := NewRegistry()
	reg.tools["boom"] = &panicTool{}
	reg.order = append(reg.order, "boom")

	result := reg.Execute(context.Background(), nil, "boom", map[string]interface{}{})
	if !result.IsError || result.Kind != ErrUpstream {
		t.Fatalf("expected Upstream from recovered panic, got %+v", result)
	}
}

type panicTool struct{}

func (p *panicTool) Name() string                             { return "boom" }
func (p *panicTool) Description() string                      { return "boom" }
func (p *panicTool) Parameters() map[string]interface{}       { return nil }
func (p *panicTool) Execute(context.Context, map[string]interface{}) *Result {
	panic("kaboom")
}

func TestToolGuards_RequiredFirstNonTodoToolCall(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "read"})
	reg.Register(&stubTool{name: "write"})
	reg.Register(&stubTool{name: "todoWrite"})

	guards := NewToolGuards()
	guards.RequiredFirstNonTodoToolCall = "read"

	if r := reg.Execute(context.Background(), guards, "todoWrite", map[string]interface{}{"x": "y"}); r.IsError {
		t.Fatalf("todoWrite before the required first call should be allowed, got %+v", r)
	}
	if r := reg.Execute(context.Background(), guards, "write", map[string]interface{}{"x": "y"}); !r.IsError || r.Kind != ErrPolicyDenied {
		t.Fatalf("expected PolicyDenied for out-of-order first call, got %+v", r)
	}
	if r := reg.Execute(context.Background(), guards, "read", map[string]interface{}{"x": "y"}); r.IsError {
		t.Fatalf("expected read to be allowed as the required first call, got %+v", r)
	}
}

func TestToolGuards_Guarded(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "skill"})
	reg.Register(&stubTool{name: "edit"})

	guards := NewToolGuards()
	guards.Guarded = map[string]string{"edit": "skill"}

	if r := reg.Execute(context.Background(), guards, "edit", map[string]interface{}{"x": "y"}); !r.IsError || r.Kind != ErrPolicyDenied {
		t.Fatalf("expected PolicyDenied before prerequisite fires, got %+v", r)
	}
	reg.Execute(context.Background(), guards, "skill", map[string]interface{}{"x": "y"})
	if r := reg.Execute(context.Background(), guards, "edit", map[string]interface{}{"x": "y"}); r.IsError {
		t.Fatalf("expected edit to be allowed after skill fired, got %+v", r)
	}
}

func TestRegistry_Subset_PreservesOrderAndExcludesOthers(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "read"})
	reg.Register(&stubTool{name: "write"})
	reg.Register(&stubTool{name: "bash"})

	sub := reg.Subset([]string{"bash", "read"})
	names := sub.Names()
	if len(names) != 2 || names[0] != "read" || names[1] != "bash" {
		t.Fatalf("expected [read bash] in registration order, got %v", names)
	}
	if _, ok := sub.Get("write"); ok {
		t.Fatalf("subset must not include write")
	}
}
