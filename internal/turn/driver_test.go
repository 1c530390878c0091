package turn

import (
	"context"
	"testing"

	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/tools"
)

type stubTool struct {
	name   string
	result *tools.Result
	calls  int
}

func (s *stubTool) Name() string                          { return s.name }
func (s *stubTool) Description() string                   { return "stub" }
func (s *stubTool) Parameters() map[string]interface{}    { return map[string]interface{}{"type": "object"} }
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	s.calls++
	return s.result
}

func newRegistryWith(ts ...tools.Tool) *tools.Registry {
	reg := tools.NewRegistry()
	for _, t := range ts {
		reg.Register(t)
	}
	return reg
}

func TestDriver_Run_NoToolCallsReturnsFinalText(t *testing.T) {
	fake := &model.FakeProvider{Steps: []model.FakeStep{{Text: "all done"}}}
	d := New(fake)

	result := d.Run(context.Background(), Request{
		Messages: []model.Message{{Role: "user", Content: "hi"}},
		Tools:    newRegistryWith(),
	}, Callbacks{})

	if result.Outcome != Finished || result.FinalText != "all done" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Steps != 1 {
		t.Fatalf("expected 1 step, got %d", result.Steps)
	}
}

func TestDriver_Run_DispatchesToolCallThenFinishes(t *testing.T) {
	readTool := &stubTool{name: "read", result: tools.NewResult("file contents")}
	fake := &model.FakeProvider{Steps: []model.FakeStep{
		{ToolCalls: []model.ToolCall{{ID: "1", Name: "read", Arguments: map[string]interface{}{"path": "a.txt"}}}},
		{Text: "read it, done"},
	}}
	d := New(fake)

	var gotCall, gotResult bool
	result := d.Run(context.Background(), Request{
		Messages: []model.Message{{Role: "user", Content: "read a.txt"}},
		Tools:    newRegistryWith(readTool),
	}, Callbacks{
		OnToolCall:   func(callID, name string, args map[string]interface{}) { gotCall = true },
		OnToolResult: func(callID string, result *tools.Result) { gotResult = true },
	})

	if result.Outcome != Finished || result.FinalText != "read it, done" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if readTool.calls != 1 {
		t.Fatalf("expected tool to be called once, got %d", readTool.calls)
	}
	if !gotCall || !gotResult {
		t.Fatalf("expected OnToolCall and OnToolResult to fire")
	}
}

func TestDriver_Run_CancelledBeforeFirstStepStops(t *testing.T) {
	fake := &model.FakeProvider{Steps: []model.FakeStep{{Text: "never reached"}}}
	d := New(fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.Run(ctx, Request{Messages: []model.Message{{Role: "user", Content: "hi"}}, Tools: newRegistryWith()}, Callbacks{})
	if result.Outcome != Stopped {
		t.Fatalf("expected Stopped outcome, got %+v", result)
	}
}

func TestDriver_Run_RequiredToolCallEnforced(t *testing.T) {
	fake := &model.FakeProvider{Steps: []model.FakeStep{{Text: "done without calling anything"}}}
	d := New(fake)

	result := d.Run(context.Background(), Request{
		Messages:          []model.Message{{Role: "user", Content: "hi"}},
		Tools:             newRegistryWith(),
		RequiredToolCalls: []string{"read"},
	}, Callbacks{})

	if result.Outcome != Errored || result.Err == nil {
		t.Fatalf("expected policy enforcement error, got %+v", result)
	}
}

func TestDriver_Run_ModelErrorSurfacesAfterRetryBudget(t *testing.T) {
	fake := &model.FakeProvider{Steps: []model.FakeStep{{Err: context.DeadlineExceeded}}}
	d := New(fake)
	d.MaxRetries = 0
	d.RetryBase = 0

	result := d.Run(context.Background(), Request{Messages: []model.Message{{Role: "user", Content: "hi"}}, Tools: newRegistryWith()}, Callbacks{})
	if result.Outcome != Errored || result.Err == nil {
		t.Fatalf("expected Errored outcome, got %+v", result)
	}
}

func TestToolLoopState_DetectsCriticalRepeat(t *testing.T) {
	var s toolLoopState
	args := map[string]interface{}{"path": "a.txt"}
	for i := 0; i < loopCriticalThreshold; i++ {
		hash := s.record("read", args)
		s.recordResult(hash, "same output")
		level, _ := s.detect("read", hash)
		if i == loopCriticalThreshold-1 && level != "critical" {
			t.Fatalf("expected critical on repeat %d, got %q", i, level)
		}
	}
}
