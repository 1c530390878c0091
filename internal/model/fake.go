package model

import (
	"context"
	"fmt"
)

// FakeStep scripts one step of a FakeProvider run.
type FakeStep struct {
	ToolCalls []ToolCall
	Text      string // final text; only meaningful when ToolCalls is empty
	Err       error  // if set, Generate returns this error for this step
}

// FakeProvider is a scripted Provider double for internal/turn tests. It
// plays back a fixed sequence of steps, calling PrepareStep/OnStepFinish
// exactly as a real provider must (§4.5). It does not read req.Messages:
// the Turn Driver dispatches tools between calls to Generate and appends
// their results as "tool" messages itself, so FakeProvider never executes
// a tool.
type FakeProvider struct {
	NameValue  string
	ModelValue string
	Steps      []FakeStep

	Calls int // number of Generate invocations, for assertions
}

func (p *FakeProvider) Name() string         { return p.NameValue }
func (p *FakeProvider) DefaultModel() string  { return p.ModelValue }

// Generate plays exactly one scripted step per call — turn.Driver calls
// Generate once per model step, appending tool results to req.Messages
// before the next call, the same contract a real streaming provider has
// once its transport-level retries are disabled (§4.5-iv).
func (p *FakeProvider) Generate(ctx context.Context, req Request) (Response, error) {
	idx := p.Calls
	if idx >= len(p.Steps) {
		return Response{}, fmt.Errorf("model: fake provider exhausted after %d steps", len(p.Steps))
	}
	p.Calls++
	step := p.Steps[idx]

	if req.PrepareStep != nil {
		if err := req.PrepareStep(ctx, idx); err != nil {
			return Response{}, err
		}
	}
	if step.Err != nil {
		return Response{}, step.Err
	}

	rec := StepRecord{Index: idx, Content: step.Text, ToolCalls: step.ToolCalls, Finished: len(step.ToolCalls) == 0}
	if req.OnStepFinish != nil {
		req.OnStepFinish(ctx, rec)
	}

	resp := Response{Text: step.Text, Steps: []StepRecord{rec}}
	if req.OnFinish != nil && rec.Finished {
		req.OnFinish(ctx, resp)
	}
	return resp, nil
}
