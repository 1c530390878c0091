// Package turn implements the Turn Driver from spec.md §4.3: the per-turn
// step loop that lets the model emit tool calls, dispatches them through
// the Tool Runtime, and runs until a final response or a terminal
// condition fires.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/telemetry"
	"github.com/localcoworker/engine/internal/tools"
)

const (
	defaultMaxSteps       = 100
	defaultRetryBase      = 12 * time.Second
	defaultRetryCap       = 180 * time.Second
	defaultChunkTimeout   = 90 * time.Second
)

// Outcome is how a Run ended — mirrors the three terminal session events
// (agent_finished | agent_stopped | agent_error) exactly one of which must
// fire per turn (§5).
type Outcome int

const (
	Finished Outcome = iota
	Stopped
	Errored
)

// Callbacks wires the Turn Driver's observable points to the Session
// Server: streamed text, tool call/result notifications, and the
// context-injected functions internal/tools expects (§9's callback-heavy
// redesign).
type Callbacks struct {
	AskUser        tools.AskUserFunc
	ApproveCommand tools.ApproveCommandFunc
	UpdateTodos    tools.UpdateTodosFunc
	SpawnAgent     tools.SpawnAgentFunc

	OnChunk      func(text string)
	OnToolCall   func(callID, name string, args map[string]interface{})
	OnToolResult func(callID string, result *tools.Result)
	OnRetry      func(attempt, maxAttempts int, err error)
}

// Request is one turn's input.
type Request struct {
	SystemPrompt string
	Messages     []model.Message
	Tools        *tools.Registry // nil = full catalog is an error; callers always pass one
	Guards       *tools.ToolGuards
	RequiredToolCalls []string
	Model        string
}

// Result is one turn's output.
type Result struct {
	Outcome   Outcome
	FinalText string
	Steps     int
	Messages  []model.Message
	Err       error
}

// Driver runs turns against a Provider. A Driver is safe to reuse across
// turns from different sessions; all per-turn state is local to Run.
type Driver struct {
	Provider model.Provider

	MaxSteps       int
	MaxRetries     int
	RetryBase      time.Duration
	RetryCap       time.Duration
	ChunkTimeout   time.Duration
	RateLimiter    *rate.Limiter // inter-step interval (prepareStep)

	// FinalizeSentinel, if set, is the terminator sentinel harness flows
	// require (§4.3 step 6). Empty disables the finalize pass.
	FinalizeSentinel string

	Telemetry telemetry.Hooks
}

func New(provider model.Provider) *Driver {
	return &Driver{
		Provider:     provider,
		MaxSteps:     defaultMaxSteps,
		RetryBase:    defaultRetryBase,
		RetryCap:     defaultRetryCap,
		ChunkTimeout: defaultChunkTimeout,
		Telemetry:    telemetry.NoopHooks{},
	}
}

// Run executes the full Turn Driver algorithm from spec.md §4.3.
func (d *Driver) Run(ctx context.Context, req Request, cb Callbacks) *Result {
	if req.Tools == nil {
		return &Result{Outcome: Errored, Err: fmt.Errorf("turn: no tool registry supplied")}
	}
	maxSteps := d.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	ctx = wireCallbacks(ctx, cb)

	messages := append([]model.Message(nil), req.Messages...)
	toolDefs := convertToolDefs(req.Tools.ProviderDefs())

	var loopDetector toolLoopState
	calledTools := make(map[string]bool)

	var finalText string
	step := 0

	for {
		select {
		case <-ctx.Done():
			return &Result{Outcome: Stopped, Messages: messages, Steps: step}
		default:
		}
		if step >= maxSteps {
			finalText = "Turn ended after reaching the maximum step budget without a final response."
			break
		}
		step++

		modelReq := model.Request{
			Model:        req.Model,
			SystemPrompt: req.SystemPrompt,
			Messages:     messages,
			Tools:        toolDefs,
			MaxSteps:     maxSteps,
			PrepareStep:  d.prepareStep,
			OnStepFinish: func(ctx context.Context, rec model.StepRecord) {
				d.Telemetry.EmitEvent(ctx, "turn.step", time.Now(), telemetry.StatusOK, 0, map[string]interface{}{
					"step": rec.Index,
				})
			},
		}

		resp, err := d.generateWithRetry(ctx, modelReq, cb)
		if err != nil {
			return &Result{Outcome: Errored, Err: err, Messages: messages, Steps: step}
		}
		if len(resp.Steps) == 0 {
			return &Result{Outcome: Errored, Err: fmt.Errorf("turn: provider returned no step record"), Messages: messages, Steps: step}
		}
		rec := resp.Steps[len(resp.Steps)-1]

		if len(rec.ToolCalls) == 0 {
			finalText = rec.Content
			if cb.OnChunk != nil && finalText != "" {
				cb.OnChunk(finalText)
			}
			break
		}

		messages = append(messages, model.Message{Role: "assistant", Content: rec.Content, ToolCalls: rec.ToolCalls})

		results := d.dispatchToolCalls(ctx, req.Tools, req.Guards, rec.ToolCalls, cb)
		for _, tc := range rec.ToolCalls {
			calledTools[tc.Name] = true
		}

		stuck := false
		for i, tc := range rec.ToolCalls {
			result := results[i]
			argsHash := loopDetector.record(tc.Name, tc.Arguments)
			loopDetector.recordResult(argsHash, result.ForLLM)
			messages = append(messages, model.Message{Role: "tool", Content: result.ForLLM, ToolCallID: tc.ID})

			if level, msg := loopDetector.detect(tc.Name, argsHash); level != "" {
				if level == "critical" {
					finalText = "I was unable to complete this task — I got stuck repeatedly calling " +
						tc.Name + " without making progress. Please try rephrasing your request."
					stuck = true
					break
				}
				messages = append(messages, model.Message{Role: "user", Content: msg})
			}
		}
		if stuck {
			break
		}

		select {
		case <-ctx.Done():
			return &Result{Outcome: Stopped, Messages: messages, Steps: step}
		default:
		}
	}

	if d.FinalizeSentinel != "" && !strings.Contains(finalText, d.FinalizeSentinel) {
		finalizeReq := model.Request{
			Model:        req.Model,
			SystemPrompt: req.SystemPrompt,
			Messages:     append(messages, model.Message{Role: "assistant", Content: finalText}),
			MaxSteps:     1,
			PrepareStep:  d.prepareStep,
		}
		if resp, err := d.generateWithRetry(ctx, finalizeReq, cb); err == nil && len(resp.Steps) > 0 {
			finalText = resp.Steps[len(resp.Steps)-1].Content
		}
	}

	if err := d.enforcePolicy(req.RequiredToolCalls, calledTools); err != nil {
		return &Result{Outcome: Errored, Err: err, Messages: messages, Steps: step}
	}

	messages = append(messages, model.Message{Role: "assistant", Content: finalText})
	return &Result{Outcome: Finished, FinalText: finalText, Steps: step, Messages: messages}
}

func (d *Driver) enforcePolicy(required []string, called map[string]bool) error {
	for _, name := range required {
		if !called[name] {
			return fmt.Errorf("turn: required tool call %q did not occur", name)
		}
	}
	return nil
}

// prepareStep enforces the minimal inter-step interval and yields to
// cancellation (§4.3 step 3). Continuity fix-ups are provider-specific and
// have no generic implementation here — a Provider applies its own via its
// Generate implementation.
func (d *Driver) prepareStep(ctx context.Context, stepIndex int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if d.RateLimiter != nil {
		if err := d.RateLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// generateWithRetry wraps Provider.Generate with the retry policy from
// §4.3 step 5: default 0 extra retries, extracted/backoff delay between
// attempts.
func (d *Driver) generateWithRetry(ctx context.Context, req model.Request, cb Callbacks) (model.Response, error) {
	maxAttempts := d.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := d.Provider.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		if cb.OnRetry != nil {
			cb.OnRetry(attempt, maxAttempts, err)
		}
		delay := retryDelay(attempt, d.RetryBase, d.RetryCap, err.Error())
		var re *model.RetryableError
		if errors.As(err, &re) && re.RetryAfter != nil {
			if hint := time.Duration(re.RetryAfter.Nanoseconds()) + jitter(); hint > delay {
				delay = hint
			}
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	return model.Response{}, fmt.Errorf("turn: model call failed after %d attempt(s): %w", maxAttempts, lastErr)
}

// dispatchToolCalls serializes a single tool call but fans multiple calls
// from the same step out over goroutines, re-sequencing results back into
// original call order before returning (§4.3 supplement; §5 allows this
// only when the model explicitly dispatched more than one call together).
func (d *Driver) dispatchToolCalls(ctx context.Context, reg *tools.Registry, guards *tools.ToolGuards, calls []model.ToolCall, cb Callbacks) []*tools.Result {
	for _, tc := range calls {
		if cb.OnToolCall != nil {
			cb.OnToolCall(tc.ID, tc.Name, tc.Arguments)
		}
	}

	results := make([]*tools.Result, len(calls))
	if len(calls) == 1 {
		results[0] = reg.Execute(ctx, guards, calls[0].Name, calls[0].Arguments)
	} else {
		type indexed struct {
			idx    int
			result *tools.Result
		}
		ch := make(chan indexed, len(calls))
		var wg sync.WaitGroup
		for i, tc := range calls {
			wg.Add(1)
			go func(i int, tc model.ToolCall) {
				defer wg.Done()
				ch <- indexed{idx: i, result: reg.Execute(ctx, guards, tc.Name, tc.Arguments)}
			}(i, tc)
		}
		go func() { wg.Wait(); close(ch) }()
		collected := make([]indexed, 0, len(calls))
		for r := range ch {
			collected = append(collected, r)
		}
		sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })
		for _, r := range collected {
			results[r.idx] = r.result
		}
	}

	for i, tc := range calls {
		if cb.OnToolResult != nil {
			cb.OnToolResult(tc.ID, results[i])
		}
	}
	return results
}

func wireCallbacks(ctx context.Context, cb Callbacks) context.Context {
	if cb.AskUser != nil {
		ctx = tools.WithAskUser(ctx, cb.AskUser)
	}
	if cb.ApproveCommand != nil {
		ctx = tools.WithApproveCommand(ctx, cb.ApproveCommand)
	}
	if cb.UpdateTodos != nil {
		ctx = tools.WithUpdateTodos(ctx, cb.UpdateTodos)
	}
	if cb.SpawnAgent != nil {
		ctx = tools.WithSpawnAgent(ctx, cb.SpawnAgent)
	}
	return ctx
}

func convertToolDefs(defs []tools.ToolDefinition) []model.ToolDefinition {
	out := make([]model.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = model.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}
