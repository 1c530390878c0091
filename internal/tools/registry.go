package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Tool is the contract every catalog entry implements. Parameters returns a
// JSON-Schema-shaped map used both for provider tool definitions and for
// input validation at dispatch time.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry holds the fixed tool catalog and runs the dispatch pipeline from
// §4.2: validate → log → cancellation check → execute → log → result.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

func (r *Registry) Unregister(name string) {
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns catalog tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Subset returns a new Registry containing only the named tools, preserving
// the subset's relative order. Used to build a spawnAgent agentType's
// restricted tool set (§4.2) without mutating the parent catalog.
func (r *Registry) Subset(names []string) *Registry {
	sub := NewRegistry()
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	for _, n := range r.order {
		if allowed[n] {
			sub.Register(r.tools[n])
		}
	}
	return sub
}

// ProviderDefs returns {name, description, parameters} triples for every
// tool in the catalog, the shape a Model Adapter request needs.
func (r *Registry) ProviderDefs() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, n := range r.order {
		t := r.tools[n]
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// ToolDefinition is the provider-facing tool schema (Model Adapter input).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolGuards are the per-turn policy checks from §9: express guards as a
// structure consulted by dispatch, not by wrapping tools at construction.
type ToolGuards struct {
	// RequiredFirstNonTodoToolCall, if set, must equal the name of the first
	// non-todoWrite tool call in the turn; violating calls are denied.
	RequiredFirstNonTodoToolCall string
	firstNonTodoSeen             bool

	// Guarded names a tool that is denied until its prerequisite (another
	// tool name, or "skill") has fired at least once this turn.
	Guarded map[string]string
	fired   map[string]bool
}

func NewToolGuards() *ToolGuards {
	return &ToolGuards{fired: make(map[string]bool)}
}

func (g *ToolGuards) observe(name string) {
	if g.fired == nil {
		g.fired = make(map[string]bool)
	}
	g.fired[name] = true
	if name != "todoWrite" {
		g.firstNonTodoSeen = true
	}
}

func (g *ToolGuards) check(name string, calledBefore bool) error {
	if g.RequiredFirstNonTodoToolCall != "" && name != "todoWrite" && !calledBefore && !g.firstNonTodoSeen {
		if name != g.RequiredFirstNonTodoToolCall {
			return fmt.Errorf("first non-todoWrite tool call must be %q, got %q", g.RequiredFirstNonTodoToolCall, name)
		}
	}
	if g.Guarded != nil {
		if prereq, ok := g.Guarded[name]; ok {
			if g.fired == nil || !g.fired[prereq] {
				return fmt.Errorf("tool %q requires %q to fire first", name, prereq)
			}
		}
	}
	return nil
}

// Execute runs the full dispatch pipeline for one tool call.
func (r *Registry) Execute(ctx context.Context, guards *ToolGuards, name string, args map[string]interface{}) *Result {
	t, ok := r.tools[name]
	if !ok {
		return ErrorResult(ErrNotFound, fmt.Sprintf("unknown tool %q", name))
	}

	if err := validateAgainstSchema(args, t.Parameters()); err != nil {
		return ErrorResult(ErrValidation, err.Error())
	}

	slog.Debug("tool>", "name", name, "args", safeArgsForLog(args))

	if guards != nil {
		calledBefore := guards.fired[name]
		if err := guards.check(name, calledBefore); err != nil {
			return ErrorResult(ErrPolicyDenied, err.Error())
		}
	}

	select {
	case <-ctx.Done():
		return ErrorResult(ErrCancelled, "cancelled before execution")
	default:
	}

	start := time.Now()
	result := safeExecute(ctx, t, args)
	slog.Debug("tool<", "name", name, "duration_ms", time.Since(start).Milliseconds(), "is_error", result.IsError)

	if guards != nil && !result.IsError {
		guards.observe(name)
	}
	return result
}

// safeExecute recovers a panicking tool into an Upstream Result so the turn
// is never aborted by a single misbehaving tool (§7).
func safeExecute(ctx context.Context, t Tool, args map[string]interface{}) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ErrorResult(ErrUpstream, fmt.Sprintf("tool %s panicked: %v", t.Name(), rec))
		}
	}()
	return t.Execute(ctx, args)
}

func safeArgsForLog(args map[string]interface{}) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "<unserializable>"
	}
	if len(b) > 400 {
		return string(b[:400]) + "…"
	}
	return string(b)
}

// validateAgainstSchema performs a minimal but real JSON-Schema-shaped check:
// required properties present, and declared types respected for primitives.
func validateAgainstSchema(args map[string]interface{}, schema map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	required, _ := schema["required"].([]string)
	for _, key := range required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	props, _ := schema["properties"].(map[string]interface{})
	for key, raw := range args {
		propSchema, ok := props[key].(map[string]interface{})
		if !ok {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !typeMatches(raw, wantType) {
			return fmt.Errorf("field %q: expected %s", key, wantType)
		}
	}
	return nil
}

func typeMatches(v interface{}, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number", "integer":
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]interface{})
		return ok
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	default:
		return true
	}
}
