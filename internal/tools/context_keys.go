package tools

import (
	"context"

	"github.com/localcoworker/engine/internal/config"
	"github.com/localcoworker/engine/internal/pathgate"
)

// Tool execution context keys. Values are injected by the Turn Driver once
// per turn (or once per spawnAgent recursion) and read by individual tools
// during Execute, keeping tools themselves free of per-session mutable state.

type toolContextKey string

const (
	ctxAgentConfig  toolContextKey = "tool_agent_config"
	ctxGate         toolContextKey = "tool_gate"
	ctxCancel       toolContextKey = "tool_cancel"
	ctxAskUser      toolContextKey = "tool_ask_user"
	ctxApproveCmd   toolContextKey = "tool_approve_cmd"
	ctxUpdateTodos  toolContextKey = "tool_update_todos"
	ctxSpawnDepth   toolContextKey = "tool_spawn_depth"
	ctxIsSubagent   toolContextKey = "tool_is_subagent"
	ctxSkillsLoaded toolContextKey = "tool_skills_loaded"
	ctxSpawnAgent   toolContextKey = "tool_spawn_agent"
)

func WithAgentConfig(ctx context.Context, cfg *config.AgentConfig) context.Context {
	return context.WithValue(ctx, ctxAgentConfig, cfg)
}

func AgentConfigFromCtx(ctx context.Context) *config.AgentConfig {
	v, _ := ctx.Value(ctxAgentConfig).(*config.AgentConfig)
	return v
}

func WithGate(ctx context.Context, g *pathgate.Gate) context.Context {
	return context.WithValue(ctx, ctxGate, g)
}

func GateFromCtx(ctx context.Context) *pathgate.Gate {
	v, _ := ctx.Value(ctxGate).(*pathgate.Gate)
	return v
}

// AskUserFunc routes a clarifying question to the session's askUser callback.
// questions carries one or more {question, options} pairs (§4.2 ask tool).
type AskUserFunc func(ctx context.Context, questions []AskQuestion) (map[string]string, error)

type AskQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

func WithAskUser(ctx context.Context, fn AskUserFunc) context.Context {
	return context.WithValue(ctx, ctxAskUser, fn)
}

func AskUserFromCtx(ctx context.Context) AskUserFunc {
	v, _ := ctx.Value(ctxAskUser).(AskUserFunc)
	return v
}

// ApproveCommandFunc routes a classified shell command to the session's
// approval flow. It returns false when the human (or auto-policy) rejects.
type ApproveCommandFunc func(ctx context.Context, command string, dangerous bool) (bool, error)

func WithApproveCommand(ctx context.Context, fn ApproveCommandFunc) context.Context {
	return context.WithValue(ctx, ctxApproveCmd, fn)
}

func ApproveCommandFromCtx(ctx context.Context) ApproveCommandFunc {
	v, _ := ctx.Value(ctxApproveCmd).(ApproveCommandFunc)
	return v
}

// UpdateTodosFunc is called by todoWrite with the whole overwritten list.
type UpdateTodosFunc func(ctx context.Context, todos []TodoItem) error

func WithUpdateTodos(ctx context.Context, fn UpdateTodosFunc) context.Context {
	return context.WithValue(ctx, ctxUpdateTodos, fn)
}

func UpdateTodosFromCtx(ctx context.Context) UpdateTodosFunc {
	v, _ := ctx.Value(ctxUpdateTodos).(UpdateTodosFunc)
	return v
}

// WithSpawnDepth / SpawnDepthFromCtx track spawnAgent's explicit depth
// counter (§9: "express as an explicit depth counter on the TurnContext;
// never via runtime stack inspection").
func WithSpawnDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, ctxSpawnDepth, depth)
}

func SpawnDepthFromCtx(ctx context.Context) int {
	v, _ := ctx.Value(ctxSpawnDepth).(int)
	return v
}

func WithSubagent(ctx context.Context, isSubagent bool) context.Context {
	return context.WithValue(ctx, ctxIsSubagent, isSubagent)
}

func IsSubagentFromCtx(ctx context.Context) bool {
	v, _ := ctx.Value(ctxIsSubagent).(bool)
	return v
}

// SpawnAgentFunc runs a nested model turn against a restricted tool registry
// and returns the sub-agent's final text. The Turn Driver wires this in;
// the tools package never imports it directly, avoiding an import cycle.
type SpawnAgentFunc func(ctx context.Context, task string, tools *Registry) (string, error)

func WithSpawnAgent(ctx context.Context, fn SpawnAgentFunc) context.Context {
	return context.WithValue(ctx, ctxSpawnAgent, fn)
}

func SpawnAgentFromCtx(ctx context.Context) SpawnAgentFunc {
	v, _ := ctx.Value(ctxSpawnAgent).(SpawnAgentFunc)
	return v
}
