package tools

import (
	"context"
	"fmt"
	"strings"
)

const (
	maxSpawnDepth    = 2
	maxSpawnTaskChar = 20000
)

// SpawnAgentTool implements §4.2's spawnAgent(task, agentType), a recursive
// model call with a restricted tool subset per agentType. Sub-agents inherit
// the parent's cancellation handle, cannot call ask, and auto-approve
// commands classified Auto.
type SpawnAgentTool struct {
	full *Registry
}

func NewSpawnAgentTool(full *Registry) *SpawnAgentTool {
	return &SpawnAgentTool{full: full}
}

func (t *SpawnAgentTool) Name() string { return "spawnAgent" }
func (t *SpawnAgentTool) Description() string {
	return "Spawn a nested agent with a restricted tool set to perform a focused sub-task"
}
func (t *SpawnAgentTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task":      map[string]interface{}{"type": "string"},
			"agentType": map[string]interface{}{"type": "string", "enum": []string{"explore", "research", "general"}},
		},
		"required": []string{"task", "agentType"},
	}
}

func (t *SpawnAgentTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	task, _ := args["task"].(string)
	task = strings.TrimSpace(task)
	if task == "" {
		return ErrorResult(ErrValidation, "task is required")
	}
	if len(task) > maxSpawnTaskChar {
		return ErrorResult(ErrValidation, fmt.Sprintf("task exceeds %d character limit", maxSpawnTaskChar))
	}

	agentType := strArg(args, "agentType")
	if !validAgentType(agentType) {
		return ErrorResult(ErrValidation, fmt.Sprintf("unknown agentType %q", agentType))
	}

	depth := SpawnDepthFromCtx(ctx)
	if depth >= maxSpawnDepth {
		return ErrorResult(ErrPolicyDenied, fmt.Sprintf("spawn depth limit reached (%d/%d)", depth, maxSpawnDepth))
	}

	spawn := SpawnAgentFromCtx(ctx)
	if spawn == nil {
		return ErrorResult(ErrUpstream, "spawnAgent is unavailable in this context")
	}

	subset := t.full.Subset(agentTypeToolSubsets[agentType])

	subCtx := WithSpawnDepth(ctx, depth+1)
	subCtx = WithSubagent(subCtx, true)
	subCtx = withAutoApprove(subCtx)

	select {
	case <-ctx.Done():
		return ErrorResult(ErrCancelled, "cancelled before spawn")
	default:
	}

	final, err := spawn(subCtx, task, subset)
	if err != nil {
		if ctx.Err() != nil {
			return ErrorResult(ErrCancelled, "sub-agent cancelled")
		}
		return ErrorResult(ErrUpstream, fmt.Sprintf("sub-agent failed: %v", err))
	}
	return SilentResult(final)
}

// withAutoApprove installs an approval callback for sub-agents. The bash
// tool only consults it for commands that didn't already classify Auto, and
// a sub-agent has no human to ask, so every such command is rejected —
// Auto-classified commands run without ever reaching this callback.
func withAutoApprove(ctx context.Context) context.Context {
	return WithApproveCommand(ctx, func(ctx context.Context, command string, dangerous bool) (bool, error) {
		return false, nil
	})
}
