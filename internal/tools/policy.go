package tools

// Sub-agent tool subsets per §4.2's spawnAgent(task, agentType). Each
// agentType gets a fixed, restricted view of the full catalog — narrower
// than the teacher's free-form group system, which this replaces.
var agentTypeToolSubsets = map[string][]string{
	"explore":  {"read", "glob", "grep", "bash"},
	"research": {"read", "webSearch", "webFetch"},
	"general":  {"read", "write", "edit", "glob", "grep", "webSearch", "webFetch", "notebookEdit", "skill", "memory"},
}

func validAgentType(agentType string) bool {
	_, ok := agentTypeToolSubsets[agentType]
	return ok
}
