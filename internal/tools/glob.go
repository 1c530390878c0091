package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// GlobTool implements §4.2's glob(pattern, cwd?, maxResults?).
type GlobTool struct {
	workspace string
}

func NewGlobTool(workspace string) *GlobTool {
	return &GlobTool{workspace: workspace}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files matching a glob pattern" }
func (t *GlobTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern":    map[string]interface{}{"type": "string"},
			"cwd":        map[string]interface{}{"type": "string"},
			"maxResults": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"pattern"},
	}
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult(ErrValidation, "pattern is required")
	}
	if filepath.IsAbs(pattern) {
		return ErrorResult(ErrPolicyDenied, "absolute glob patterns are not allowed")
	}
	if strings.Contains(pattern, "..") {
		return ErrorResult(ErrPolicyDenied, "glob patterns must not escape the working directory with \"..\"")
	}
	// Brace expansion is treated literally — a pattern containing braces is
	// valid filepath.Glob syntax (matches the literal character), matching §4.2.

	cwd, _ := args["cwd"].(string)
	if cwd == "" {
		cwd = t.workspace
	}
	maxResults := intArg(args, "maxResults", 0)

	gate := GateFromCtx(ctx)
	resolvedCwd, err := gate.ResolveAndAssertRead(cwd, t.workspace)
	if err != nil {
		return ErrorResult(ErrPolicyDenied, err.Error())
	}

	matches, err := filepath.Glob(filepath.Join(resolvedCwd, pattern))
	if err != nil {
		return ErrorResult(ErrValidation, fmt.Sprintf("invalid pattern: %v", err))
	}

	var rel []string
	for _, m := range matches {
		select {
		case <-ctx.Done():
			return ErrorResult(ErrCancelled, "cancelled during glob")
		default:
		}
		canonical, err := gate.Resolve(m, resolvedCwd)
		if err != nil {
			continue
		}
		if err := gate.AssertReadAllowed(canonical); err != nil {
			continue // symlink escape — silently excluded, not surfaced as a hit
		}
		r, err := filepath.Rel(resolvedCwd, m)
		if err != nil {
			r = m
		}
		rel = append(rel, r)
	}
	sort.Strings(rel)

	truncated := false
	if maxResults > 0 && len(rel) > maxResults {
		rel = rel[:maxResults]
		truncated = true
	}

	if len(rel) == 0 {
		return SilentResult("No matches found.")
	}
	out := strings.Join(rel, "\n")
	if truncated {
		out += fmt.Sprintf("\n(truncated to %d matches)", maxResults)
	}
	return SilentResult(out)
}
