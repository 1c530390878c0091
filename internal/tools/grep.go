package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GrepTool implements §4.2's grep, shelling out to an external content search
// engine (ripgrep). Ripgrep discovery/installation is an out-of-scope
// external collaborator (§1); this tool only knows how to invoke it safely.
type GrepTool struct {
	workspace string
	searchBin string // "rg" by default
}

func NewGrepTool(workspace string) *GrepTool {
	return &GrepTool{workspace: workspace, searchBin: "rg"}
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search file contents for a pattern" }
func (t *GrepTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern":       map[string]interface{}{"type": "string"},
			"path":          map[string]interface{}{"type": "string"},
			"caseSensitive": map[string]interface{}{"type": "boolean"},
			"fileGlob":      map[string]interface{}{"type": "string"},
			"contextLines":  map[string]interface{}{"type": "integer"},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult(ErrValidation, "pattern is required")
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = t.workspace
	}
	caseSensitive := true
	if v, ok := args["caseSensitive"].(bool); ok {
		caseSensitive = v
	}
	fileGlob, _ := args["fileGlob"].(string)
	contextLines := intArg(args, "contextLines", -1)

	gate := GateFromCtx(ctx)
	resolved, err := gate.ResolveAndAssertRead(path, t.workspace)
	if err != nil {
		return ErrorResult(ErrPolicyDenied, err.Error())
	}

	cmdArgs := []string{"--line-number"}
	if !caseSensitive {
		cmdArgs = append(cmdArgs, "-i")
	}
	if contextLines >= 0 {
		cmdArgs = append(cmdArgs, "-C", fmt.Sprintf("%d", contextLines))
	}
	if fileGlob != "" {
		cmdArgs = append(cmdArgs, "--glob", fileGlob)
	}
	// "--" always precedes the pattern so a pattern starting with "-" is
	// never parsed as a flag (§4.2, boundary behaviors in §8).
	cmdArgs = append(cmdArgs, "--", pattern, resolved)

	cmd := exec.CommandContext(ctx, t.searchBin, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() != nil {
		return ErrorResult(ErrCancelled, "cancelled during grep")
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// rg exits 1 for "no matches", not an error condition.
			if exitErr.ExitCode() == 1 && stderr.Len() == 0 {
				return SilentResult("No matches found.")
			}
			return ErrorResult(ErrUpstream, fmt.Sprintf("grep failed: %s", strings.TrimSpace(stderr.String())))
		}
		return ErrorResult(ErrUpstream, err.Error())
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return SilentResult("No matches found.")
	}
	return SilentResult(out)
}
