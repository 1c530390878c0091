package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	defaultReadOffset   = 1
	defaultReadLimit    = 2000
	maxReadLineChars    = 2000
)

// ReadTool implements §4.2's read(filePath, offset?=1, limit?=2000).
type ReadTool struct {
	workspace string
}

func NewReadTool(workspace string) *ReadTool {
	return &ReadTool{workspace: workspace}
}

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Description() string { return "Read a file's contents as line-numbered text" }
func (t *ReadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filePath": map[string]interface{}{"type": "string"},
			"offset":   map[string]interface{}{"type": "integer"},
			"limit":    map[string]interface{}{"type": "integer"},
		},
		"required": []string{"filePath"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["filePath"].(string)
	if path == "" {
		return ErrorResult(ErrValidation, "filePath is required")
	}
	offset := intArg(args, "offset", defaultReadOffset)
	if offset < 1 {
		offset = 1
	}
	limit := intArg(args, "limit", defaultReadLimit)
	if limit < 1 {
		limit = defaultReadLimit
	}

	gate := GateFromCtx(ctx)
	resolved, err := gate.ResolveAndAssertRead(path, t.workspace)
	if err != nil {
		return ErrorResult(ErrPolicyDenied, err.Error())
	}

	f, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(ErrNotFound, fmt.Sprintf("file not found: %s", path))
		}
		return ErrorResult(ErrUpstream, err.Error())
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	if info.Size() == 0 {
		return SilentResult("1\t")
	}

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	emitted := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ErrorResult(ErrCancelled, "cancelled during read")
		default:
		}
		lineNo++
		if lineNo < offset {
			continue
		}
		if emitted >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > maxReadLineChars {
			line = line[:maxReadLineChars] + "…"
		}
		fmt.Fprintf(&b, "%d\t%s\n", lineNo, line)
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	if emitted == 0 {
		return SilentResult("")
	}
	return SilentResult(strings.TrimSuffix(b.String(), "\n"))
}

func intArg(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return def
	}
}
