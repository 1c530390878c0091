package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SkillTool implements §4.2's skill(name) lookup over an ordered list of
// skill directories. Each call re-resolves against disk — skills are not
// cached process-wide, so edits to SKILL.md take effect on the next call.
type SkillTool struct {
	skillsDirs []string
}

func NewSkillTool(skillsDirs []string) *SkillTool {
	return &SkillTool{skillsDirs: skillsDirs}
}

func (t *SkillTool) Name() string        { return "skill" }
func (t *SkillTool) Description() string { return "Load a named skill's instructions" }
func (t *SkillTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
		"required": []string{"name"},
	}
}

func (t *SkillTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	name, _ := args["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrorResult(ErrValidation, "name is required")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return ErrorResult(ErrValidation, "name must be a bare skill identifier")
	}

	for _, dir := range t.skillsDirs {
		candidate := filepath.Join(dir, name, "SKILL.md")
		content, err := os.ReadFile(candidate)
		if err == nil {
			return SilentResult(string(content))
		}
		if !os.IsNotExist(err) {
			return ErrorResult(ErrUpstream, err.Error())
		}
	}
	return ErrorResult(ErrNotFound, fmt.Sprintf("no skill named %q found", name))
}
