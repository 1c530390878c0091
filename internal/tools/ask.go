package tools

import (
	"context"
	"strings"
)

// AskTool implements §4.2's ask(questions), routing one or more clarifying
// questions through the session's askUser callback and returning the user's
// answers keyed by question text.
type AskTool struct{}

func NewAskTool() *AskTool { return &AskTool{} }

func (t *AskTool) Name() string        { return "ask" }
func (t *AskTool) Description() string { return "Ask the user one or more clarifying questions" }
func (t *AskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"questions": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"question": map[string]interface{}{"type": "string"},
						"options":  map[string]interface{}{"type": "array"},
					},
					"required": []string{"question"},
				},
			},
		},
		"required": []string{"questions"},
	}
}

func (t *AskTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if IsSubagentFromCtx(ctx) {
		return ErrorResult(ErrPolicyDenied, "sub-agents cannot call ask")
	}
	raw, ok := args["questions"].([]interface{})
	if !ok || len(raw) == 0 {
		return ErrorResult(ErrValidation, "questions must be a non-empty array")
	}

	questions := make([]AskQuestion, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return ErrorResult(ErrValidation, "each question must be an object")
		}
		text := strings.TrimSpace(strArg(m, "question"))
		if text == "" {
			return ErrorResult(ErrValidation, "question text must not be blank")
		}
		var options []string
		if rawOpts, ok := m["options"].([]interface{}); ok {
			for _, o := range rawOpts {
				if s, ok := o.(string); ok && strings.TrimSpace(s) != "" {
					options = append(options, s)
				}
			}
		}
		questions = append(questions, AskQuestion{Question: text, Options: options})
	}

	askUser := AskUserFromCtx(ctx)
	if askUser == nil {
		return ErrorResult(ErrUpstream, "ask is unavailable in this context")
	}

	answers, err := askUser(ctx, questions)
	if err != nil {
		if ctx.Err() != nil {
			return ErrorResult(ErrCancelled, "ask cancelled")
		}
		return ErrorResult(ErrUpstream, err.Error())
	}

	var b strings.Builder
	for _, q := range questions {
		b.WriteString(q.Question)
		b.WriteString(": ")
		b.WriteString(answers[q.Question])
		b.WriteString("\n")
	}
	return SilentResult(strings.TrimSuffix(b.String(), "\n"))
}
