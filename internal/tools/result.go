package tools

// ErrorKind is the taxonomy from §7: every tool failure maps to exactly one
// of these kinds at the point it becomes a Result, never left as a bare error.
type ErrorKind string

const (
	ErrNone           ErrorKind = ""
	ErrValidation     ErrorKind = "ValidationError"
	ErrPolicyDenied   ErrorKind = "PolicyDenied"
	ErrNotFound       ErrorKind = "NotFound"
	ErrCancelled      ErrorKind = "Cancelled"
	ErrTimeout        ErrorKind = "Timeout"
	ErrRejected       ErrorKind = "Rejected"
	ErrUpstream       ErrorKind = "Upstream"
)

// Result is the unified return type from tool execution — ToolResult in §3.
// Ok(text) sets ForLLM with Kind == ErrNone; Err(kind, message) sets IsError
// and Kind. A tool never panics its way out of Execute; every failure inside
// a tool becomes a Result, and the turn is never aborted by it (§7).
type Result struct {
	ForLLM  string    `json:"for_llm"`
	ForUser string    `json:"for_user,omitempty"`
	Silent  bool      `json:"silent"`
	IsError bool      `json:"is_error"`
	Async   bool      `json:"async"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Err     error     `json:"-"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

// ErrorResult builds a structured Err(kind, message) result.
func ErrorResult(kind ErrorKind, message string) *Result {
	return &Result{ForLLM: message, IsError: true, Kind: kind}
}

// UpstreamResult wraps an unexpected subprocess/network/provider failure.
func UpstreamResult(message string) *Result {
	return ErrorResult(ErrUpstream, message)
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func AsyncResult(message string) *Result {
	return &Result{ForLLM: message, Async: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
