package protocol

import "encoding/json"

// ServerType is the "type" discriminator on every event the server emits.
// Like ClientType, this set is closed.
type ServerType string

const (
	ServerHello               ServerType = "server_hello"
	ServerSessionSettings     ServerType = "session_settings"
	ServerObservabilityStatus ServerType = "observability_status"
	ServerProviderCatalog     ServerType = "provider_catalog"
	ServerProviderAuthMethods ServerType = "provider_auth_methods"
	ServerProviderStatus      ServerType = "provider_status"
	ServerPong                ServerType = "pong"
	ServerTodos               ServerType = "todos"
	ServerUserMessage         ServerType = "user_message" // echo of the client's own message
	ServerSessionBusy         ServerType = "session_busy"

	ServerAgentStarted         ServerType = "agent_started"
	ServerAgentChunk           ServerType = "agent_chunk"
	ServerAgentToolCall        ServerType = "agent_tool_call"
	ServerAgentToolResult      ServerType = "agent_tool_result"
	ServerAgentApprovalRequest ServerType = "agent_approval_request"
	ServerAgentAskRequest      ServerType = "agent_ask_request"
	ServerAgentFinished        ServerType = "agent_finished"
	ServerAgentStopped         ServerType = "agent_stopped"
	ServerAgentError           ServerType = "agent_error"

	ServerTools               ServerType = "tools"
	ServerCommands            ServerType = "commands"
	ServerConfigUpdated       ServerType = "config_updated"
	ServerSessionBackupState  ServerType = "session_backup_state"
	ServerHarnessContext      ServerType = "harness_context"
	ServerHarnessSLOResult    ServerType = "harness_slo_result"
	ServerObservabilityResult ServerType = "observability_query_result"
	ServerError               ServerType = "error"
)

// Error event sources (§4.4): which layer raised the error being reported.
const (
	ErrorSourceProtocol   = "protocol"
	ErrorSourceAgent      = "agent"
	ErrorSourceValidation = "validation"
)

// Error event codes used by the gateway itself (tool-level ErrorKinds from
// internal/tools surface separately, inside agent_tool_result payloads).
const (
	ErrorCodeInvalidJSON      = "invalid_json"
	ErrorCodeValidationFailed = "validation_failed"
	ErrorCodeUnknownType      = "unknown_type"
	ErrorCodeUnknownSession   = "unknown_session"
	ErrorCodeSessionBusy      = "session_busy"
	ErrorCodeInternal         = "internal"
)

// ClientFrame is the envelope every inbound WebSocket message is decoded
// into first. Data is re-decoded into a type-specific payload once Type has
// been checked against IsKnownClientType.
type ClientFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ServerFrame is the envelope every outbound WebSocket message is encoded
// from. SessionID is populated on every frame once server_hello has assigned
// one, including every error frame (§4.4).
type ServerFrame struct {
	Type      ServerType  `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func NewFrame(t ServerType, sessionID string, data interface{}) ServerFrame {
	return ServerFrame{Type: t, SessionID: sessionID, Data: data}
}

// ErrorPayload is the Data shape of every "error" ServerFrame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

func NewErrorFrame(sessionID, source, code, message string) ServerFrame {
	return NewFrame(ServerError, sessionID, ErrorPayload{Code: code, Source: source, Message: message})
}

// --- client payload shapes, decoded from ClientFrame.Data ---

type HelloPayload struct {
	ProtocolVersion int    `json:"protocolVersion"`
	AgentName       string `json:"agentName,omitempty"`
	ResumeSessionID string `json:"resumeSessionId,omitempty"`
}

type UserMessagePayload struct {
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}

type ApprovalResponsePayload struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
}

type AskResponsePayload struct {
	RequestID string            `json:"requestId"`
	Answers   map[string]string `json:"answers"`
}

type SetEnableMCPPayload struct {
	Enabled bool `json:"enabled"`
}

type SetModelPayload struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model"`
}

type ExecuteCommandPayload struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

type SessionBackupCheckpointPayload struct {
	Label string `json:"label,omitempty"`
}

type HarnessContextSetPayload struct {
	ReportOnly bool           `json:"reportOnly"`
	Strict     bool           `json:"strict"`
	Extra      map[string]any `json:"extra,omitempty"`
}

type HarnessSLOEvaluatePayload struct {
	SLO string `json:"slo"`
	// Window, if set, is a cron expression (e.g. "*/5 * * * *") bounding
	// the SLO evaluation window; the gateway validates it and reports the
	// tick boundaries around fromMs as windowFromMs/windowToMs.
	Window string `json:"window,omitempty"`
	FromMs int64  `json:"fromMs,omitempty"`
	ToMs   int64  `json:"toMs,omitempty"`
}

type ObservabilityQueryPayload struct {
	Query  string `json:"query"`
	Since  string `json:"since,omitempty"`
	FromMs int64  `json:"fromMs,omitempty"`
	ToMs   int64  `json:"toMs,omitempty"`
}

// --- server payload shapes, set as ServerFrame.Data ---

type ServerHelloPayload struct {
	ProtocolVersion int    `json:"protocolVersion"`
	SessionID       string `json:"sessionId"`
	ServerVersion   string `json:"serverVersion,omitempty"`
}

type SessionBusyPayload struct {
	Busy bool `json:"busy"`
}

type AgentChunkPayload struct {
	Delta string `json:"delta"`
}

type AgentToolCallPayload struct {
	CallID string                 `json:"callId"`
	Name   string                 `json:"name"`
	Args   map[string]interface{} `json:"args"`
}

type AgentToolResultPayload struct {
	CallID  string `json:"callId"`
	ForLLM  string `json:"forLlm"`
	ForUser string `json:"forUser,omitempty"`
	IsError bool   `json:"isError"`
	Kind    string `json:"kind,omitempty"`
}

type AgentApprovalRequestPayload struct {
	RequestID string `json:"requestId"`
	Command   string `json:"command"`
	Dangerous bool   `json:"dangerous"`
}

type AgentAskRequestPayload struct {
	RequestID string              `json:"requestId"`
	Questions []AskRequestQuestion `json:"questions"`
}

type AskRequestQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

type AgentFinishedPayload struct {
	FinalText string `json:"finalText"`
	Steps     int    `json:"steps"`
}

type AgentStoppedPayload struct {
	Reason string `json:"reason"`
}

type AgentErrorPayload struct {
	Message string `json:"message"`
}

type TodosPayload struct {
	Todos []TodoPayloadItem `json:"todos"`
}

type TodoPayloadItem struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm,omitempty"`
}
