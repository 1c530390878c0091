// Package protocol defines the wire vocabulary of the Session Server's single
// WebSocket endpoint: the closed set of frame types clients may send and the
// closed set of event types the server emits in response.
package protocol

// ClientType is the "type" discriminator on every frame a client sends. The
// set is closed — a frame carrying a type outside it is rejected with an
// error event (code unknown_type), never silently ignored.
type ClientType string

const (
	ClientHello            ClientType = "client_hello"
	ClientPing             ClientType = "ping"
	ClientUserMessage      ClientType = "user_message"
	ClientCancel           ClientType = "cancel"
	ClientReset            ClientType = "reset"
	ClientApprovalResponse ClientType = "approval_response"
	ClientAskResponse      ClientType = "ask_response"
	ClientSetEnableMCP     ClientType = "set_enable_mcp"
	ClientSetModel         ClientType = "set_model"
	ClientListTools        ClientType = "list_tools"
	ClientListCommands     ClientType = "list_commands"
	ClientExecuteCommand   ClientType = "execute_command"

	ClientSessionBackupGet        ClientType = "session_backup_get"
	ClientSessionBackupCheckpoint ClientType = "session_backup_checkpoint"
	ClientHarnessContextSet       ClientType = "harness_context_set"
	ClientHarnessSLOEvaluate      ClientType = "harness_slo_evaluate"
	ClientObservabilityQuery      ClientType = "observability_query"
)

// knownClientTypes backs IsKnownClientType with an O(1) membership check.
var knownClientTypes = map[ClientType]bool{
	ClientHello:                   true,
	ClientPing:                    true,
	ClientUserMessage:             true,
	ClientCancel:                  true,
	ClientReset:                   true,
	ClientApprovalResponse:        true,
	ClientAskResponse:             true,
	ClientSetEnableMCP:            true,
	ClientSetModel:                true,
	ClientListTools:               true,
	ClientListCommands:            true,
	ClientExecuteCommand:          true,
	ClientSessionBackupGet:        true,
	ClientSessionBackupCheckpoint: true,
	ClientHarnessContextSet:       true,
	ClientHarnessSLOEvaluate:      true,
	ClientObservabilityQuery:      true,
}

// IsKnownClientType reports whether t belongs to the closed client frame
// vocabulary above.
func IsKnownClientType(t string) bool {
	return knownClientTypes[ClientType(t)]
}
