package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/adhocore/gronx"

	"github.com/localcoworker/engine/internal/config"
	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/pathgate"
	"github.com/localcoworker/engine/internal/session"
	"github.com/localcoworker/engine/internal/telemetry"
	"github.com/localcoworker/engine/internal/tools"
	"github.com/localcoworker/engine/internal/turn"
	"github.com/localcoworker/engine/pkg/protocol"
)

// Client owns one WebSocket connection: a read goroutine decoding inbound
// frames and a single writer goroutine serializing outbound frames, so the
// write side stays ordered per session (§5).
type Client struct {
	conn      *websocket.Conn
	session   *session.Session
	tools     *tools.Registry
	driver    *turn.Driver
	snapshots session.SnapshotStore
	recorder  *telemetry.RecordingHooks

	limiter *rate.Limiter

	writeMu sync.Mutex // serializes conn.WriteJSON calls
	send    chan protocol.ServerFrame
	done    chan struct{}
}

func newClient(conn *websocket.Conn, sess *session.Session, reg *tools.Registry, driver *turn.Driver, snapshots session.SnapshotStore) *Client {
	return &Client{
		conn:      conn,
		session:   sess,
		tools:     reg,
		driver:    driver,
		snapshots: snapshots,
		limiter:   rate.NewLimiter(rate.Limit(5), 10),
		send:      make(chan protocol.ServerFrame, 64),
		done:      make(chan struct{}),
	}
}

// run is the connection's main loop: Open -> hello + snapshots -> Ready
// read/dispatch loop -> Closed on return.
func (c *Client) run() {
	go c.writePump()
	defer close(c.done)
	defer c.conn.Close()

	c.sendHello()
	c.session.MarkReady()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := c.limiter.Wait(context.Background()); err != nil {
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Client) writePump() {
	for frame := range c.send {
		c.writeMu.Lock()
		err := c.conn.WriteJSON(frame)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Client) emit(t protocol.ServerType, data interface{}) {
	select {
	case c.send <- protocol.NewFrame(t, c.session.ID, data):
	case <-c.done:
	}
}

func (c *Client) emitError(source, code, message string) {
	c.emit(protocol.ServerError, protocol.ErrorPayload{Code: code, Source: source, Message: message})
}

func (c *Client) sendHello() {
	c.emit(protocol.ServerHello, protocol.ServerHelloPayload{
		ProtocolVersion: ProtocolVersion,
		SessionID:       c.session.ID,
	})
	provider, modelName := c.session.Model()
	c.emit(protocol.ServerSessionSettings, map[string]interface{}{
		"provider":         provider,
		"model":            modelName,
		"workingDirectory": c.session.Config.WorkingDirectory,
		"outputDirectory":  c.session.Config.OutputDirectory,
	})
	c.emit(protocol.ServerObservabilityStatus, map[string]interface{}{"enabled": false})
	c.emit(protocol.ServerProviderCatalog, map[string]interface{}{"providers": []string{provider}})
	c.emit(protocol.ServerProviderAuthMethods, map[string]interface{}{"methods": []string{}})
	c.emit(protocol.ServerProviderStatus, map[string]interface{}{"provider": provider, "connected": true})
}

// handleFrame decodes and dispatches exactly one inbound message, per the
// Ready-state rules in spec.md §4.4.
func (c *Client) handleFrame(raw []byte) {
	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		c.emitError(protocol.ErrorSourceProtocol, protocol.ErrorCodeInvalidJSON, "Expected object, got invalid JSON")
		return
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		c.emitError(protocol.ErrorSourceProtocol, protocol.ErrorCodeValidationFailed, "Expected object")
		return
	}

	var frame protocol.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		c.emitError(protocol.ErrorSourceProtocol, protocol.ErrorCodeValidationFailed, "Expected object with string type")
		return
	}
	if !protocol.IsKnownClientType(frame.Type) {
		c.emitError(protocol.ErrorSourceProtocol, protocol.ErrorCodeUnknownType, fmt.Sprintf("Unknown type %q", frame.Type))
		return
	}
	if frame.SessionID != "" && frame.SessionID != c.session.ID {
		c.emitError(protocol.ErrorSourceProtocol, protocol.ErrorCodeUnknownSession, fmt.Sprintf("Unknown sessionId %q", frame.SessionID))
		return
	}

	switch protocol.ClientType(frame.Type) {
	case protocol.ClientHello:
		// already greeted at connect time; a repeat hello is a harmless no-op
	case protocol.ClientPing:
		c.emit(protocol.ServerPong, nil)
	case protocol.ClientUserMessage:
		c.handleUserMessage(frame.Data)
	case protocol.ClientCancel:
		c.session.Cancel()
	case protocol.ClientReset:
		c.handleReset()
	case protocol.ClientApprovalResponse:
		c.handleApprovalResponse(frame.Data)
	case protocol.ClientAskResponse:
		c.handleAskResponse(frame.Data)
	case protocol.ClientSetEnableMCP:
		c.handleSetEnableMCP(frame.Data)
	case protocol.ClientSetModel:
		c.handleSetModel(frame.Data)
	case protocol.ClientListTools:
		c.handleListTools()
	case protocol.ClientListCommands:
		c.emit(protocol.ServerCommands, map[string]interface{}{"commands": []string{}})
	case protocol.ClientExecuteCommand:
		c.handleExecuteCommand(frame.Data)
	case protocol.ClientSessionBackupGet:
		c.handleSessionBackupGet()
	case protocol.ClientSessionBackupCheckpoint:
		c.handleSessionBackupCheckpoint(frame.Data)
	case protocol.ClientHarnessContextSet:
		c.handleHarnessContextSet(frame.Data)
	case protocol.ClientHarnessSLOEvaluate:
		c.handleHarnessSLOEvaluate(frame.Data)
	case protocol.ClientObservabilityQuery:
		c.handleObservabilityQuery(frame.Data)
	default:
		c.emitError(protocol.ErrorSourceProtocol, protocol.ErrorCodeUnknownType, fmt.Sprintf("Unknown type %q", frame.Type))
	}
}

func (c *Client) handleReset() {
	if c.session.IsBusy() {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeSessionBusy, "cannot reset while a turn is in progress")
		return
	}
	c.session.SetTodos(nil)
	c.emit(protocol.ServerTodos, protocol.TodosPayload{})
	c.emit(protocol.ServerConfigUpdated, map[string]interface{}{"reset": true})
}

func (c *Client) handleSetEnableMCP(data json.RawMessage) {
	var p protocol.SetEnableMCPPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, "invalid set_enable_mcp payload")
		return
	}
	c.session.SetEnableMCP(p.Enabled)
	c.emit(protocol.ServerConfigUpdated, map[string]interface{}{"enableMcp": p.Enabled})
}

func (c *Client) handleSetModel(data json.RawMessage) {
	var p protocol.SetModelPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, "invalid set_model payload")
		return
	}
	if err := c.session.SetModel(p.Provider, p.Model); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeSessionBusy, err.Error())
		return
	}
	c.emit(protocol.ServerConfigUpdated, map[string]interface{}{"model": p.Model, "provider": p.Provider})
}

func (c *Client) handleListTools() {
	defs := c.tools.ProviderDefs()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	c.emit(protocol.ServerTools, map[string]interface{}{"tools": names})
}

// handleExecuteCommand runs a named slash-command-style tool invocation
// outside of a model turn — a direct client-triggered tool call.
func (c *Client) handleExecuteCommand(data json.RawMessage) {
	var p protocol.ExecuteCommandPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, "invalid execute_command payload")
		return
	}
	args := make(map[string]interface{}, len(p.Args))
	for k, v := range p.Args {
		args[k] = v
	}
	result := c.tools.Execute(context.Background(), nil, p.Name, args)
	c.emit(protocol.ServerAgentToolResult, protocol.AgentToolResultPayload{
		CallID: p.Name, ForLLM: result.ForLLM, ForUser: result.ForUser, IsError: result.IsError, Kind: string(result.Kind),
	})
}

func (c *Client) handleApprovalResponse(data json.RawMessage) {
	var p protocol.ApprovalResponsePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, "invalid approval_response payload")
		return
	}
	if err := c.session.ResolveApproval(p.RequestID, p.Approved); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, err.Error())
	}
}

func (c *Client) handleAskResponse(data json.RawMessage) {
	var p protocol.AskResponsePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, "invalid ask_response payload")
		return
	}
	if err := c.session.ResolveAsk(p.RequestID, p.Answers); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, err.Error())
	}
}

func (c *Client) handleSessionBackupGet() {
	if c.snapshots == nil {
		c.emit(protocol.ServerSessionBackupState, map[string]interface{}{"status": "error", "message": "no snapshot store configured"})
		return
	}
	snap, err := c.snapshots.Get(context.Background(), c.session.ID)
	if err != nil {
		c.emit(protocol.ServerSessionBackupState, map[string]interface{}{"status": "error", "message": err.Error()})
		return
	}
	if snap == nil {
		c.emit(protocol.ServerSessionBackupState, map[string]interface{}{"status": "ok", "found": false})
		return
	}
	c.emit(protocol.ServerSessionBackupState, map[string]interface{}{"status": "ok", "found": true, "snapshot": snap})
}

func (c *Client) handleSessionBackupCheckpoint(data json.RawMessage) {
	var p protocol.SessionBackupCheckpointPayload
	_ = json.Unmarshal(data, &p)
	if c.snapshots == nil {
		c.emit(protocol.ServerSessionBackupState, map[string]interface{}{"status": "error", "message": "no snapshot store configured"})
		return
	}
	snap := session.Snapshot{
		SessionID: c.session.ID,
		Label:     p.Label,
		Messages:  c.session.History(),
		Todos:     c.session.TodoSnapshot(),
		SavedAt:   time.Now(),
	}
	if err := c.snapshots.Checkpoint(context.Background(), snap); err != nil {
		c.emit(protocol.ServerSessionBackupState, map[string]interface{}{"status": "error", "message": err.Error()})
		return
	}
	c.emit(protocol.ServerSessionBackupState, map[string]interface{}{"status": "ok", "checkpointed": true})
}

func (c *Client) handleHarnessContextSet(data json.RawMessage) {
	var p protocol.HarnessContextSetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, "invalid harness_context_set payload")
		return
	}
	if p.Strict {
		c.session.Config.HarnessMode = config.HarnessStrict
	} else {
		c.session.Config.HarnessMode = config.HarnessReportOnly
	}
	c.emit(protocol.ServerHarnessContext, map[string]interface{}{"reportOnly": p.ReportOnly, "strict": p.Strict})
}

// handleHarnessSLOEvaluate and handleObservabilityQuery always respond with
// a result envelope, never by raising (§4.4 "Harness extensions"); on a
// downstream failure the fromMs/toMs the caller asked about are preserved
// in the error envelope rather than dropped.
func (c *Client) handleHarnessSLOEvaluate(data json.RawMessage) {
	var p protocol.HarnessSLOEvaluatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emit(protocol.ServerHarnessSLOResult, map[string]interface{}{"status": "error", "message": "invalid payload"})
		return
	}

	result := map[string]interface{}{"slo": p.SLO, "fromMs": p.FromMs, "toMs": p.ToMs}

	// p.Window, when set, is a cron expression bounding the evaluation
	// window (e.g. "*/5 * * * *"); gronx validates it and reports the tick
	// boundaries either side of fromMs (or of now when fromMs is 0) as
	// windowFromMs/windowToMs. fromMs/toMs are echoed unchanged.
	if p.Window != "" {
		if !gronx.New().IsValid(p.Window) {
			result["status"] = "error"
			result["message"] = fmt.Sprintf("invalid window expression %q", p.Window)
			c.emit(protocol.ServerHarnessSLOResult, result)
			return
		}
		ref := time.UnixMilli(p.FromMs)
		if p.FromMs == 0 {
			ref = time.Now()
		}
		if prev, err := gronx.PrevTickBefore(p.Window, ref, true); err == nil {
			result["windowFromMs"] = prev.UnixMilli()
		}
		if next, err := gronx.NextTickAfter(p.Window, ref, true); err == nil {
			result["windowToMs"] = next.UnixMilli()
		}
	}

	result["status"] = "ok"
	result["met"] = true
	c.emit(protocol.ServerHarnessSLOResult, result)
}

func (c *Client) handleObservabilityQuery(data json.RawMessage) {
	var p protocol.ObservabilityQueryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emit(protocol.ServerObservabilityResult, map[string]interface{}{"status": "error", "message": "invalid payload"})
		return
	}

	result := map[string]interface{}{"query": p.Query, "fromMs": p.FromMs, "toMs": p.ToMs}

	if c.recorder == nil {
		result["status"] = "error"
		result["message"] = "no observability recorder configured"
		c.emit(protocol.ServerObservabilityResult, result)
		return
	}

	var since time.Time
	if p.FromMs > 0 {
		since = time.UnixMilli(p.FromMs)
	}
	events := c.recorder.Query(p.Query, since)
	if p.ToMs > 0 {
		cutoff := time.UnixMilli(p.ToMs)
		filtered := events[:0]
		for _, ev := range events {
			if !ev.At.After(cutoff) {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	result["status"] = "ok"
	result["results"] = events
	c.emit(protocol.ServerObservabilityResult, result)
}

// handleUserMessage runs one full turn through the Turn Driver, preserving
// the event ordering guarantee from spec.md §5: session_busy(true) ->
// agent_started -> zero or more agent_* stream events -> exactly one
// terminal event -> session_busy(false).
func (c *Client) handleUserMessage(data json.RawMessage) {
	var p protocol.UserMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeValidationFailed, "invalid user_message payload")
		return
	}
	if c.session.IsBusy() {
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeSessionBusy, "a turn is already in progress")
		return
	}

	c.emit(protocol.ServerUserMessage, map[string]interface{}{"text": p.Text})

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.session.BeginTurn(cancel); err != nil {
		cancel()
		c.emitError(protocol.ErrorSourceValidation, protocol.ErrorCodeSessionBusy, err.Error())
		return
	}

	go c.runTurn(ctx, p.Text)
}

func (c *Client) runTurn(ctx context.Context, userText string) {
	defer c.session.EndTurn()

	c.emit(protocol.ServerSessionBusy, protocol.SessionBusyPayload{Busy: true})
	c.emit(protocol.ServerAgentStarted, nil)

	c.session.AddMessage(model.Message{Role: "user", Content: userText})
	provider, modelName := c.session.Model()

	// File tools resolve paths through a Gate built from this session's
	// AgentConfig; write roots are a subset of read roots.
	agentCfg := c.session.Config
	readRoots := append([]string{agentCfg.WorkingDirectory, agentCfg.OutputDirectory, agentCfg.UploadsDirectory,
		agentCfg.ProjectAgentDir, agentCfg.UserAgentDir, agentCfg.BuiltInDir}, agentCfg.SkillsDirs...)
	readRoots = append(append(readRoots, agentCfg.MemoryDirs...), agentCfg.ConfigDirs...)
	writeRoots := []string{agentCfg.WorkingDirectory, agentCfg.OutputDirectory, agentCfg.UploadsDirectory, agentCfg.ProjectAgentDir}
	ctx = tools.WithGate(ctx, pathgate.New(readRoots, writeRoots))

	cb := turn.Callbacks{
		ApproveCommand: func(ctx context.Context, command string, dangerous bool) (bool, error) {
			requestID, wait := c.session.RegisterApproval(command, dangerous)
			c.emit(protocol.ServerAgentApprovalRequest, protocol.AgentApprovalRequestPayload{RequestID: requestID, Command: command, Dangerous: dangerous})
			select {
			case approved := <-wait:
				return approved, nil
			case <-ctx.Done():
				return false, ctx.Err()
			}
		},
		AskUser: func(ctx context.Context, questions []tools.AskQuestion) (map[string]string, error) {
			reqQuestions := make([]protocol.AskRequestQuestion, len(questions))
			for i, q := range questions {
				reqQuestions[i] = protocol.AskRequestQuestion{Question: q.Question, Options: q.Options}
			}
			requestID, wait := c.session.RegisterAsk(questions)
			c.emit(protocol.ServerAgentAskRequest, protocol.AgentAskRequestPayload{RequestID: requestID, Questions: reqQuestions})
			select {
			case answers := <-wait:
				return answers, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		UpdateTodos: func(ctx context.Context, todos []tools.TodoItem) error {
			c.session.SetTodos(todos)
			payload := make([]protocol.TodoPayloadItem, len(todos))
			for i, t := range todos {
				payload[i] = protocol.TodoPayloadItem{Content: t.Content, Status: t.Status, ActiveForm: t.ActiveForm}
			}
			c.emit(protocol.ServerTodos, protocol.TodosPayload{Todos: payload})
			return nil
		},
		OnChunk: func(text string) {
			c.emit(protocol.ServerAgentChunk, protocol.AgentChunkPayload{Delta: text})
		},
		OnToolCall: func(callID, name string, args map[string]interface{}) {
			c.emit(protocol.ServerAgentToolCall, protocol.AgentToolCallPayload{CallID: callID, Name: name, Args: args})
		},
		OnToolResult: func(callID string, result *tools.Result) {
			c.emit(protocol.ServerAgentToolResult, protocol.AgentToolResultPayload{
				CallID: callID, ForLLM: result.ForLLM, ForUser: result.ForUser, IsError: result.IsError, Kind: string(result.Kind),
			})
		},
	}

	result := c.driver.Run(ctx, turn.Request{
		Messages: c.session.History(),
		Tools:    c.tools,
		Guards:   tools.NewToolGuards(),
		Model:    modelName,
	}, cb)

	switch result.Outcome {
	case turn.Finished:
		c.session.AddMessage(model.Message{Role: "assistant", Content: result.FinalText})
		c.emit(protocol.ServerAgentFinished, protocol.AgentFinishedPayload{FinalText: result.FinalText, Steps: result.Steps})
	case turn.Stopped:
		c.emit(protocol.ServerAgentStopped, protocol.AgentStoppedPayload{Reason: "cancelled"})
	case turn.Errored:
		msg := "unknown error"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		slog.Warn("gateway: turn errored", "session", c.session.ID, "provider", provider, "error", msg)
		c.emit(protocol.ServerAgentError, protocol.AgentErrorPayload{Message: msg})
	}

	c.emit(protocol.ServerSessionBusy, protocol.SessionBusyPayload{Busy: false})
}
