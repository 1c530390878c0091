// Package session implements the Session Server's per-connection state:
// one Session per WebSocket connection, never persisted by the core (§3 —
// the session_backup_* snapshot store is an explicit, opt-in side door, not
// the live Session struct itself).
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/localcoworker/engine/internal/config"
	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/tools"
)

// State is the connection state machine from spec.md §4.4.
type State int

const (
	Open State = iota
	Ready
	Closed
)

// PendingApproval is a resolver installed while an agent_approval_request is
// outstanding; the client's approval_response settles it exactly once.
type PendingApproval struct {
	Command   string
	Dangerous bool
	resolve   chan bool
}

// PendingAsk is a resolver installed while an agent_ask_request is
// outstanding; the client's ask_response settles it exactly once.
type PendingAsk struct {
	Questions []tools.AskQuestion
	resolve   chan map[string]string
}

// Session holds everything the Session Server needs for one connection.
// It is never written to disk by the core; Messages/Todos live only in
// memory for the connection's lifetime.
type Session struct {
	ID     string
	Config *config.AgentConfig

	mu        sync.Mutex
	state     State
	busy      bool
	enableMCP bool
	model     string
	provider  string

	Messages []model.Message
	Todos    []tools.TodoItem

	pendingApprovals map[string]*PendingApproval
	pendingAsks      map[string]*PendingAsk

	cancel context.CancelFunc
}

// New allocates a Session in state Open. cfg is immutable within a turn
// (§5); SetModel changes the session's provider/model selection between
// turns, never while Busy, and leaves cfg itself untouched.
func New(cfg *config.AgentConfig) *Session {
	return &Session{
		ID:               uuid.NewString(),
		Config:           cfg,
		state:            Open,
		provider:         cfg.Provider,
		model:            cfg.Model,
		pendingApprovals: make(map[string]*PendingApproval),
		pendingAsks:      make(map[string]*PendingAsk),
	}
}

func (s *Session) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Ready
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// BeginTurn marks the session busy and records a cancel func for it, or
// refuses if one is already running or a prior cancel hasn't unwound yet.
func (s *Session) BeginTurn(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return fmt.Errorf("session: a turn is already in progress")
	}
	s.busy = true
	s.cancel = cancel
	return nil
}

func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.cancel = nil
}

// Cancel is idempotent (§5): calling it with no turn in flight is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) Model() (provider, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider, s.model
}

// SetModel refuses while a turn is in flight — AgentConfig/model selection
// is immutable within a turn, copy-on-write between turns (§5).
func (s *Session) SetModel(provider, modelName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return fmt.Errorf("session: cannot change model while a turn is in progress")
	}
	if provider != "" {
		s.provider = provider
	}
	s.model = modelName
	return nil
}

func (s *Session) SetEnableMCP(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enableMCP = enabled
}

func (s *Session) EnableMCP() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enableMCP
}

func (s *Session) AddMessage(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, m)
}

func (s *Session) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// SetTodos overwrites the whole list — the todoWrite tool is the list's
// single writer; the Session Server and Turn Driver are readers only (§5).
func (s *Session) SetTodos(todos []tools.TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Todos = todos
}

func (s *Session) TodoSnapshot() []tools.TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tools.TodoItem, len(s.Todos))
	copy(out, s.Todos)
	return out
}

// RegisterApproval installs a resolver keyed by a fresh requestId and
// returns it alongside a channel that receives exactly one answer.
func (s *Session) RegisterApproval(command string, dangerous bool) (requestID string, wait <-chan bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan bool, 1)
	s.pendingApprovals[id] = &PendingApproval{Command: command, Dangerous: dangerous, resolve: ch}
	return id, ch
}

// ResolveApproval settles a pending approval exactly once; a second call
// for the same requestId is a no-op (err signals "not found").
func (s *Session) ResolveApproval(requestID string, approved bool) error {
	s.mu.Lock()
	p, ok := s.pendingApprovals[requestID]
	if ok {
		delete(s.pendingApprovals, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session: unknown approval requestId %q", requestID)
	}
	p.resolve <- approved
	return nil
}

func (s *Session) RegisterAsk(questions []tools.AskQuestion) (requestID string, wait <-chan map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan map[string]string, 1)
	s.pendingAsks[id] = &PendingAsk{Questions: questions, resolve: ch}
	return id, ch
}

func (s *Session) ResolveAsk(requestID string, answers map[string]string) error {
	s.mu.Lock()
	p, ok := s.pendingAsks[requestID]
	if ok {
		delete(s.pendingAsks, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session: unknown ask requestId %q", requestID)
	}
	p.resolve <- answers
	return nil
}

// Dispose cancels any in-flight turn and resolves every pending
// approval/ask as denied/cancelled — a disconnect must never leave a tool
// call blocked forever (§4.4).
func (s *Session) Dispose() {
	s.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	for id, p := range s.pendingApprovals {
		p.resolve <- false
		delete(s.pendingApprovals, id)
	}
	for id, p := range s.pendingAsks {
		p.resolve <- nil
		delete(s.pendingAsks, id)
	}
}
