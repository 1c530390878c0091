// Package gateway implements the Session Server from spec.md §4.4: a
// WebSocket endpoint at /ws that multiplexes sessions, one Session per
// connection.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/localcoworker/engine/internal/config"
	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/session"
	"github.com/localcoworker/engine/internal/telemetry"
	"github.com/localcoworker/engine/internal/tools"
	"github.com/localcoworker/engine/internal/turn"
)

// recordingCapacity bounds the in-process observability_query ring buffer
// (telemetry.RecordingHooks) shared by every session on this Server.
const recordingCapacity = 500

// ProtocolVersion is sent on every server_hello frame.
const ProtocolVersion = 1

// ToolsFactory builds the full 14-tool catalog wired to one session's
// AgentConfig (PathGate roots, skills/memory dirs, spawnAgent recursion).
// Each connection gets its own Registry instance — tool state (none of it
// mutable today, but the contract allows for it) never crosses sessions.
type ToolsFactory func(cfg *config.AgentConfig) *tools.Registry

// Server owns the listener and the live connection table. It holds no
// per-session mutable state itself — that all lives on Session/Client.
type Server struct {
	cfg           *config.Config
	agentDefaults config.AgentDefaults
	provider      model.Provider
	toolsFactory  ToolsFactory
	snapshots     session.SnapshotStore
	recorder      *telemetry.RecordingHooks

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client

	httpServer *http.Server
}

func NewServer(cfg *config.Config, defaults config.AgentDefaults, provider model.Provider, toolsFactory ToolsFactory, snapshots session.SnapshotStore) *Server {
	s := &Server{
		cfg:           cfg,
		agentDefaults: defaults,
		provider:      provider,
		toolsFactory:  toolsFactory,
		snapshots:     snapshots,
		recorder:      telemetry.NewRecordingHooks(recordingCapacity),
		clients:       make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin validates the WebSocket origin against the configured
// allow-list. No configured list allows everything (dev mode); an empty
// Origin header (non-browser clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux registers /ws and treats every other path per spec.md §6: any
// non-/ws path returns 200 "OK".
func (s *Server) BuildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleCatchAll)
	return mux
}

func (s *Server) handleCatchAll(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("gateway: websocket upgrade failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("WebSocket upgrade failed"))
		return
	}

	agentCfg := config.ResolveAgentConfig(s.agentDefaults, nil, s.agentDefaults.Workspace)
	if err := agentCfg.EnsureDirs(); err != nil {
		slog.Error("gateway: failed to prepare agent directories", "error", err)
		conn.Close()
		return
	}

	sess := session.New(&agentCfg)
	registry := s.toolsFactory(&agentCfg)
	driver := turn.New(s.provider)
	driver.Telemetry = s.recorder

	client := newClient(conn, sess, registry, driver, s.snapshots)
	client.recorder = s.recorder
	if rps, burst := s.cfg.Sessions.RateLimitPerSecond, s.cfg.Sessions.RateLimitBurst; rps > 0 && burst > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	s.registerClient(client)
	defer s.unregisterClient(client)

	client.run()
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.session.ID] = c
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.session.ID)
	s.mu.Unlock()
	c.session.Dispose()
}

// Start listens on cfg.Gateway.ListenAddr and serves until ctx is done,
// then shuts down gracefully — matching the teacher's Start(ctx) pattern.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Gateway.ListenAddr
	if addr == "" {
		addr = ":8787"
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.BuildMux()}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
