package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/localcoworker/engine/internal/config"
	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/tools"
)

func TestSession_BeginTurnRefusesWhenAlreadyBusy(t *testing.T) {
	s := New(&config.AgentConfig{Provider: "anthropic", Model: "claude"})
	if err := s.BeginTurn(func() {}); err != nil {
		t.Fatalf("first BeginTurn should succeed: %v", err)
	}
	if err := s.BeginTurn(func() {}); err == nil {
		t.Fatalf("expected BeginTurn to refuse while busy")
	}
	s.EndTurn()
	if err := s.BeginTurn(func() {}); err != nil {
		t.Fatalf("BeginTurn should succeed again after EndTurn: %v", err)
	}
}

func TestSession_SetModelRefusedWhileBusy(t *testing.T) {
	s := New(&config.AgentConfig{Provider: "anthropic", Model: "claude"})
	_ = s.BeginTurn(func() {})
	if err := s.SetModel("", "other-model"); err == nil {
		t.Fatalf("expected SetModel to refuse while a turn is in progress")
	}
	s.EndTurn()
	if err := s.SetModel("", "other-model"); err != nil {
		t.Fatalf("SetModel should succeed once idle: %v", err)
	}
	_, m := s.Model()
	if m != "other-model" {
		t.Fatalf("expected model to update, got %q", m)
	}
}

func TestSession_ApprovalRoundTrip(t *testing.T) {
	s := New(&config.AgentConfig{})
	id, wait := s.RegisterApproval("rm -rf /tmp/x", true)
	if err := s.ResolveApproval(id, true); err != nil {
		t.Fatalf("unexpected error resolving approval: %v", err)
	}
	select {
	case approved := <-wait:
		if !approved {
			t.Fatalf("expected approved=true")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for approval resolution")
	}
	if err := s.ResolveApproval(id, true); err == nil {
		t.Fatalf("expected second resolution of the same requestId to error")
	}
}

func TestSession_DisposeResolvesPendingAsDenied(t *testing.T) {
	s := New(&config.AgentConfig{})
	_, waitApproval := s.RegisterApproval("curl http://x", false)
	_, waitAsk := s.RegisterAsk([]tools.AskQuestion{{Question: "continue?"}})

	s.Dispose()

	select {
	case approved := <-waitApproval:
		if approved {
			t.Fatalf("expected disposed approval to resolve false")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	select {
	case answers := <-waitAsk:
		if answers != nil {
			t.Fatalf("expected disposed ask to resolve nil, got %+v", answers)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	if s.State() != Closed {
		t.Fatalf("expected state Closed after Dispose")
	}
}

func TestSQLiteSnapshotStore_CheckpointThenGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteSnapshotStore(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("unexpected error opening store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	snap := Snapshot{
		SessionID: "sess-1",
		Label:     "before-reset",
		Messages:  []model.Message{{Role: "user", Content: "hello"}},
		Todos:     []tools.TodoItem{{Content: "ship it", Status: "pending"}},
		SavedAt:   time.Now(),
	}
	if err := store.Checkpoint(ctx, snap); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.Label != "before-reset" || len(got.Messages) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	missing, err := store.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error for missing snapshot: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown sessionId, got %+v", missing)
	}
}
