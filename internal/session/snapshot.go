package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/tools"
)

// Snapshot is what session_backup_checkpoint persists and session_backup_get
// restores. It is an explicit, opt-in side door — the live Session struct
// itself is never written to disk by the core (§5).
type Snapshot struct {
	SessionID string          `json:"sessionId"`
	Label     string          `json:"label,omitempty"`
	Messages  []model.Message `json:"messages"`
	Todos     []tools.TodoItem `json:"todos"`
	SavedAt   time.Time       `json:"savedAt"`
}

// SnapshotStore backs session_backup_get/session_backup_checkpoint.
type SnapshotStore interface {
	Checkpoint(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, sessionID string) (*Snapshot, error)
	Close() error
}

// SQLiteSnapshotStore is a local, single-file implementation grounded on the
// teacher's internal/store.SessionStore shape but reduced to the two
// operations the harness protocol messages actually need.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

func NewSQLiteSnapshotStore(path string) (*SQLiteSnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open snapshot db: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS session_snapshots (
	session_id TEXT PRIMARY KEY,
	label      TEXT,
	payload    TEXT NOT NULL,
	saved_at   TIMESTAMP NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: migrate snapshot db: %w", err)
	}
	return &SQLiteSnapshotStore{db: db}, nil
}

func (s *SQLiteSnapshotStore) Checkpoint(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO session_snapshots (session_id, label, payload, saved_at) VALUES (?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET label = excluded.label, payload = excluded.payload, saved_at = excluded.saved_at`,
		snap.SessionID, snap.Label, string(payload), snap.SavedAt)
	return err
}

func (s *SQLiteSnapshotStore) Get(ctx context.Context, sessionID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM session_snapshots WHERE session_id = ?`, sessionID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("session: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteSnapshotStore) Close() error { return s.db.Close() }
