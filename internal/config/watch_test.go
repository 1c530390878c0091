package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"agents":{"defaults":{"provider":"original"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agents.Defaults.Provider != "original" {
		t.Fatalf("expected original provider, got %q", cfg.Agents.Defaults.Provider)
	}

	watcher, err := NewWatcher(path, cfg)
	if err != nil {
		t.Fatalf("unexpected error creating watcher: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(path, []byte(`{"agents":{"defaults":{"provider":"updated"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cfg.Snapshot().Agents.Defaults.Provider == "updated" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("config was not reloaded within timeout, still %q", cfg.Snapshot().Agents.Defaults.Provider)
}
