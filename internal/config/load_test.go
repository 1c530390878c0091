package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agents.Defaults.Provider != "anthropic" {
		t.Fatalf("expected default provider, got %q", cfg.Agents.Defaults.Provider)
	}
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"agents":{"defaults":{"provider":"from-file","model":"from-file-model"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AGENT_PROVIDER", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agents.Defaults.Provider != "from-env" {
		t.Fatalf("expected env to win, got %q", cfg.Agents.Defaults.Provider)
	}
	if cfg.Agents.Defaults.Model != "from-file-model" {
		t.Fatalf("expected file value preserved when env unset, got %q", cfg.Agents.Defaults.Model)
	}
}

func TestLoad_HarnessEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_HARNESS_STRICT_MODE", "true")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Harness.Strict {
		t.Fatalf("expected strict mode enabled from env")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	if got := ExpandHome("~/foo"); got != home+"/foo" {
		t.Fatalf("expected %q, got %q", home+"/foo", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("expected unchanged absolute path, got %q", got)
	}
}
