// Package config defines the root configuration for the co-worker engine
// and the AgentConfig contract the Turn Execution Engine is built around.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the co-worker engine.
type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Tools     ToolsConfig     `json:"tools"`
	Sessions  SessionsConfig  `json:"sessions"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Harness   HarnessConfig   `json:"harness,omitempty"`
	mu        sync.RWMutex
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agents = src.Agents
	c.Providers = src.Providers
	c.Gateway = src.Gateway
	c.Tools = src.Tools
	c.Sessions = src.Sessions
	c.Telemetry = src.Telemetry
	c.Harness = src.Harness
}

// Snapshot returns a copy of c safe to read without holding c's lock further.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}

// GatewayConfig configures the Session Server's listening address.
type GatewayConfig struct {
	ListenAddr     string   `json:"listen_addr,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// ProvidersConfig lists the model providers the engine knows about.
// Credentials are never read from this struct — see §6 env vars.
type ProvidersConfig struct {
	Default string                    `json:"default,omitempty"`
	List    map[string]ProviderEntry `json:"list,omitempty"`
}

// ProviderEntry describes one provider's connection shape, minus secrets.
type ProviderEntry struct {
	DefaultModel string `json:"default_model,omitempty"`
	APIBase      string `json:"api_base,omitempty"`
}

// SessionsConfig tunes Session Server lifecycle and rate limiting.
type SessionsConfig struct {
	RateLimitPerSecond float64 `json:"rate_limit_per_second,omitempty"` // default 5
	RateLimitBurst     int     `json:"rate_limit_burst,omitempty"`      // default 10
	BackupDBPath       string  `json:"backup_db_path,omitempty"`        // sqlite path for session_backup_* frames
}

// TelemetryConfig configures best-effort OTLP export for Observability Hooks.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	OTLPHTTP    string            `json:"otlp_http,omitempty"`
	LogsURL     string            `json:"logs_url,omitempty"`
	MetricsURL  string            `json:"metrics_url,omitempty"`
	TracesURL   string            `json:"traces_url,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// HarnessConfig selects the Turn Driver's harness mode.
type HarnessConfig struct {
	ReportOnly bool `json:"report_only,omitempty"`
	Strict     bool `json:"strict,omitempty"`
}

// AgentsConfig contains agent defaults and per-agent overrides.
type AgentsConfig struct {
	Defaults AgentDefaults        `json:"defaults"`
	List     map[string]AgentSpec `json:"list,omitempty"`
}

// AgentDefaults are default settings applied to every agent absent an override.
type AgentDefaults struct {
	Provider          string              `json:"provider"`
	Model             string              `json:"model"`
	SubagentModel     string              `json:"subagent_model,omitempty"`
	Workspace         string              `json:"workspace"`
	MaxSteps          int                 `json:"max_steps,omitempty"`           // default 100
	MaxRetries        int                 `json:"max_retries,omitempty"`         // default 0
	StallTimeoutSec   int                 `json:"stall_timeout_sec,omitempty"`   // default 90
	SkillsDirs        FlexibleStringSlice `json:"skills_dirs,omitempty"`
	MemoryDirs        FlexibleStringSlice `json:"memory_dirs,omitempty"`
	ConfigDirs        FlexibleStringSlice `json:"config_dirs,omitempty"`
	BuiltInDir        string              `json:"built_in_dir,omitempty"`
	ProviderOptions   map[string]any      `json:"provider_options,omitempty"`
}

// AgentSpec is the per-agent configuration override.
type AgentSpec struct {
	Provider        string              `json:"provider,omitempty"`
	Model           string              `json:"model,omitempty"`
	SubagentModel   string              `json:"subagent_model,omitempty"`
	Workspace       string              `json:"workspace,omitempty"`
	MaxSteps        int                 `json:"max_steps,omitempty"`
	MaxRetries      int                 `json:"max_retries,omitempty"`
	StallTimeoutSec int                 `json:"stall_timeout_sec,omitempty"`
	SkillsDirs      FlexibleStringSlice `json:"skills_dirs,omitempty"`
	MemoryDirs      FlexibleStringSlice `json:"memory_dirs,omitempty"`
	ConfigDirs      FlexibleStringSlice `json:"config_dirs,omitempty"`
}

// ToolsConfig carries policy + web-tool settings consumed by internal/tools.
type ToolsConfig struct {
	DeniedShellPatterns []string          `json:"denied_shell_patterns,omitempty"`
	WebSearch           WebSearchConfig   `json:"web_search,omitempty"`
	WebFetch            WebFetchConfig    `json:"web_fetch,omitempty"`
	Subagents           SubagentsConfig   `json:"subagents,omitempty"`
}

// WebSearchConfig configures the webSearch tool's provider fallback chain.
type WebSearchConfig struct {
	BraveAPIKey     string `json:"-"` // env only, from BRAVE_API_KEY
	BraveEnabled    bool   `json:"brave_enabled,omitempty"`
	BraveMaxResults int    `json:"brave_max_results,omitempty"`
	DDGEnabled      bool   `json:"ddg_enabled,omitempty"`
	DDGMaxResults   int    `json:"ddg_max_results,omitempty"`
	CacheTTLSec     int    `json:"cache_ttl_sec,omitempty"`
}

// WebFetchConfig configures the webFetch tool.
type WebFetchConfig struct {
	MaxChars    int `json:"max_chars,omitempty"`
	CacheTTLSec int `json:"cache_ttl_sec,omitempty"`
}

// SubagentsConfig bounds the spawnAgent tool.
type SubagentsConfig struct {
	MaxConcurrent int `json:"max_concurrent,omitempty"` // default 8
	MaxSpawnDepth int `json:"max_spawn_depth,omitempty"` // default 2
	TaskCharCap   int `json:"task_char_cap,omitempty"`   // default 20000
}

// HarnessMode mirrors AgentConfig.HarnessMode in §3.
type HarnessMode int

const (
	HarnessReportOnly HarnessMode = iota
	HarnessStrict
)

// ModelSettings carries the optional per-turn model knobs named in §3.
type ModelSettings struct {
	MaxRetries      int
	StallTimeout    int // seconds
	PerStepDeadline int // seconds, 0 = none
	PerChunkTimeout int // seconds, 0 = none (defaults to 90 at the driver)
}

// AgentConfig is immutable per session after open (§3). All directory fields
// are absolute, canonicalized paths; EnsureDirs verifies the invariant that
// every agent directory exists before any tool executes.
type AgentConfig struct {
	Provider      string
	Model         string
	SubagentModel string

	WorkingDirectory string
	OutputDirectory  string
	UploadsDirectory string
	ProjectAgentDir  string
	UserAgentDir     string
	BuiltInDir       string

	SkillsDirs []string
	MemoryDirs []string
	ConfigDirs []string

	ProviderOptions map[string]any
	ModelSettings   ModelSettings
	HarnessMode     HarnessMode
}

// EnsureDirs creates every agent directory if missing and verifies the
// outputDirectory/uploadsDirectory-descendant invariant from §3.
func (a *AgentConfig) EnsureDirs() error {
	if !filepath.IsAbs(a.WorkingDirectory) {
		return fmt.Errorf("config: workingDirectory must be absolute: %q", a.WorkingDirectory)
	}
	wd, err := filepath.Abs(a.WorkingDirectory)
	if err != nil {
		return err
	}
	a.WorkingDirectory = wd

	if !isDescendant(a.OutputDirectory, a.WorkingDirectory) && !isDescendant(a.OutputDirectory, a.ProjectAgentDir) {
		return fmt.Errorf("config: outputDirectory %q must descend from workingDirectory or projectAgentDir", a.OutputDirectory)
	}
	if !isDescendant(a.UploadsDirectory, a.WorkingDirectory) && !isDescendant(a.UploadsDirectory, a.ProjectAgentDir) {
		return fmt.Errorf("config: uploadsDirectory %q must descend from workingDirectory or projectAgentDir", a.UploadsDirectory)
	}

	dirs := append([]string{
		a.WorkingDirectory, a.OutputDirectory, a.UploadsDirectory,
		a.ProjectAgentDir, a.UserAgentDir,
	}, a.SkillsDirs...)
	dirs = append(dirs, a.MemoryDirs...)
	dirs = append(dirs, a.ConfigDirs...)

	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("config: ensure dir %q: %w", d, err)
		}
	}
	return nil
}

func isDescendant(child, parent string) bool {
	if child == "" || parent == "" {
		return false
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepathHasDotDotPrefix(rel))
}

func filepathHasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

// ResolveAgentConfig merges AgentDefaults with a named AgentSpec override and
// fills in directory defaults rooted at workspace.
func ResolveAgentConfig(defaults AgentDefaults, spec *AgentSpec, workspace string) AgentConfig {
	pick := func(override, base string) string {
		if override != "" {
			return override
		}
		return base
	}
	ac := AgentConfig{
		Provider:      defaults.Provider,
		Model:         defaults.Model,
		SubagentModel: defaults.SubagentModel,
	}
	if spec != nil {
		ac.Provider = pick(spec.Provider, ac.Provider)
		ac.Model = pick(spec.Model, ac.Model)
		ac.SubagentModel = pick(spec.SubagentModel, ac.SubagentModel)
	}

	ac.WorkingDirectory = workspace
	ac.OutputDirectory = filepath.Join(workspace, "output")
	ac.UploadsDirectory = filepath.Join(workspace, "uploads")
	ac.ProjectAgentDir = filepath.Join(workspace, ".coworker")
	ac.UserAgentDir = filepath.Join(userStateRoot(), "coworker")
	ac.BuiltInDir = defaults.BuiltInDir

	ac.SkillsDirs = append([]string{filepath.Join(ac.ProjectAgentDir, "skills")}, []string(defaults.SkillsDirs)...)
	ac.MemoryDirs = append([]string{filepath.Join(ac.ProjectAgentDir, "memory")}, []string(defaults.MemoryDirs)...)
	ac.ConfigDirs = append([]string{ac.ProjectAgentDir}, []string(defaults.ConfigDirs)...)
	if spec != nil {
		ac.SkillsDirs = append(ac.SkillsDirs, []string(spec.SkillsDirs)...)
		ac.MemoryDirs = append(ac.MemoryDirs, []string(spec.MemoryDirs)...)
		ac.ConfigDirs = append(ac.ConfigDirs, []string(spec.ConfigDirs)...)
	}

	ac.ProviderOptions = defaults.ProviderOptions

	ac.ModelSettings = ModelSettings{
		MaxRetries:      defaults.MaxRetries,
		StallTimeout:    orDefaultInt(defaults.StallTimeoutSec, 90),
		PerChunkTimeout: orDefaultInt(defaults.StallTimeoutSec, 90),
	}
	if spec != nil {
		if spec.MaxRetries > 0 {
			ac.ModelSettings.MaxRetries = spec.MaxRetries
		}
		if spec.StallTimeoutSec > 0 {
			ac.ModelSettings.StallTimeout = spec.StallTimeoutSec
			ac.ModelSettings.PerChunkTimeout = spec.StallTimeoutSec
		}
	}
	return ac
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func userStateRoot() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return os.TempDir()
}
