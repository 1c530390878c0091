package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Default returns a Config with sensible defaults for running entirely
// off environment variables — no config file required.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:       "~/.coworker/workspace",
				Provider:        "anthropic",
				Model:           "claude-sonnet-4-5-20250929",
				MaxSteps:        100,
				MaxRetries:      0,
				StallTimeoutSec: 90,
			},
		},
		Gateway: GatewayConfig{
			ListenAddr: ":8787",
		},
		Tools: ToolsConfig{
			WebSearch: WebSearchConfig{
				DDGEnabled:    true,
				DDGMaxResults: 5,
			},
			WebFetch: WebFetchConfig{
				MaxChars: 50000,
			},
			Subagents: SubagentsConfig{
				MaxConcurrent: 8,
				MaxSpawnDepth: 2,
				TaskCharCap:   20000,
			},
		},
		Sessions: SessionsConfig{
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
		},
	}
}

// Load reads config from a JSON file if present, then overlays env vars —
// env vars always win, matching the teacher's config_load.go precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays the env vars named in §6 onto the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AGENT_WORKING_DIR"); v != "" {
		c.Agents.Defaults.Workspace = v
	}
	if v := os.Getenv("AGENT_PROVIDER"); v != "" {
		c.Agents.Defaults.Provider = v
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		c.Agents.Defaults.Model = v
	}
	if v := os.Getenv("AGENT_OBSERVABILITY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Enabled = b
		}
	}
	if v := os.Getenv("AGENT_OBS_OTLP_HTTP"); v != "" {
		c.Telemetry.OTLPHTTP = v
	}
	if v := os.Getenv("AGENT_OBS_LOGS_URL"); v != "" {
		c.Telemetry.LogsURL = v
	}
	if v := os.Getenv("AGENT_OBS_METRICS_URL"); v != "" {
		c.Telemetry.MetricsURL = v
	}
	if v := os.Getenv("AGENT_OBS_TRACES_URL"); v != "" {
		c.Telemetry.TracesURL = v
	}
	if v := os.Getenv("AGENT_HARNESS_REPORT_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Harness.ReportOnly = b
		}
	}
	if v := os.Getenv("AGENT_HARNESS_STRICT_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Harness.Strict = b
		}
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		c.Tools.WebSearch.BraveAPIKey = v
		c.Tools.WebSearch.BraveEnabled = true
	}
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
