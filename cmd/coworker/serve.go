package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localcoworker/engine/internal/config"
	"github.com/localcoworker/engine/internal/gateway"
	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/session"
	"github.com/localcoworker/engine/internal/tools"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Session Server on cfg.gateway.listen_addr",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if watcher, err := config.NewWatcher(cfgPath, cfg); err != nil {
		slog.Warn("config watcher unavailable", "path", cfgPath, "error", err)
	} else {
		defer watcher.Stop()
	}

	workspace := config.ExpandHome(cfg.Agents.Defaults.Workspace)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		slog.Error("failed to create workspace", "workspace", workspace, "error", err)
		os.Exit(1)
	}
	cfg.Agents.Defaults.Workspace = workspace

	var snapshots session.SnapshotStore
	if cfg.Sessions.BackupDBPath != "" {
		store, err := session.NewSQLiteSnapshotStore(cfg.Sessions.BackupDBPath)
		if err != nil {
			slog.Warn("session backup store unavailable", "error", err)
		} else {
			snapshots = store
			defer store.Close()
		}
	}

	provider := selectProvider(cfg)

	srv := gateway.NewServer(cfg, cfg.Agents.Defaults, provider, newToolsFactory(cfg), snapshots)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	slog.Info("coworker session server starting",
		"version", Version,
		"protocol", gateway.ProtocolVersion,
		"addr", cfg.Gateway.ListenAddr,
		"provider", provider.Name(),
		"workspace", workspace,
	)

	if err := srv.Start(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
}

// selectProvider picks the Model Adapter implementation. Concrete
// provider-specific wire formats are out of scope (spec.md §1
// Non-goals); localEchoProvider lets `serve` boot and exercise the full
// Turn Driver / Tool Runtime / Session Server path without one.
func selectProvider(cfg *config.Config) model.Provider {
	return &localEchoProvider{name: cfg.Agents.Defaults.Provider, model: cfg.Agents.Defaults.Model}
}

// localEchoProvider is a single-step, no-tool-calls Provider: it always
// returns the user's last message text back as the final answer. It exists
// so the binary is runnable standalone; wiring a real provider means
// implementing model.Provider against an actual model API and passing it
// to gateway.NewServer instead.
type localEchoProvider struct {
	name  string
	model string
}

func (p *localEchoProvider) Name() string         { return p.name }
func (p *localEchoProvider) DefaultModel() string { return p.model }

func (p *localEchoProvider) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	text := fmt.Sprintf("no model provider configured; echoing: %s", last)
	rec := model.StepRecord{Index: 0, Content: text, Finished: true}
	if req.PrepareStep != nil {
		if err := req.PrepareStep(ctx, 0); err != nil {
			return model.Response{}, err
		}
	}
	if req.OnStepFinish != nil {
		req.OnStepFinish(ctx, rec)
	}
	resp := model.Response{Text: text, Steps: []model.StepRecord{rec}}
	if req.OnFinish != nil {
		req.OnFinish(ctx, resp)
	}
	return resp, nil
}

// newToolsFactory builds the tool catalog rooted at one session's resolved
// AgentConfig — working directory, skills/memory dirs, and the spawnAgent
// recursion handle all come from cfg, never from globals. webSearch is
// registered only when a search provider is configured, so the catalog
// holds 14 tools with one and 13 without.
func newToolsFactory(globalCfg *config.Config) gateway.ToolsFactory {
	return func(cfg *config.AgentConfig) *tools.Registry {
		reg := tools.NewRegistry()
		reg.Register(tools.NewBashTool(cfg.WorkingDirectory))
		reg.Register(tools.NewReadTool(cfg.WorkingDirectory))
		reg.Register(tools.NewWriteTool(cfg.WorkingDirectory))
		reg.Register(tools.NewEditTool(cfg.WorkingDirectory))
		reg.Register(tools.NewGlobTool(cfg.WorkingDirectory))
		reg.Register(tools.NewGrepTool(cfg.WorkingDirectory))
		if webSearch := tools.NewWebSearchTool(globalCfg.Tools.WebSearch); webSearch != nil {
			reg.Register(webSearch)
		}
		reg.Register(tools.NewWebFetchTool())
		reg.Register(tools.NewAskTool())
		reg.Register(tools.NewTodoWriteTool())
		reg.Register(tools.NewNotebookEditTool(cfg.WorkingDirectory))
		reg.Register(tools.NewSkillTool(cfg.SkillsDirs))
		reg.Register(tools.NewMemoryTool(cfg.MemoryDirs))
		reg.Register(tools.NewSpawnAgentTool(reg))
		return reg
	}
}
