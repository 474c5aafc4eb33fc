// Command coordinator is the CLI for the agent swarm orchestration
// runtime.
//
// Usage:
//
//	coordinator serve --config config.yaml
//	coordinator version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coordinator "github.com/agentmesh/coordinator"
	"github.com/agentmesh/coordinator/internal/config"
	"github.com/agentmesh/coordinator/llmrouter"
	"github.com/agentmesh/coordinator/memory"
	"github.com/agentmesh/coordinator/pkg/logger"
	"github.com/agentmesh/coordinator/pkg/obs"
	"github.com/agentmesh/coordinator/pkg/store"
	"github.com/agentmesh/coordinator/provider"
	"github.com/agentmesh/coordinator/session"
	"github.com/agentmesh/coordinator/topology"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start a session manager and serve its metrics endpoint."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to component defaults YAML file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(coordinator.GetVersion().String())
	return nil
}

// ServeCmd builds one session manager out of the loaded component
// defaults, registers a zero-config fallback provider, and serves a
// Prometheus metrics endpoint until interrupted.
type ServeCmd struct {
	Port        int    `help:"Port to serve /metrics on." default:"9090"`
	ProjectID   string `help:"Project ID for the initial session." default:"default"`
	SessionName string `help:"Name for the initial session." default:"primary"`
	Topology    string `help:"Initial session topology (hierarchical, mesh, star)." default:"hierarchical"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	defaults, err := loadDefaults(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cli.Config != "" {
		watcher, err := config.Watch(cli.Config, func(d *config.Defaults) {
			slog.Info("component defaults reloaded", "path", cli.Config)
			defaults = d
		})
		if err != nil {
			slog.Warn("config watch disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	metrics, err := obs.New()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	backing, err := backingStoreFor(defaults)
	if err != nil {
		return fmt.Errorf("init backing store: %w", err)
	}

	mem := memory.New(memory.Config{MaintenanceEvery: maintenanceInterval(defaults)})
	defer mem.Close()

	router := buildRouter(defaults)
	router.SetMetrics(metrics)

	mgr := session.NewManager(backing)
	mgr.SetMetrics(metrics)

	sessCfg := sessionConfigFrom(defaults)
	kind := topology.Kind(c.Topology)
	if _, err := mgr.CreateSession(c.ProjectID, c.SessionName, kind, topology.Config{}, mem, router, sessCfg); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", c.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving", "addr", srv.Addr, "sessions", mgr.ListSessions(session.SessionFilter{}))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func loadDefaults(path string) (*config.Defaults, error) {
	if path == "" {
		return &config.Defaults{}, nil
	}
	return config.Load(path)
}

func maintenanceInterval(d *config.Defaults) time.Duration {
	if d == nil || d.Memory.MaintenanceEvery == "" {
		return 5 * time.Minute
	}
	dur, err := config.ParseDuration(d.Memory.MaintenanceEvery)
	if err != nil {
		return 5 * time.Minute
	}
	return dur
}

func sessionConfigFrom(d *config.Defaults) session.Config {
	cfg := session.Config{}
	if d == nil {
		return cfg
	}
	cfg.MaxAgents = d.Session.MaxAgents
	cfg.MaxConcurrentTasks = d.Session.MaxConcurrentTasks
	cfg.AutoCheckpoint = d.Session.AutoCheckpoint
	cfg.PersistToDisk = d.Session.PersistToDisk
	cfg.MaxCheckpoints = d.Session.MaxCheckpoints
	if d.Session.CheckpointInterval != "" {
		if dur, err := config.ParseDuration(d.Session.CheckpointInterval); err == nil {
			cfg.CheckpointInterval = dur
		}
	}
	return cfg
}

func backingStoreFor(d *config.Defaults) (store.Store, error) {
	if d == nil || d.Memory.Backend != "sqlite" {
		return store.NewMemory(), nil
	}
	path := d.Memory.BackendPath
	if path == "" {
		path = "coordinator.db"
	}
	return store.NewSQLite(path)
}

// buildRouter registers the Anthropic and OpenAI adapters when their API
// key is set in the environment, and always registers the local Ollama
// adapter, the same zero-config convention the teacher's CLI uses for
// its own provider selection.
func buildRouter(d *config.Defaults) *llmrouter.Router {
	cfg := llmrouter.Config{DefaultProvider: "ollama"}
	if d != nil && d.Router.DefaultProvider != "" {
		cfg.DefaultProvider = d.Router.DefaultProvider
		cfg.Fallbacks = d.Router.Fallbacks
		cfg.CostMode = llmrouter.CostMode(d.Router.CostMode)
	}
	router := llmrouter.New(cfg)

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		router.Register("anthropic", provider.NewAnthropicAdapter(provider.AnthropicConfig{APIKey: key, Model: "claude-sonnet-4-20250514"}))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		router.Register("openai", provider.NewOpenAIAdapter(provider.OpenAIConfig{APIKey: key, Model: "gpt-4o"}))
	}
	router.Register("ollama", provider.NewOllamaAdapter(provider.OllamaConfig{Model: "llama3"}))

	return router
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("coordinator"),
		kong.Description("Agent swarm orchestration runtime"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, os.Stderr, "simple")

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
