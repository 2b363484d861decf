// Command babysitterd is the ticket orchestration daemon: it accepts webhook
// triggers, claims pending tickets, runs the agent against them, and relays
// questions and answers between the agent and the human operator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Greesan/babysitter/internal/bus"
	"github.com/Greesan/babysitter/internal/config"
	slackconn "github.com/Greesan/babysitter/internal/connector/slack"
	"github.com/Greesan/babysitter/internal/hooks"
	"github.com/Greesan/babysitter/internal/logbuf"
	"github.com/Greesan/babysitter/internal/orchestrator"
	"github.com/Greesan/babysitter/internal/provider"
	"github.com/Greesan/babysitter/internal/resolver"
	"github.com/Greesan/babysitter/internal/runtime"
	"github.com/Greesan/babysitter/internal/scheduler"
	"github.com/Greesan/babysitter/internal/server"
	"github.com/Greesan/babysitter/internal/ticket"
	"github.com/Greesan/babysitter/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		slog.New(jsonHandler).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logRing := logbuf.NewRing(cfg.LogBuffer)
	logger := slog.New(logbuf.NewHandler(jsonHandler, logRing))

	logger.Info("babysitterd starting", "port", cfg.Server.Port, "runtime", cfg.Runtime.Type)

	// 1. Ticket store
	os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755)
	sqlStore, err := ticket.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open ticket store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	store := ticket.NewRetrying(sqlStore, logger.With("component", "store"))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Event fabric + response resolver
	eventBus := bus.New(logger.With("component", "bus"))
	res := resolver.New(store, logger.With("component", "resolver"),
		resolver.WithPollInterval(cfg.PollInterval()),
		resolver.WithBufferTTL(cfg.BufferTTL()),
	)
	wsHub := bus.NewWSHub(eventBus, responderAdapter{res}, logger.With("component", "ws"))

	// 3. Runtime
	var rt runtime.Runtime
	switch cfg.Runtime.Type {
	case "scripted":
		// Deterministic no-question runtime, used for smoke testing a
		// deployment without burning tokens.
		rt = &runtime.Scripted{Summary: "scripted run complete"}
	default:
		var opts []provider.AnthropicOption
		if cfg.Runtime.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(cfg.Runtime.BaseURL))
		}
		if cfg.Runtime.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(cfg.Runtime.Model))
		}
		llm := runtime.NewLLM(
			provider.NewAnthropic(cfg.Runtime.AnthropicAPIKey, opts...),
			logger.With("component", "runtime"),
		)
		if cfg.Runtime.MaxIterations > 0 {
			llm.MaxIterations = cfg.Runtime.MaxIterations
		}
		rt = llm
	}

	// 4. Hooks + orchestrator
	hookAdapters := hooks.New(store, res, eventBus, logger.With("component", "hooks"))
	hookAdapters.SetWaitTimeout(cfg.WaitTimeout())
	core := orchestrator.New(store, eventBus, rt, hookAdapters, logger.With("component", "orchestrator"))

	// 5. Optional Slack notifier
	if cfg.Slack != nil {
		notifier, err := slackconn.New(slackconn.Config{
			BotToken: cfg.Slack.BotToken,
			Channel:  cfg.Slack.Channel,
		}, logger.With("component", "slack"))
		if err != nil {
			logger.Error("failed to init slack notifier", "error", err)
			os.Exit(1)
		}
		eventBus.Attach(notifier)
		logger.Info("slack notifier attached", "channel", cfg.Slack.Channel)
	}

	// 6. Scheduler sweeps
	sched := scheduler.New(sweepFunc(core), res.Purge, logger.With("component", "scheduler"))
	if err := sched.Register(cfg.Scheduler.SweepSchedule, cfg.Scheduler.PurgeSchedule); err != nil {
		logger.Error("failed to register sweeps", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 7. HTTP server
	srv := server.NewServer(
		&coreServiceAdapter{core: core, store: store},
		server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port, Key: cfg.Server.Key},
		wsHub,
		logger.With("component", "http"),
		logRing,
	)
	go safeGo(logger, "http-server", func() { srv.Start(ctx) })
	logger.Info("http server started", "port", cfg.Server.Port)

	// 8. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("babysitterd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

// sweepFunc adapts the orchestrator's claim-and-run flow to the scheduler's
// sweep signature: one stranded pending ticket per fire.
func sweepFunc(core *orchestrator.Core) scheduler.SweepFunc {
	return func(ctx context.Context) (string, error) {
		t, err := core.Claim()
		if err != nil || t == nil {
			return "", err
		}
		if err := core.Run(ctx, t); err != nil {
			return t.ID, err
		}
		return t.ID, nil
	}
}

// responderAdapter narrows the resolver to the websocket layer's Responder.
type responderAdapter struct {
	res *resolver.Resolver
}

func (a responderAdapter) Deliver(sessionID, response string) {
	a.res.Deliver(sessionID, response)
}

// coreServiceAdapter implements server.Service using the orchestrator and
// ticket store.
type coreServiceAdapter struct {
	core  *orchestrator.Core
	store ticket.Store
}

func (a *coreServiceAdapter) CreateTicket(name, description string) (*protocol.Ticket, error) {
	return a.core.CreateTicket(name, description)
}

func (a *coreServiceAdapter) Execute(ctx context.Context, jobID string) error {
	return a.core.Execute(ctx, jobID)
}

func (a *coreServiceAdapter) NewJob() protocol.Job {
	return a.core.Jobs().Create()
}

func (a *coreServiceAdapter) GetJob(id string) (protocol.Job, bool) {
	return a.core.Jobs().Get(id)
}

func (a *coreServiceAdapter) MarkDone(ticketID string) error {
	return a.core.MarkDone(ticketID)
}

func (a *coreServiceAdapter) ListTickets(filter ticket.Filter) ([]*protocol.Ticket, error) {
	return a.store.List(filter)
}

func (a *coreServiceAdapter) GetTicket(id string) (*protocol.Ticket, error) {
	return a.store.Get(id)
}
