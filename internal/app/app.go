// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app assembles the fyp daemon: configuration, store, supervisor,
// orchestration engine, attention router, digest scheduler, command gate,
// auth, and the HTTP API, with ordered startup and shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/fyp/internal/api"
	"github.com/wingedpig/fyp/internal/attention"
	"github.com/wingedpig/fyp/internal/auth"
	"github.com/wingedpig/fyp/internal/command"
	"github.com/wingedpig/fyp/internal/config"
	"github.com/wingedpig/fyp/internal/digest"
	"github.com/wingedpig/fyp/internal/directive"
	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
	"github.com/wingedpig/fyp/internal/worktree"
)

// App is the daemon container.
type App struct {
	mu sync.Mutex

	configPath string
	version    string
	config     *config.Config

	bus           events.EventBus
	st            *store.Store
	sup           session.Supervisor
	eng           *orchestrate.Engine
	sched         *digest.Scheduler
	inbox         *attention.Router
	gate          *command.Gate
	authn         *auth.Authenticator
	codex         *codexBridge
	apiServer     *api.Server
	unwatchNative func()

	done     chan struct{}
	stopOnce sync.Once
}

// Options holds startup overrides layered on top of the config file.
type Options struct {
	ConfigPath string
	Host       string
	Port       int
	Token      string
	Debug      bool
	Version    string
}

// New loads configuration and creates the container. Nothing is opened or
// spawned until Initialize.
func New(opts Options) (*App, error) {
	app := &App{
		configPath: opts.ConfigPath,
		version:    opts.Version,
		done:       make(chan struct{}),
	}

	loader := config.NewLoader()
	path := opts.ConfigPath
	if path == "" {
		if found, err := loader.FindConfig(); err == nil {
			path = found
		}
	}

	var cfg *config.Config
	if path == "" {
		log.Printf("app: no config file found, using defaults (run `fyp init` to create one)")
		cfg = config.Default()
	} else {
		loaded, err := loader.LoadWithDefaults(context.Background(), path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		app.configPath = path
	}

	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Token != "" {
		cfg.Server.Token = opts.Token
	}
	if opts.Debug {
		cfg.Debug = true
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app.config = cfg

	app.bus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.HistorySize,
		HistoryMaxAge:    config.Duration(cfg.Events.HistoryAge, time.Hour),
	})

	return app, nil
}

// Config returns the effective configuration.
func (app *App) Config() *config.Config { return app.config }

// Initialize opens the store and wires every component. Order matters: the
// engine needs the store and supervisor, the scheduler and router need the
// engine, the gate needs both, the API needs all of them.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config
	dataDir := cfg.ResolvedDataDir()

	if err := writePIDFile(dataDir, cfg.Server.Host, cfg.Server.Port); err != nil {
		return err
	}

	st, err := store.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	app.st = st
	log.Printf("app: store at %s", dataDir)

	app.sup = session.NewSupervisor()

	dedupe := config.Duration(cfg.Orchestration.DedupeWindow, 30*time.Second)
	app.eng = orchestrate.NewEngine(orchestrate.EngineConfig{
		Store:  st,
		Sup:    app.sup,
		Git:    worktree.NewRealExecutor(),
		Bus:    app.bus,
		Parser: directive.NewParser(dedupe),
		Config: cfg,
		Linker: session.NewLinker(),
		Debug:  cfg.Debug,
	})

	app.sched = digest.NewScheduler(st, app.sup, app.eng, app.bus, cfg.Debug)

	app.inbox = attention.NewRouter(st, app.sup, app.bus, app.eng, cfg.Debug)
	app.inbox.SetQuestionTimeout(config.Duration(cfg.Orchestration.QuestionTimeout, 2*time.Minute))
	unwatch, err := app.inbox.WatchNative(app.bus)
	if err != nil {
		return fmt.Errorf("watch native events: %w", err)
	}
	app.unwatchNative = unwatch

	// Engine hooks close the loop: orchestration lifecycle arms the digest
	// timers, and parsed question answers resolve inbox items.
	app.eng.SetLifecycleHooks(app.sched.Track, app.sched.Untrack)
	app.eng.SetQuestionAnswerHandler(app.inbox.HandleAnswer)

	if err := app.eng.Restore(); err != nil {
		return fmt.Errorf("restore orchestrations: %w", err)
	}
	restored := app.eng.List()
	for _, doc := range restored {
		app.sched.Track(doc.ID)
	}
	if len(restored) > 0 {
		log.Printf("app: restored %d orchestrations", len(restored))
	}

	gate, err := command.NewGate(st, app.eng, app.sched, cfg.Debug)
	if err != nil {
		return fmt.Errorf("load command catalog: %w", err)
	}
	app.gate = gate

	app.authn = auth.New(cfg.Server.Token,
		config.Duration(cfg.Pairing.TTL, 5*time.Minute), cfg.Pairing.MaxAttempts)
	if !app.authn.Enabled() {
		log.Printf("app: no server token configured, API auth disabled")
	}

	app.codex = newCodexBridge(cfg.ToolFor(session.ToolCodex), app.version, app.bus, app.inbox, st)

	app.apiServer = api.NewServer(
		api.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			TLSCert:      cfg.Server.TLSCert,
			TLSKey:       cfg.Server.TLSKey,
			TailscaleTLS: cfg.Server.TailscaleTLS,
			Debug:        cfg.Debug,
		},
		api.Dependencies{
			Store:      st,
			Supervisor: app.sup,
			Engine:     app.eng,
			Scheduler:  app.sched,
			Inbox:      app.inbox,
			Gate:       app.gate,
			Auth:       app.authn,
			EventBus:   app.bus,
			Version:    app.version,
		},
	)

	return nil
}

// Start launches the background pieces that are not request-driven.
func (app *App) Start(ctx context.Context) error {
	return app.codex.start(ctx)
}

// Run initializes, starts, serves, and blocks until a signal or Stop.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			log.Printf("app: received %v, shutting down", sig)
		case <-gctx.Done():
		case <-app.done:
			log.Printf("app: shutdown requested")
		}
		return app.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown tears components down in reverse of Initialize.
func (app *App) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if app.apiServer != nil {
		if err := app.apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("app: api shutdown: %v", err)
		}
	}

	if app.codex != nil {
		app.codex.stop()
	}

	if app.unwatchNative != nil {
		app.unwatchNative()
	}
	if app.inbox != nil {
		app.inbox.Close()
	}

	if app.sched != nil {
		app.sched.Close()
	}

	if app.sup != nil {
		app.sup.Dispose()
	}

	if app.bus != nil {
		if err := app.bus.Close(); err != nil {
			log.Printf("app: close event bus: %v", err)
		}
	}

	if app.st != nil {
		if err := app.st.Close(); err != nil {
			log.Printf("app: close store: %v", err)
		}
	}

	removePIDFile(app.config.ResolvedDataDir())
	log.Printf("app: shutdown complete")
	return nil
}

// Stop signals Run to shut down. Safe to call more than once.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}
