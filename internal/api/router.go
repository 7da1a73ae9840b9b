// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api serves the HTTP and WebSocket surface under /api/v1.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wingedpig/fyp/internal/api/handlers"
	"github.com/wingedpig/fyp/internal/api/middleware"
	"github.com/wingedpig/fyp/internal/attention"
	"github.com/wingedpig/fyp/internal/auth"
	"github.com/wingedpig/fyp/internal/command"
	"github.com/wingedpig/fyp/internal/digest"
	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host         string
	Port         int
	TLSCert      string // Path to TLS certificate file
	TLSKey       string // Path to TLS private key file
	TailscaleTLS bool   // Fetch certs from the local tailscaled instead
	Debug        bool   // Expose /debug/pprof
}

// Dependencies holds all dependencies for API handlers.
type Dependencies struct {
	Store      *store.Store
	Supervisor session.Supervisor
	Engine     *orchestrate.Engine
	Scheduler  *digest.Scheduler
	Inbox      *attention.Router
	Gate       *command.Gate
	Auth       *auth.Authenticator
	EventBus   events.EventBus
	Version    string
}

// NewRouter creates the API router. The returned attach handler must be shut
// down before the HTTP server to drain live PTY streams.
func NewRouter(deps Dependencies, debug bool) (*mux.Router, *handlers.AttachHandler) {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(deps.Auth))

	statusHandler := handlers.NewStatusHandler(deps.Store, deps.Supervisor, deps.Engine, deps.Inbox, deps.Version)
	api.HandleFunc("/status", statusHandler.Get).Methods("GET")

	pairHandler := handlers.NewPairHandler(deps.Auth)
	api.HandleFunc("/pair", pairHandler.Redeem).Methods("POST")
	api.HandleFunc("/pair/new", pairHandler.NewCode).Methods("POST")

	sessionHandler := handlers.NewSessionHandler(deps.Store, deps.Supervisor, deps.Engine, deps.EventBus)
	api.HandleFunc("/sessions", sessionHandler.List).Methods("GET")
	api.HandleFunc("/sessions", sessionHandler.Create).Methods("POST")
	api.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET")
	api.HandleFunc("/sessions/{id}", sessionHandler.Delete).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/input", sessionHandler.Input).Methods("POST")
	api.HandleFunc("/sessions/{id}/interrupt", sessionHandler.Interrupt).Methods("POST")
	api.HandleFunc("/sessions/{id}/kill", sessionHandler.Kill).Methods("POST")
	api.HandleFunc("/sessions/{id}/resize", sessionHandler.Resize).Methods("POST")
	api.HandleFunc("/sessions/{id}/output", sessionHandler.Output).Methods("GET")
	api.HandleFunc("/sessions/{id}/events", sessionHandler.Events).Methods("GET")
	api.HandleFunc("/sessions/{id}/pin", sessionHandler.Pin).Methods("POST")

	attachHandler := handlers.NewAttachHandler(deps.Store, deps.Supervisor)
	api.HandleFunc("/sessions/{id}/attach", attachHandler.WebSocket).Methods("GET")

	inboxHandler := handlers.NewInboxHandler(deps.Inbox)
	api.HandleFunc("/inbox", inboxHandler.List).Methods("GET")
	api.HandleFunc("/inbox", inboxHandler.Create).Methods("POST")
	api.HandleFunc("/inbox/{id}", inboxHandler.Get).Methods("GET")
	api.HandleFunc("/inbox/{id}/respond", inboxHandler.Respond).Methods("POST")
	api.HandleFunc("/inbox/{id}/dismiss", inboxHandler.Dismiss).Methods("POST")

	orchHandler := handlers.NewOrchestrationHandler(deps.Engine, deps.Scheduler)
	api.HandleFunc("/orchestrations", orchHandler.List).Methods("GET")
	api.HandleFunc("/orchestrations", orchHandler.Create).Methods("POST")
	api.HandleFunc("/orchestrations/{id}", orchHandler.Get).Methods("GET")
	api.HandleFunc("/orchestrations/{id}/dispatch", orchHandler.Dispatch).Methods("POST")
	api.HandleFunc("/orchestrations/{id}/sync", orchHandler.Sync).Methods("POST")
	api.HandleFunc("/orchestrations/{id}/automation", orchHandler.PatchAutomation).Methods("PATCH")
	api.HandleFunc("/orchestrations/{id}/cleanup", orchHandler.Cleanup).Methods("POST")

	commandHandler := handlers.NewCommandHandler(deps.Gate)
	api.HandleFunc("/commands", commandHandler.Catalog).Methods("GET")
	api.HandleFunc("/commands/execute", commandHandler.Execute).Methods("POST")

	eventHandler := handlers.NewEventHandler(deps.EventBus)
	api.HandleFunc("/events", eventHandler.History).Methods("GET")
	api.HandleFunc("/events/ws", eventHandler.WebSocket).Methods("GET")

	presetHandler := handlers.NewPresetHandler(deps.Store)
	api.HandleFunc("/presets", presetHandler.Get).Methods("GET")
	api.HandleFunc("/presets", presetHandler.Put).Methods("PUT")

	if debug {
		r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	}

	return r, attachHandler
}

// Server represents the API server.
type Server struct {
	router        *mux.Router
	cfg           ServerConfig
	server        *http.Server
	attachHandler *handlers.AttachHandler
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	router, attachHandler := NewRouter(deps, cfg.Debug)
	return &Server{
		router:        router,
		cfg:           cfg,
		attachHandler: attachHandler,
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the server. TLS comes from cert files or, with
// tailscale_tls, from the local tailscaled.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	if s.cfg.TailscaleTLS {
		tlsCfg, err := TailscaleTLSConfig()
		if err != nil {
			return fmt.Errorf("tailscale TLS: %w", err)
		}
		s.server.TLSConfig = tlsCfg
		log.Printf("api: listening on https://%s (tailscale TLS)", addr)
		return s.server.ListenAndServeTLS("", "")
	}

	tlsEnabled, err := CheckTLSConfig(s.cfg.TLSCert, s.cfg.TLSKey)
	if err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}
	if tlsEnabled {
		certPath := expandPath(s.cfg.TLSCert)
		keyPath := expandPath(s.cfg.TLSKey)
		log.Printf("api: listening on https://%s (TLS enabled)", addr)
		return s.server.ListenAndServeTLS(certPath, keyPath)
	}

	log.Printf("api: listening on http://%s", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Drain attach streams first; they hold hijacked connections the HTTP
	// shutdown cannot reach.
	if s.attachHandler != nil {
		s.attachHandler.Shutdown()
	}

	if s.server == nil {
		return nil
	}

	log.Println("api: shutting down")

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return s.server.Shutdown(shutdownCtx)
}
