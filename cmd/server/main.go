// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package main is the entry point for the Pitwall server application.
//
// Pitwall discovers RC race events for a selected track by merging the
// backend's local database with the LiveRC provider listing, and manages
// resumable background imports of event results and lap data.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Store: BadgerDB persistence for filters, favourites, and the known-imported cache
//  3. Gateway: HTTP client for the backend with circuit-broken provider discovery
//  4. Catalog: Track list cache refreshed in the background
//  5. Sessions: Per-client reconciliation state with idle eviction
//  6. Orchestrator: Import submission and status polling
//  7. WebSocket Hub: Real-time import progress to connected clients
//  8. HTTP Server: REST API plus /ws and /metrics
//
// All long-running components run under a suture supervisor tree with
// failure isolation between the state, messaging, and API layers.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (PITWALL_ prefix)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete
//   - Stops import pollers and flushes the store
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/pitwall-app/pitwall/internal/api"
	"github.com/pitwall-app/pitwall/internal/catalog"
	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/gateway"
	"github.com/pitwall-app/pitwall/internal/ingest"
	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/reconcile"
	"github.com/pitwall-app/pitwall/internal/store"
	"github.com/pitwall-app/pitwall/internal/supervisor"
	ws "github.com/pitwall-app/pitwall/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("backend_url", cfg.Backend.BaseURL).
		Str("cache_path", cfg.Cache.Path).
		Bool("cache_in_memory", cfg.Cache.InMemory).
		Msg("Configuration loaded")

	// Persistent store for filters, favourites, and the known-imported cache
	var st store.Store
	if cfg.Cache.InMemory {
		st = store.NewMemoryStore(cfg.Cache.KnownImportedTTL, cfg.Cache.KnownImportedCap)
		logging.Info().Msg("Using in-memory store")
	} else {
		badgerStore, err := store.Open(&cfg.Cache)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Cache.Path).Msg("Failed to open store")
		}
		st = badgerStore
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	// In-process pub/sub bridging import progress to WebSocket clients
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NewStdLogger(false, false))
	defer func() {
		if err := pubsub.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pubsub")
		}
	}()

	// Backend gateway with circuit-broken provider discovery
	backend := gateway.NewBreakerClient(&cfg.Backend, &cfg.Discovery)

	// Track catalog with background refresh
	trackCatalog := catalog.New(backend, cfg.Catalog.RefreshInterval)

	// Session registry and reconciliation engine
	sessions := reconcile.NewRegistry(&cfg.Sessions)
	engine := reconcile.NewEngine(backend, trackCatalog, st, &cfg.Discovery)

	// Import orchestrator. Evicted sessions take their pollers with them.
	orchestrator := ingest.NewOrchestrator(backend, st, cfg.Import, pubsub)
	sessions.OnEvict(orchestrator.StopSession)
	engine.OnDiscoveryMerged(orchestrator.NotifyDiscoveryMerged)
	defer orchestrator.Shutdown()

	// WebSocket hub and the subscriber feeding it import events
	hub := ws.NewHub()
	subscriber := ws.NewSubscriber(hub, pubsub)

	// HTTP surface
	handlers := api.NewHandlers(sessions, engine, orchestrator, trackCatalog, st)
	wsHandler := api.NewWSHandler(hub, sessions)
	router := api.NewRouter(handlers, wsHandler, &cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// State layer services
	tree.AddStateService(supervisor.Named("track-catalog", trackCatalog))
	tree.AddStateService(supervisor.Named("session-registry", sessions))
	if badgerStore, ok := st.(*store.BadgerStore); ok {
		tree.AddStateService(supervisor.Named("store-gc", gcService{
			store:    badgerStore,
			interval: cfg.Cache.GCInterval,
		}))
	}

	// Messaging layer services
	tree.AddMessagingService(supervisor.Named("websocket-hub", hub))
	tree.AddMessagingService(supervisor.Named("import-subscriber", subscriber))

	// API layer services
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// gcService runs badger value-log garbage collection under supervision.
type gcService struct {
	store    *store.BadgerStore
	interval time.Duration
}

func (g gcService) Serve(ctx context.Context) error {
	g.store.RunGC(ctx, g.interval)
	return ctx.Err()
}
