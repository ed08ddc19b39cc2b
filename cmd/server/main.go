// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package main is the entry point for the UAScope server.
//
// UAScope monitors HTTP and raw socket traffic for hostile automation:
// collectors submit observed user-agent and URL pairs, the scorer rates
// each observation against a static threat-pattern database, scored
// events are journaled and persisted to DuckDB, and dashboards follow
// the live feed over WebSocket.
//
// # Startup Order
//
//  1. Configuration: koanf v2 layered sources (defaults, config.yaml,
//     environment variables)
//  2. Logging: zerolog, configured from the logging section
//  3. Event store: DuckDB with the ua_events schema
//  4. Journal: BadgerDB write-ahead journal (optional, WAL_ENABLED)
//  5. Replay: unconfirmed journal entries are drained into the store
//  6. Supervisor tree: journal maintenance, WebSocket hub, HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections and drains in-flight requests, the hub closes
// all viewers, and the journal and database are closed last.
//
// # Example Usage
//
//	export HTTP_PORT=8787
//	export DUCKDB_PATH=/data/uascope.duckdb
//	export WAL_ENABLED=true
//	export WAL_PATH=/data/wal
//	./uascope
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

	"github.com/uascope/uascope/internal/api"
	"github.com/uascope/uascope/internal/config"
	"github.com/uascope/uascope/internal/database"
	"github.com/uascope/uascope/internal/logging"
	"github.com/uascope/uascope/internal/pipeline"
	"github.com/uascope/uascope/internal/scoring"
	"github.com/uascope/uascope/internal/supervisor"
	"github.com/uascope/uascope/internal/supervisor/services"
	"github.com/uascope/uascope/internal/threatdb"
	"github.com/uascope/uascope/internal/wal"
	ws "github.com/uascope/uascope/internal/websocket"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("wal_enabled", cfg.WAL.Enabled).
		Int("baseline_score", cfg.Scoring.BaselineScore).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event store")
		}
	}()
	logging.Info().Msg("Event store initialized")

	// Open the write-ahead journal before the pipeline so pending entries
	// from a previous crash can be replayed.
	var journal wal.Journal
	var badgerJournal *wal.BadgerJournal
	if cfg.WAL.Enabled {
		walCfg := wal.DefaultConfig(cfg.WAL.Path)
		walCfg.SyncWrites = cfg.WAL.SyncWrites
		badgerJournal, err = wal.Open(walCfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open write-ahead journal")
		}
		journal = badgerJournal
		defer func() {
			if err := badgerJournal.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing journal")
			}
		}()
		logging.Info().Str("path", cfg.WAL.Path).Msg("Write-ahead journal opened")
	}

	scorer := scoring.New(threatdb.Default(), cfg.Scoring.BaselineScore)

	hub := ws.NewHub(cfg.Broadcast.BufferSize, cfg.Broadcast.RatePerSec)

	opts := pipeline.Options{}
	if cfg.Broadcast.DedupEnabled {
		opts.DedupWindow = cfg.Broadcast.DedupWindow
	}
	p := pipeline.New(scorer, journal, db, hub, opts)

	// Drain anything the last run journaled but never inserted.
	if err := p.ReplayPending(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to replay pending journal entries")
	}

	handler := api.NewHandler(db, p, hub, journal, cfg)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// sutureslog bridges the supervisor's events onto our zerolog output.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if badgerJournal != nil {
		tree.AddDataService(services.NewJournalMaintenanceService(badgerJournal))
	}
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}
