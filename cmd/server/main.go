// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package main is the entry point for the Waymark tracking server.
//
// Waymark ingests GPS position and alert reports from tracking
// devices, stores them durably in DuckDB, and fans them out in real
// time to WebSocket viewers subscribed per device. A REST API serves
// historical tracks, per-device statistics and the device registry.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered load (defaults, YAML file, env)
//  2. Database: DuckDB store with positions, alerts, devices tables
//  3. Live hub: device-scoped WebSocket fan-out
//  4. Ingestion service: validate, commit, publish
//  5. HTTP server: chi router with REST API, /ws and /metrics
//  6. Supervisor tree: suture v4 with messaging and api layers
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections and drains in-flight requests, the hub closes
// all live clients, and the database checkpoints before closing.
//
// # Example Usage
//
//	export DUCKDB_PATH=/data/waymark.duckdb
//	export HTTP_PORT=8080
//	export LOG_LEVEL=info
//	./waymark
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/waymark-gps/waymark/internal/api"
	"github.com/waymark-gps/waymark/internal/config"
	"github.com/waymark-gps/waymark/internal/database"
	"github.com/waymark-gps/waymark/internal/ingest"
	"github.com/waymark-gps/waymark/internal/logging"
	"github.com/waymark-gps/waymark/internal/supervisor"
	"github.com/waymark-gps/waymark/internal/supervisor/services"
	ws "github.com/waymark-gps/waymark/internal/websocket"
)

func main() {
	cfg, err := config.Load()
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
		Str("addr", cfg.ListenAddr()).
		Msg("Starting Waymark")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// zerolog bridged to slog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	hub := ws.NewHub()
	ingestSvc := ingest.NewService(db, hub, &cfg.Ingest)
	handler := api.NewHandler(db, ingestSvc, hub, cfg)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree.AddMessagingService(services.NewHubService(hub))
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

	logging.Info().Msg("Waymark stopped gracefully")
}
