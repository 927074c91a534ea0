// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Command server runs the Backlogarr daemon: the scheduler, execution
// engine, history recorder, and HTTP API under one supervisor tree.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/backlogarr/internal/api"
	"github.com/tomtom215/backlogarr/internal/config"
	"github.com/tomtom215/backlogarr/internal/cooldown"
	"github.com/tomtom215/backlogarr/internal/engine"
	"github.com/tomtom215/backlogarr/internal/events"
	"github.com/tomtom215/backlogarr/internal/history"
	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/registry"
	"github.com/tomtom215/backlogarr/internal/scheduler"
	"github.com/tomtom215/backlogarr/internal/store"
	"github.com/tomtom215/backlogarr/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Msg("starting backlogarr")

	db, err := store.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Crash recovery before anything schedules: queues stuck in_progress go
	// back to pending, running history records become interrupted.
	if n, err := db.ReconcileInterruptedQueues(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to reconcile interrupted queues")
	} else if n > 0 {
		logging.Warn().Int64("queues", n).Msg("recovered queues left in_progress by previous shutdown")
	}

	bus := events.NewBus(events.NewLoggerAdapter())
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event bus")
		}
	}()

	recorder := history.New(db, bus, cfg.History.RetentionDays, cfg.History.CleanupInterval)
	if err := recorder.Reconcile(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to reconcile history")
	}

	instances := registry.NewStoreRegistry(db)
	creds := registry.NewEnvCredentialStore()

	eng := engine.New(cfg.Search, db, instances, creds, recorder)
	sched := scheduler.New(cfg.Scheduler, db, eng)

	handler := api.NewHandler(cfg, db, recorder, sched, eng)
	httpServer := api.NewServer(cfg.Server, api.NewRouter(handler))

	tree := supervisor.NewTree(
		slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		supervisor.DefaultTreeConfig(),
	)
	tree.AddOrchestrationService(sched)
	tree.AddOrchestrationService(recorder)
	tree.AddOrchestrationService(cooldown.NewSweeper(eng.Cooldowns(), 0))
	tree.AddAPIService(httpServer)

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("supervisor tree failed")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop cleanly")
		}
	}
	logging.Info().Msg("backlogarr stopped")
}
