// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package api provides the HTTP surface: instance and queue management,
// scheduling control, and history/statistics queries.
package api

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/config"
	"github.com/tomtom215/backlogarr/internal/engine"
	"github.com/tomtom215/backlogarr/internal/models"
	"github.com/tomtom215/backlogarr/internal/scheduler"
)

// Store is the persistence surface the handlers need.
type Store interface {
	CreateInstance(ctx context.Context, inst *models.Instance) error
	GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error)
	ListInstances(ctx context.Context) ([]models.Instance, error)
	UpdateInstance(ctx context.Context, inst *models.Instance) error
	DeleteInstance(ctx context.Context, id uuid.UUID) error

	CreateQueue(ctx context.Context, q *models.SearchQueue) error
	GetQueue(ctx context.Context, id uuid.UUID) (*models.SearchQueue, error)
	ListQueues(ctx context.Context, activeOnly bool) ([]models.SearchQueue, error)
	UpdateQueue(ctx context.Context, q *models.SearchQueue) error
	DeleteQueue(ctx context.Context, id uuid.UUID) error
}

// History is the audit-log query surface.
type History interface {
	List(ctx context.Context, queueID *uuid.UUID, limit int) ([]models.SearchHistoryRecord, error)
	Stats(ctx context.Context, queueID uuid.UUID) (*models.QueueStats, error)
	SuccessRate(ctx context.Context, window time.Duration) (float64, error)
	Trend(ctx context.Context, days int) ([]models.TrendPoint, error)
}

// Schedules is the scheduler control surface.
type Schedules interface {
	Schedule(ctx context.Context, queueID uuid.UUID, reschedule bool) error
	Unschedule(ctx context.Context, queueID uuid.UUID) error
	Pause(ctx context.Context, queueID uuid.UUID) error
	Resume(ctx context.Context, queueID uuid.UUID) error
	ExecuteNow(ctx context.Context, queueID uuid.UUID) (*engine.Result, error)
	Status() scheduler.Status
}

// ConnectionTester probes an instance's reachability and credentials.
type ConnectionTester interface {
	TestInstance(ctx context.Context, inst *models.Instance) (*models.HealthResult, error)
}

// Handler holds the handler dependencies. Methods are split across
// handlers_instances.go, handlers_queues.go, and handlers_history.go.
type Handler struct {
	cfg       *config.Config
	store     Store
	history   History
	schedules Schedules
	tester    ConnectionTester
	validate  *validator.Validate
	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, store Store, hist History, schedules Schedules, tester ConnectionTester) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		history:   hist,
		schedules: schedules,
		tester:    tester,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		startTime: time.Now(),
	}
}
