// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package history records the append-only execution audit log and serves
// the aggregate statistics derived from it. The Recorder is the only writer;
// the API layer reads through it.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/events"
	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/metrics"
	"github.com/tomtom215/backlogarr/internal/models"
)

// RecordStore is the persistence surface the recorder writes through.
type RecordStore interface {
	AppendHistory(ctx context.Context, rec *models.SearchHistoryRecord) error
	FinalizeHistory(ctx context.Context, rec *models.SearchHistoryRecord) error
	ReconcileRunningHistory(ctx context.Context) (int64, error)
	ListHistory(ctx context.Context, queueID *uuid.UUID, limit int) ([]models.SearchHistoryRecord, error)
	QueueStats(ctx context.Context, queueID uuid.UUID) (*models.QueueStats, error)
	SuccessRate(ctx context.Context, window time.Duration) (float64, error)
	ItemsFoundTrend(ctx context.Context, days int) ([]models.TrendPoint, error)
	CleanupHistory(ctx context.Context, retentionDays int) (int64, error)
}

// Recorder writes run records and publishes the matching lifecycle events.
type Recorder struct {
	store RecordStore
	bus   *events.Bus

	retentionDays   int
	cleanupInterval time.Duration
}

// New creates a Recorder. bus may be nil when event publication is not
// wanted (tests).
func New(store RecordStore, bus *events.Bus, retentionDays int, cleanupInterval time.Duration) *Recorder {
	if cleanupInterval <= 0 {
		cleanupInterval = 12 * time.Hour
	}
	return &Recorder{
		store:           store,
		bus:             bus,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
	}
}

// StartRun opens a running record for a queue execution and publishes
// run.started.
func (r *Recorder) StartRun(ctx context.Context, queueID, instanceID uuid.UUID) (*models.SearchHistoryRecord, error) {
	rec := &models.SearchHistoryRecord{
		QueueID:    queueID,
		InstanceID: instanceID,
		StartedAt:  time.Now().UTC(),
		Outcome:    models.OutcomeRunning,
	}
	if err := r.store.AppendHistory(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to open history record: %w", err)
	}
	r.publish(events.TopicRunStarted, rec, "")
	return rec, nil
}

// CompleteRun finalizes a record as completed with its counters and
// publishes run.completed.
func (r *Recorder) CompleteRun(ctx context.Context, rec *models.SearchHistoryRecord, searched, found int) error {
	rec.Outcome = models.OutcomeCompleted
	rec.ItemsSearched = searched
	rec.ItemsFound = found
	if err := r.store.FinalizeHistory(ctx, rec); err != nil {
		return fmt.Errorf("failed to finalize completed run: %w", err)
	}
	metrics.ExecutionsTotal.WithLabelValues(string(models.OutcomeCompleted)).Inc()
	metrics.ExecutionDuration.Observe(rec.Duration().Seconds())
	r.publish(events.TopicRunCompleted, rec, "")
	return nil
}

// FailRun finalizes a record as failed. summary must already be redacted;
// it is stored verbatim and published on run.failed.
func (r *Recorder) FailRun(ctx context.Context, rec *models.SearchHistoryRecord, searched, found int, summary string) error {
	rec.Outcome = models.OutcomeFailed
	rec.ItemsSearched = searched
	rec.ItemsFound = found
	if summary != "" {
		rec.ErrorSummary = &summary
	}
	if err := r.store.FinalizeHistory(ctx, rec); err != nil {
		return fmt.Errorf("failed to finalize failed run: %w", err)
	}
	metrics.ExecutionsTotal.WithLabelValues(string(models.OutcomeFailed)).Inc()
	metrics.ExecutionDuration.Observe(rec.Duration().Seconds())
	r.publish(events.TopicRunFailed, rec, summary)
	return nil
}

// InterruptRun finalizes a record as interrupted when shutdown abandons the
// run before it finishes.
func (r *Recorder) InterruptRun(ctx context.Context, rec *models.SearchHistoryRecord, searched, found int) error {
	rec.Outcome = models.OutcomeInterrupted
	rec.ItemsSearched = searched
	rec.ItemsFound = found
	if err := r.store.FinalizeHistory(ctx, rec); err != nil {
		return fmt.Errorf("failed to finalize interrupted run: %w", err)
	}
	metrics.ExecutionsTotal.WithLabelValues(string(models.OutcomeInterrupted)).Inc()
	return nil
}

// Reconcile marks records abandoned running by a previous process as
// interrupted. Runs once at startup, before the scheduler starts.
func (r *Recorder) Reconcile(ctx context.Context) error {
	n, err := r.store.ReconcileRunningHistory(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.ExecutionsTotal.WithLabelValues(string(models.OutcomeInterrupted)).Add(float64(n))
		logging.Warn().Int64("records", n).Msg("reconciled interrupted runs from previous process")
	}
	return nil
}

// List returns recent records, newest first. queueID nil lists all queues.
func (r *Recorder) List(ctx context.Context, queueID *uuid.UUID, limit int) ([]models.SearchHistoryRecord, error) {
	return r.store.ListHistory(ctx, queueID, limit)
}

// Stats aggregates per-queue performance.
func (r *Recorder) Stats(ctx context.Context, queueID uuid.UUID) (*models.QueueStats, error) {
	return r.store.QueueStats(ctx, queueID)
}

// SuccessRate returns the completed fraction of runs in the trailing window.
func (r *Recorder) SuccessRate(ctx context.Context, window time.Duration) (float64, error) {
	return r.store.SuccessRate(ctx, window)
}

// Trend returns the items-found daily series for the trailing days.
func (r *Recorder) Trend(ctx context.Context, days int) ([]models.TrendPoint, error) {
	return r.store.ItemsFoundTrend(ctx, days)
}

// Serve runs the retention cleanup loop until ctx is cancelled. It satisfies
// suture.Service so the supervisor owns its lifecycle.
func (r *Recorder) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.store.CleanupHistory(ctx, r.retentionDays)
			if err != nil {
				logging.Error().Err(err).Msg("history retention cleanup failed")
				continue
			}
			if n > 0 {
				logging.Info().Int64("deleted", n).
					Int("retention_days", r.retentionDays).
					Msg("history retention cleanup")
			}
		}
	}
}

func (r *Recorder) String() string { return "history-recorder" }

func (r *Recorder) publish(topic string, rec *models.SearchHistoryRecord, summary string) {
	if r.bus == nil {
		return
	}
	err := r.bus.PublishRun(topic, events.RunEvent{
		RunID:         rec.ID,
		QueueID:       rec.QueueID,
		InstanceID:    rec.InstanceID,
		ItemsSearched: rec.ItemsSearched,
		ItemsFound:    rec.ItemsFound,
		Error:         summary,
	})
	if err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("failed to publish run event")
	}
}
