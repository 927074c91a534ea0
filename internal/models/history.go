// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package models

import (
	"time"

	"github.com/google/uuid"
)

// RunOutcome is the final disposition of a queue execution.
type RunOutcome string

const (
	// OutcomeRunning marks a record whose execution has started but not yet
	// finalized. CompletedAt is nil while in this state.
	OutcomeRunning RunOutcome = "running"
	// OutcomeCompleted marks a run that finished normally.
	OutcomeCompleted RunOutcome = "completed"
	// OutcomeFailed marks a run aborted by an unrecoverable error.
	OutcomeFailed RunOutcome = "failed"
	// OutcomeInterrupted marks a run abandoned by process shutdown and
	// reconciled on the next startup.
	OutcomeInterrupted RunOutcome = "interrupted"
)

// SearchHistoryRecord is one append-only entry in the execution audit log.
// A record is created when a run starts and finalized exactly once when the
// run completes, fails, or is reconciled after a crash.
type SearchHistoryRecord struct {
	ID         uuid.UUID `json:"id"`
	QueueID    uuid.UUID `json:"queue_id"`
	InstanceID uuid.UUID `json:"instance_id"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Outcome RunOutcome `json:"outcome"`

	// ItemsSearched and ItemsFound advance together on each dispatch the
	// instance accepted. Cooldown-suppressed and failed candidates appear
	// in neither counter.
	ItemsSearched int `json:"items_searched"`
	ItemsFound    int `json:"items_found"`

	// ErrorSummary is a redacted, human-readable failure description.
	// It never contains credentials or raw stack traces.
	ErrorSummary *string `json:"error_summary,omitempty"`
}

// Duration returns the wall-clock duration of a finalized run, or zero while
// the run is still in flight.
func (r *SearchHistoryRecord) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// QueueStats aggregates per-queue execution performance for the dashboard.
type QueueStats struct {
	QueueID         uuid.UUID     `json:"queue_id"`
	TotalRuns       int           `json:"total_runs"`
	CompletedRuns   int           `json:"completed_runs"`
	FailedRuns      int           `json:"failed_runs"`
	ItemsSearched   int           `json:"items_searched"`
	ItemsFound      int           `json:"items_found"`
	AverageDuration time.Duration `json:"average_duration"`
	LastRunAt       *time.Time    `json:"last_run_at,omitempty"`
}

// TrendPoint is one day of the items-found trend series.
type TrendPoint struct {
	Day        time.Time `json:"day"`
	ItemsFound int       `json:"items_found"`
	Runs       int       `json:"runs"`
}
