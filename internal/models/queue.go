// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the lifecycle state of a search queue.
//
// Transitions: pending -> in_progress -> {completed, failed}; a recurring
// queue returns to pending with a freshly computed next_run_at. paused is
// reachable only from pending; an in_progress run is never interrupted by a
// pause.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueInProgress QueueStatus = "in_progress"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
	QueuePaused     QueueStatus = "paused"
)

// Valid reports whether the status is a known queue status.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueuePending, QueueInProgress, QueueCompleted, QueueFailed, QueuePaused:
		return true
	}
	return false
}

// StrategyKind selects which items a queue searches for. The set is closed;
// dispatch over it is exhaustive rather than string-keyed at runtime.
type StrategyKind string

const (
	// StrategyMissing searches items with no file on disk.
	StrategyMissing StrategyKind = "missing"
	// StrategyCutoffUnmet searches items whose file is below the quality cutoff.
	StrategyCutoffUnmet StrategyKind = "cutoff_unmet"
	// StrategyRecent searches missing items added within a trailing window.
	StrategyRecent StrategyKind = "recent"
	// StrategyCustom searches missing items matching a declarative predicate.
	StrategyCustom StrategyKind = "custom"
)

// Valid reports whether the kind is a known strategy.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyMissing, StrategyCutoffUnmet, StrategyRecent, StrategyCustom:
		return true
	}
	return false
}

// StrategyParams carries the optional parameters some strategies evaluate.
// Zero values mean "no constraint".
type StrategyParams struct {
	// MinQualityScore is the minimum quality weight an item must carry to be
	// yielded by the custom strategy.
	MinQualityScore int `json:"min_quality_score,omitempty"`

	// MinAgeDays is the minimum age (since the item was added) for the
	// custom strategy. Freshly added items are left to the service's own
	// automatic search.
	MinAgeDays int `json:"min_age_days,omitempty"`

	// RecentDays bounds the trailing window of the recent strategy.
	// Defaults to 7 when zero.
	RecentDays int `json:"recent_days,omitempty"`
}

// FailureShutoffThreshold is the number of consecutive failed executions
// after which a queue is automatically deactivated.
const FailureShutoffThreshold = 5

// Errors for queue validation
var (
	ErrInvalidStrategy      = errors.New("unknown search strategy")
	ErrInvalidQueueInterval = errors.New("recurring queue interval must be at least one minute")
)

// SearchQueue is a configured, possibly-recurring unit of backlog search work
// tied to one instance and one strategy. Queues are created externally and
// mutated exclusively by the execution engine and scheduler.
type SearchQueue struct {
	ID         uuid.UUID `json:"id"`
	InstanceID uuid.UUID `json:"instance_id"`
	Name       string    `json:"name"`

	Strategy       StrategyKind    `json:"strategy"`
	StrategyParams *StrategyParams `json:"strategy_params,omitempty"`

	Recurring bool          `json:"recurring"`
	Interval  time.Duration `json:"interval"`

	Status QueueStatus `json:"status"`

	// ConsecutiveFailures counts failed executions since the last success.
	// It resets to zero on any successful completion; reaching
	// FailureShutoffThreshold deactivates the queue.
	ConsecutiveFailures int `json:"consecutive_failures"`

	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// IsActive gates scheduling. A deactivated queue keeps its configuration
	// but schedules no further runs until manually reactivated.
	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks queue configuration before persistence.
func (q *SearchQueue) Validate() error {
	if !q.Strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, q.Strategy)
	}
	if q.Recurring && q.Interval < time.Minute {
		return fmt.Errorf("%w: %s", ErrInvalidQueueInterval, q.Interval)
	}
	if q.ConsecutiveFailures < 0 {
		return fmt.Errorf("consecutive_failures must be >= 0, got %d", q.ConsecutiveFailures)
	}
	return nil
}

// ComputeNextRun returns the next run time for a recurring queue, anchored at
// now. The result is always in the future relative to now so a slow run never
// schedules itself into the past.
func (q *SearchQueue) ComputeNextRun(now time.Time) time.Time {
	return now.Add(q.Interval)
}
