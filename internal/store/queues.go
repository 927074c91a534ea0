// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/models"
)

const queueColumns = `id, instance_id, name, strategy, min_quality_score, min_age_days,
	recent_days, recurring, interval_seconds, status, consecutive_failures,
	next_run_at, last_run_at, is_active, created_at, updated_at`

// CreateQueue persists a new search queue.
func (s *Store) CreateQueue(ctx context.Context, q *models.SearchQueue) error {
	if err := q.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = models.QueuePending
	}

	params := q.StrategyParams
	if params == nil {
		params = &models.StrategyParams{}
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO search_queues (`+queueColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID.String(), q.InstanceID.String(), q.Name, string(q.Strategy),
		params.MinQualityScore, params.MinAgeDays, params.RecentDays,
		q.Recurring, int64(q.Interval/time.Second), string(q.Status),
		q.ConsecutiveFailures, nullTime(q.NextRunAt), nullTime(q.LastRunAt),
		q.IsActive, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert queue: %w", err)
	}
	return nil
}

// GetQueue loads one queue by id.
func (s *Store) GetQueue(ctx context.Context, id uuid.UUID) (*models.SearchQueue, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM search_queues WHERE id = ?`, id.String())
	return scanQueue(row)
}

// ListQueues returns all queues; activeOnly restricts to schedulable ones.
func (s *Store) ListQueues(ctx context.Context, activeOnly bool) ([]models.SearchQueue, error) {
	query := `SELECT ` + queueColumns + ` FROM search_queues`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query queues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.SearchQueue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// UpdateQueue persists the queue's full mutable state. Used by the engine
// and scheduler for status transitions, failure accounting, and run-time
// bookkeeping.
func (s *Store) UpdateQueue(ctx context.Context, q *models.SearchQueue) error {
	if err := q.Validate(); err != nil {
		return err
	}
	q.UpdatedAt = time.Now().UTC()

	params := q.StrategyParams
	if params == nil {
		params = &models.StrategyParams{}
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE search_queues SET instance_id = ?, name = ?, strategy = ?,
			min_quality_score = ?, min_age_days = ?, recent_days = ?,
			recurring = ?, interval_seconds = ?, status = ?,
			consecutive_failures = ?, next_run_at = ?, last_run_at = ?,
			is_active = ?, updated_at = ?
		 WHERE id = ?`,
		q.InstanceID.String(), q.Name, string(q.Strategy),
		params.MinQualityScore, params.MinAgeDays, params.RecentDays,
		q.Recurring, int64(q.Interval/time.Second), string(q.Status),
		q.ConsecutiveFailures, nullTime(q.NextRunAt), nullTime(q.LastRunAt),
		q.IsActive, q.UpdatedAt, q.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update queue: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteQueue removes a queue record.
func (s *Store) DeleteQueue(ctx context.Context, id uuid.UUID) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM search_queues WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete queue: %w", err)
	}
	return requireRowAffected(res)
}

// ReconcileInterruptedQueues resets queues left in_progress by a crash back
// to pending so the scheduler can pick them up again. Returns how many rows
// were touched.
func (s *Store) ReconcileInterruptedQueues(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE search_queues SET status = ?, updated_at = ? WHERE status = ?`,
		string(models.QueuePending), time.Now().UTC(), string(models.QueueInProgress))
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile interrupted queues: %w", err)
	}
	return res.RowsAffected()
}

func scanQueue(row rowScanner) (*models.SearchQueue, error) {
	var (
		q                    models.SearchQueue
		id, instanceID       string
		strategy, status     string
		params               models.StrategyParams
		intervalSeconds      int64
		nextRunAt, lastRunAt sql.NullTime
	)
	err := row.Scan(&id, &instanceID, &q.Name, &strategy,
		&params.MinQualityScore, &params.MinAgeDays, &params.RecentDays,
		&q.Recurring, &intervalSeconds, &status, &q.ConsecutiveFailures,
		&nextRunAt, &lastRunAt, &q.IsActive, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue: %w", err)
	}

	if q.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt queue id %q: %w", id, err)
	}
	if q.InstanceID, err = uuid.Parse(instanceID); err != nil {
		return nil, fmt.Errorf("corrupt queue instance id %q: %w", instanceID, err)
	}
	q.Strategy = models.StrategyKind(strategy)
	q.Status = models.QueueStatus(status)
	q.Interval = time.Duration(intervalSeconds) * time.Second
	q.NextRunAt = timePtr(nextRunAt)
	q.LastRunAt = timePtr(lastRunAt)
	if params != (models.StrategyParams{}) {
		q.StrategyParams = &params
	}
	return &q, nil
}
