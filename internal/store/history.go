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

const historyColumns = `id, queue_id, instance_id, started_at, completed_at,
	outcome, items_searched, items_found, error_summary`

// AppendHistory writes the initial running record for an execution. The
// record's counters are zero and CompletedAt is nil until FinalizeHistory.
func (s *Store) AppendHistory(ctx context.Context, rec *models.SearchHistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Outcome == "" {
		rec.Outcome = models.OutcomeRunning
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO search_history (`+historyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.QueueID.String(), rec.InstanceID.String(),
		rec.StartedAt, nullTime(rec.CompletedAt), string(rec.Outcome),
		rec.ItemsSearched, rec.ItemsFound, nullString(rec.ErrorSummary))
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

// FinalizeHistory closes out a running record exactly once with its final
// outcome, counters, and optional error summary.
func (s *Store) FinalizeHistory(ctx context.Context, rec *models.SearchHistoryRecord) error {
	if rec.CompletedAt == nil {
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE search_history SET completed_at = ?, outcome = ?,
			items_searched = ?, items_found = ?, error_summary = ?
		 WHERE id = ? AND outcome = ?`,
		nullTime(rec.CompletedAt), string(rec.Outcome),
		rec.ItemsSearched, rec.ItemsFound, nullString(rec.ErrorSummary),
		rec.ID.String(), string(models.OutcomeRunning))
	if err != nil {
		return fmt.Errorf("failed to finalize history record: %w", err)
	}
	return requireRowAffected(res)
}

// ReconcileRunningHistory marks records left running by a crash as
// interrupted. Called once at startup before the scheduler starts.
func (s *Store) ReconcileRunningHistory(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE search_history SET outcome = ?, completed_at = ?
		 WHERE outcome = ?`,
		string(models.OutcomeInterrupted), time.Now().UTC(),
		string(models.OutcomeRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile running history: %w", err)
	}
	return res.RowsAffected()
}

// ListHistory returns the most recent records for a queue, newest first.
// A nil queueID lists across all queues.
func (s *Store) ListHistory(ctx context.Context, queueID *uuid.UUID, limit int) ([]models.SearchHistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + historyColumns + ` FROM search_history`
	args := []any{}
	if queueID != nil {
		query += ` WHERE queue_id = ?`
		args = append(args, queueID.String())
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.SearchHistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// QueueStats aggregates execution performance for one queue.
func (s *Store) QueueStats(ctx context.Context, queueID uuid.UUID) (*models.QueueStats, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'completed'),
			COUNT(*) FILTER (WHERE outcome = 'failed'),
			COALESCE(SUM(items_searched), 0),
			COALESCE(SUM(items_found), 0),
			COALESCE(AVG(epoch(completed_at - started_at)) FILTER (WHERE completed_at IS NOT NULL), 0),
			MAX(started_at)
		 FROM search_history WHERE queue_id = ?`, queueID.String())

	var (
		stats      models.QueueStats
		avgSeconds float64
		lastRun    sql.NullTime
	)
	err := row.Scan(&stats.TotalRuns, &stats.CompletedRuns, &stats.FailedRuns,
		&stats.ItemsSearched, &stats.ItemsFound, &avgSeconds, &lastRun)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate queue stats: %w", err)
	}
	stats.QueueID = queueID
	stats.AverageDuration = time.Duration(avgSeconds * float64(time.Second))
	stats.LastRunAt = timePtr(lastRun)
	return &stats, nil
}

// SuccessRate returns the fraction of finalized runs within the trailing
// window that completed, or zero when no runs are recorded.
func (s *Store) SuccessRate(ctx context.Context, window time.Duration) (float64, error) {
	since := time.Now().UTC().Add(-window)
	row := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE outcome = 'completed')
		 FROM search_history
		 WHERE started_at >= ? AND outcome != 'running'`, since)

	var total, completed int
	if err := row.Scan(&total, &completed); err != nil {
		return 0, fmt.Errorf("failed to compute success rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(completed) / float64(total), nil
}

// ItemsFoundTrend returns the per-day items-found series for the trailing
// number of days, oldest day first. Days with no runs are absent.
func (s *Store) ItemsFoundTrend(ctx context.Context, days int) ([]models.TrendPoint, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT date_trunc('day', started_at) AS day,
			COALESCE(SUM(items_found), 0), COUNT(*)
		 FROM search_history
		 WHERE started_at >= ?
		 GROUP BY day ORDER BY day`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Day, &p.ItemsFound, &p.Runs); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CleanupHistory deletes finalized records older than the retention horizon.
// Running records are never touched.
func (s *Store) CleanupHistory(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM search_history WHERE completed_at IS NOT NULL AND completed_at < ?`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up history: %w", err)
	}
	return res.RowsAffected()
}

func scanHistory(row rowScanner) (*models.SearchHistoryRecord, error) {
	var (
		rec          models.SearchHistoryRecord
		id, queueID  string
		instanceID   string
		outcome      string
		completedAt  sql.NullTime
		errorSummary sql.NullString
	)
	err := row.Scan(&id, &queueID, &instanceID, &rec.StartedAt, &completedAt,
		&outcome, &rec.ItemsSearched, &rec.ItemsFound, &errorSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan history record: %w", err)
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt history id %q: %w", id, err)
	}
	if rec.QueueID, err = uuid.Parse(queueID); err != nil {
		return nil, fmt.Errorf("corrupt history queue id %q: %w", queueID, err)
	}
	if rec.InstanceID, err = uuid.Parse(instanceID); err != nil {
		return nil, fmt.Errorf("corrupt history instance id %q: %w", instanceID, err)
	}
	rec.Outcome = models.RunOutcome(outcome)
	rec.CompletedAt = timePtr(completedAt)
	rec.ErrorSummary = stringPtr(errorSummary)
	return &rec, nil
}
