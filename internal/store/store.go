// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package store persists the entities the search engine owns - instances,
// search queues, and execution history - in an embedded DuckDB database.
//
// The schema is created in full at startup; there is no migration machinery
// yet. All timestamps are stored in UTC. UUIDs are stored as TEXT so records
// stay portable across driver versions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/backlogarr/internal/config"
	"github.com/tomtom215/backlogarr/internal/logging"
)

// Store wraps the DuckDB connection and provides data access methods.
type Store struct {
	conn *sql.DB
}

// New opens (or creates) the database and bootstraps the schema.
// A path of ":memory:" or "" opens an in-memory database.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	dsn := ""
	if cfg.Path != "" && cfg.Path != ":memory:" {
		// Ensure the parent directory exists; 0750 per gosec G301.
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
		dsn = cfg.Path
	}

	settings := make([]string, 0, 2)
	if cfg.MaxMemory != "" {
		settings = append(settings, "max_memory="+cfg.MaxMemory)
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	settings = append(settings, fmt.Sprintf("threads=%d", threads))
	if len(settings) > 0 && dsn != "" {
		dsn += "?" + strings.Join(settings, "&")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.createTables(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Msg("Store initialized")
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// schemaContext bounds schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core tables.
func (s *Store) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			base_url TEXT NOT NULL,
			credential_ref TEXT NOT NULL,
			requests_per_second DOUBLE NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS search_queues (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			name TEXT NOT NULL,
			strategy TEXT NOT NULL,
			min_quality_score INTEGER NOT NULL DEFAULT 0,
			min_age_days INTEGER NOT NULL DEFAULT 0,
			recent_days INTEGER NOT NULL DEFAULT 0,
			recurring BOOLEAN NOT NULL,
			interval_seconds BIGINT NOT NULL,
			status TEXT NOT NULL,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			next_run_at TIMESTAMP,
			last_run_at TIMESTAMP,
			is_active BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS search_history (
			id TEXT PRIMARY KEY,
			queue_id TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			outcome TEXT NOT NULL,
			items_searched INTEGER NOT NULL DEFAULT 0,
			items_found INTEGER NOT NULL DEFAULT 0,
			error_summary TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queues_next_run ON search_queues (is_active, next_run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_queue ON search_history (queue_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_completed ON search_history (completed_at)`,
	}

	for _, query := range queries {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// nullTime converts *time.Time to its SQL representation.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// timePtr converts a nullable scanned time back to *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// nullString converts *string to its SQL representation.
func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// stringPtr converts a nullable scanned string back to *string.
func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
