// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package config loads and validates Backlogarr configuration.
//
// Configuration is layered via Koanf v2 (highest priority wins):
//   - Environment variables (BACKLOGARR_SECTION_KEY form)
//   - Config file (config.yaml)
//   - Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Backlogarr server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Search    SearchConfig    `koanf:"search"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	History   HistoryConfig   `koanf:"history"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs/RateLimitWindow throttle inbound API requests
	// (this is the API surface's own limiter, unrelated to the per-instance
	// token buckets gating outbound search calls).
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the database file location. ":memory:" or empty opens an
	// in-memory database (used by tests).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// SearchConfig configures the queue execution engine.
type SearchConfig struct {
	// MaxConcurrentSearches bounds how many distinct queues may execute at
	// once. Executions of the same queue are always serialized regardless.
	MaxConcurrentSearches int `koanf:"max_concurrent_searches"`

	// BatchSize is the number of candidate items pulled from a strategy
	// sequence per iteration.
	BatchSize int `koanf:"batch_size"`

	// CooldownTTL suppresses re-searching an item searched within this window.
	CooldownTTL time.Duration `koanf:"cooldown_ttl"`

	// RunTimeout is the wall-clock budget for a single queue run, bounding
	// pathological backlog sizes.
	RunTimeout time.Duration `koanf:"run_timeout"`

	// RequestTimeout bounds each individual wire-client call.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RetryAttempts and RetryInitialDelay drive the wire client's
	// exponential backoff for transient and rate-limited errors.
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryInitialDelay time.Duration `koanf:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`
}

// SchedulerConfig configures the persistent job scheduler.
type SchedulerConfig struct {
	// PollInterval is how often the due-job heap is checked.
	PollInterval time.Duration `koanf:"poll_interval"`

	// MisfireGrace is the window within which a late trigger still counts
	// as on time. Firings later than this are coalesced into a single
	// consolidated run.
	MisfireGrace time.Duration `koanf:"misfire_grace"`

	// DrainTimeout bounds how long graceful shutdown waits for in-flight
	// executions before abandoning them.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// HistoryConfig configures the execution audit log.
type HistoryConfig struct {
	// RetentionDays is how long finalized history records are kept.
	RetentionDays int `koanf:"retention_days"`

	// CleanupInterval is how often expired records are purged.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8787,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path:      "/data/backlogarr.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Search: SearchConfig{
			MaxConcurrentSearches: 3,
			BatchSize:             25,
			CooldownTTL:           24 * time.Hour,
			RunTimeout:            30 * time.Minute,
			RequestTimeout:        30 * time.Second,
			RetryAttempts:         3,
			RetryInitialDelay:     2 * time.Second,
			RetryMaxDelay:         10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Second,
			MisfireGrace: 300 * time.Second,
			DrainTimeout: 30 * time.Second,
		},
		History: HistoryConfig{
			RetentionDays:   90,
			CleanupInterval: 12 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Search.MaxConcurrentSearches < 1 {
		return fmt.Errorf("search.max_concurrent_searches must be >= 1, got %d", c.Search.MaxConcurrentSearches)
	}
	if c.Search.BatchSize < 1 {
		return fmt.Errorf("search.batch_size must be >= 1, got %d", c.Search.BatchSize)
	}
	if c.Search.CooldownTTL <= 0 {
		return fmt.Errorf("search.cooldown_ttl must be positive, got %s", c.Search.CooldownTTL)
	}
	if c.Search.RetryAttempts < 1 {
		return fmt.Errorf("search.retry_attempts must be >= 1, got %d", c.Search.RetryAttempts)
	}
	if c.Search.RetryInitialDelay <= 0 || c.Search.RetryMaxDelay < c.Search.RetryInitialDelay {
		return fmt.Errorf("search retry delays invalid: initial %s, max %s",
			c.Search.RetryInitialDelay, c.Search.RetryMaxDelay)
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive, got %s", c.Scheduler.PollInterval)
	}
	if c.Scheduler.MisfireGrace < 0 {
		return fmt.Errorf("scheduler.misfire_grace must be >= 0, got %s", c.Scheduler.MisfireGrace)
	}
	if c.History.RetentionDays < 1 {
		return fmt.Errorf("history.retention_days must be >= 1, got %d", c.History.RetentionDays)
	}
	return nil
}
