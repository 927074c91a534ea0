// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package arr

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/backlogarr/internal/models"
)

// Client is the uniform wire contract both service kinds implement.
// All methods are safe for concurrent use.
type Client interface {
	// TestConnection verifies reachability and credentials, reporting
	// round-trip latency and the service version.
	TestConnection(ctx context.Context) (*models.HealthResult, error)

	// ListMissing returns one page of items with no file on disk.
	ListMissing(ctx context.Context, cursor Cursor) (*models.WantedPage, error)

	// ListCutoffUnmet returns one page of items below their quality cutoff.
	ListCutoffUnmet(ctx context.Context, cursor Cursor) (*models.WantedPage, error)

	// TriggerSearch submits a fire-and-forget search command for the given
	// item ids and returns a handle pollable via CommandStatus.
	TriggerSearch(ctx context.Context, itemIDs []int64) (*models.CommandHandle, error)

	// CommandStatus polls the state of a previously triggered command.
	CommandStatus(ctx context.Context, handle models.CommandHandle) (models.CommandState, error)
}

// Gate is acquired before every network call. The per-instance token bucket
// implements it; a nil gate disables throttling (tests only).
type Gate interface {
	Acquire(ctx context.Context) error
}

// Cursor is an opaque position in a paginated listing. The zero value starts
// from the beginning. Cursors live only on the in-flight execution context
// and are never persisted.
type Cursor struct {
	page int
}

// Next returns the cursor for the following page.
func (c Cursor) Next() Cursor { return Cursor{page: c.pageNumber() + 1} }

// Page returns the 1-based page number this cursor addresses.
func (c Cursor) Page() int { return c.pageNumber() }

// pageNumber maps the cursor onto the service's 1-based page parameter.
func (c Cursor) pageNumber() int {
	if c.page < 1 {
		return 1
	}
	return c.page
}

// RetryConfig bounds the client's retry loop for transient and rate-limited
// errors.
type RetryConfig struct {
	// Attempts is the retry budget after the first try: a call makes at
	// most Attempts+1 network attempts.
	Attempts int

	// InitialDelay is the first backoff delay; each subsequent delay doubles
	// up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig matches the engine's contract: up to 3 retries,
// backoff starting at 2s, doubling, capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
	}
}

// Options configures client construction.
type Options struct {
	// Gate throttles every outbound call; nil disables throttling.
	Gate Gate

	// Timeout bounds each individual HTTP request. Default 30s.
	Timeout time.Duration

	// Retry bounds the retry loop. Zero value uses DefaultRetryConfig.
	Retry RetryConfig

	// PageSize for wanted/cutoff listings. Default 50.
	PageSize int
}

// New builds a client for the instance's kind. The API key is passed
// separately from the instance record: it is resolved from the credential
// store at call time and held only in memory.
func New(inst *models.Instance, apiKey string, opts Options) (Client, error) {
	base := newBaseClient(inst, apiKey, opts)
	switch inst.Kind {
	case models.KindSonarr:
		return &SonarrClient{base: base}, nil
	case models.KindRadarr:
		return &RadarrClient{base: base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidInstanceKind, inst.Kind)
	}
}
