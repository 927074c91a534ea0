// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package arr

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/metrics"
	"github.com/tomtom215/backlogarr/internal/models"
)

// BreakerClient wraps a Client with a circuit breaker so a flapping instance
// is cut off before the per-queue consecutive-failure shutoff engages.
//
// Authentication and validation errors do not trip the breaker: they are
// configuration problems, not service-health signals. The breaker uses real
// time for its interval and timeout accounting; tests exercise the wrapped
// client directly.
type BreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// Ensure BreakerClient implements Client
var _ Client = (*BreakerClient)(nil)

// NewBreakerClient wraps client in a circuit breaker named after the
// instance. The circuit opens after a 60% failure rate over at least 10
// requests in a one-minute window and probes again after two minutes.
func NewBreakerClient(name string, client Client) *BreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // concurrent probes allowed in half-open state
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Str("instance", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("Opening circuit for instance")
				return true
			}
			return false
		},

		IsSuccessful: func(err error) bool {
			// Config-level failures must not open the circuit.
			return err == nil || IsFatal(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("instance", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerClient{client: client, cb: cb, name: name}
}

// State returns the current breaker state.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

// execute routes a call through the breaker. An open circuit surfaces as a
// transient error so the engine's normal failure accounting applies.
func execute[T any](b *BreakerClient, fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, &APIError{
				Class:   ClassTransient,
				Op:      b.name,
				Message: "circuit breaker open: instance unavailable",
			}
		}
		return zero, err
	}
	typed, _ := result.(T)
	return typed, nil
}

// TestConnection implements Client.
func (b *BreakerClient) TestConnection(ctx context.Context) (*models.HealthResult, error) {
	return execute(b, func() (*models.HealthResult, error) {
		return b.client.TestConnection(ctx)
	})
}

// ListMissing implements Client.
func (b *BreakerClient) ListMissing(ctx context.Context, cursor Cursor) (*models.WantedPage, error) {
	return execute(b, func() (*models.WantedPage, error) {
		return b.client.ListMissing(ctx, cursor)
	})
}

// ListCutoffUnmet implements Client.
func (b *BreakerClient) ListCutoffUnmet(ctx context.Context, cursor Cursor) (*models.WantedPage, error) {
	return execute(b, func() (*models.WantedPage, error) {
		return b.client.ListCutoffUnmet(ctx, cursor)
	})
}

// TriggerSearch implements Client.
func (b *BreakerClient) TriggerSearch(ctx context.Context, itemIDs []int64) (*models.CommandHandle, error) {
	return execute(b, func() (*models.CommandHandle, error) {
		return b.client.TriggerSearch(ctx, itemIDs)
	})
}

// CommandStatus implements Client.
func (b *BreakerClient) CommandStatus(ctx context.Context, handle models.CommandHandle) (models.CommandState, error) {
	return execute(b, func() (models.CommandState, error) {
		return b.client.CommandStatus(ctx, handle)
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
