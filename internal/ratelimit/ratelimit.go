// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package ratelimit provides per-instance token buckets gating every wire
// client call to an external service.
//
// Each instance gets one bucket whose refill rate and burst capacity equal
// its configured requests/second. Buckets start empty, so every dispatch is
// paced by refill. Acquire is a cooperative suspension point:
// callers wait for a token without busy polling, and a context deadline turns
// into ErrRateLimitTimeout.
//
// State is in-memory and single-process by design; sharing an instance
// between independent processes requires externalizing this state, which is
// out of scope.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/backlogarr/internal/metrics"
)

// ErrRateLimitTimeout is returned when a token could not be acquired before
// the caller's deadline or cancellation.
var ErrRateLimitTimeout = errors.New("timed out waiting for rate limit token")

// Bucket is one instance's token bucket.
type Bucket struct {
	name    string
	limiter *rate.Limiter
}

// newBucket builds a bucket with capacity and refill both derived from the
// configured requests/second. Burst capacity is the ceiling of the rate, with
// a floor of one so sub-1/s rates still make progress. The bucket starts
// empty: the very first call is paced too, so N dispatches against a rate R
// never complete faster than N/R seconds.
func newBucket(name string, requestsPerSecond float64) *Bucket {
	burst := burstFor(requestsPerSecond)
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	limiter.AllowN(time.Now(), burst)
	return &Bucket{
		name:    name,
		limiter: limiter,
	}
}

func burstFor(requestsPerSecond float64) int {
	burst := int(math.Ceil(requestsPerSecond))
	if burst < 1 {
		burst = 1
	}
	return burst
}

// Acquire blocks until a token is available or ctx is done. Cancellation and
// deadline expiry both surface as ErrRateLimitTimeout wrapping the cause.
func (b *Bucket) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		metrics.RateLimitTimeouts.WithLabelValues(b.name).Inc()
		return errors.Join(ErrRateLimitTimeout, err)
	}
	metrics.RateLimitWaitDuration.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	return nil
}

// Allow reports whether a token is immediately available, consuming it if so.
// Used by tests and diagnostics; the engine path always uses Acquire.
func (b *Bucket) Allow() bool {
	return b.limiter.Allow()
}

// Rate returns the bucket's current refill rate in tokens/second.
func (b *Bucket) Rate() float64 {
	return float64(b.limiter.Limit())
}

// setRate reconfigures refill rate and burst in place.
func (b *Bucket) setRate(requestsPerSecond float64) {
	b.limiter.SetLimit(rate.Limit(requestsPerSecond))
	b.limiter.SetBurst(burstFor(requestsPerSecond))
}

// Registry holds one bucket per instance, keyed by instance name or id.
// Buckets are created on first use and reconfigured in place when an
// instance's rate changes, so waiters on the old rate are not stranded.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewRegistry creates an empty bucket registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]*Bucket)}
}

// Bucket returns the bucket for key, creating it with the given rate or
// updating the rate if it changed since the last call.
func (r *Registry) Bucket(key string, requestsPerSecond float64) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = newBucket(key, requestsPerSecond)
		r.buckets[key] = b
		return b
	}
	if b.Rate() != requestsPerSecond {
		b.setRate(requestsPerSecond)
	}
	return b
}

// Len returns the number of registered buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
