// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireThrottlesToConfiguredRate(t *testing.T) {
	t.Parallel()

	// The bucket starts empty, so 10 acquisitions at 5 tokens/s are fully
	// paced by refill and take at least 2s.
	b := newBucket("test", 5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := b.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 1800*time.Millisecond {
		t.Errorf("10 acquisitions at 5/s took %s, want >= ~2s", elapsed)
	}
}

func TestAcquireTimeout(t *testing.T) {
	t.Parallel()

	// One token every 10s, starting empty: the first acquisition already
	// cannot be satisfied before the deadline.
	b := newBucket("test", 0.1)

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Acquire(timeoutCtx)
	if !errors.Is(err, ErrRateLimitTimeout) {
		t.Errorf("Acquire past deadline = %v, want ErrRateLimitTimeout", err)
	}
}

func TestAcquireCancellation(t *testing.T) {
	t.Parallel()

	b := newBucket("test", 0.1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Acquire(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrRateLimitTimeout) {
			t.Errorf("canceled Acquire = %v, want ErrRateLimitTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled Acquire did not return")
	}
}

func TestBurstFloor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate float64
		want int
	}{
		{0.25, 1},
		{1, 1},
		{2.5, 3},
		{5, 5},
	}
	for _, tt := range tests {
		if got := burstFor(tt.rate); got != tt.want {
			t.Errorf("burstFor(%g) = %d, want %d", tt.rate, got, tt.want)
		}
	}

	// A fresh bucket holds no tokens.
	if newBucket("slow", 0.25).Allow() {
		t.Error("fresh bucket must start empty")
	}
}

func TestRegistryReusesAndReconfigures(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	b1 := r.Bucket("inst-a", 5)
	b2 := r.Bucket("inst-a", 5)
	if b1 != b2 {
		t.Error("same key must return the same bucket")
	}
	if r.Len() != 1 {
		t.Errorf("registry len = %d, want 1", r.Len())
	}

	// Rate change reconfigures the existing bucket rather than replacing it.
	b3 := r.Bucket("inst-a", 2)
	if b3 != b1 {
		t.Error("rate change must not replace the bucket")
	}
	if got := b3.Rate(); got != 2 {
		t.Errorf("reconfigured rate = %g, want 2", got)
	}

	r.Bucket("inst-b", 1)
	if r.Len() != 2 {
		t.Errorf("registry len = %d, want 2", r.Len())
	}
}

func TestTokenBucketBound(t *testing.T) {
	t.Parallel()

	// Property: with capacity C and rate R, no more than C + R*t immediate
	// grants occur in a window of length t.
	const (
		capacity = 3
		ratePerS = 10.0
		window   = 500 * time.Millisecond
	)
	b := newBucket("bound", ratePerS)
	b.setRate(ratePerS)
	b.limiter.SetBurst(capacity)

	granted := 0
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if b.Allow() {
			granted++
		}
		time.Sleep(time.Millisecond)
	}

	// C + R*t plus one token of scheduling slack.
	maxAllowed := capacity + int(ratePerS*window.Seconds()) + 1
	if granted > maxAllowed {
		t.Errorf("granted %d tokens in %s, bound is %d", granted, window, maxAllowed)
	}
}
