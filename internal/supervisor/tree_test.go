// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// tickService counts Serve invocations and blocks until cancellation.
type tickService struct {
	name   string
	starts atomic.Int32
	fail   atomic.Bool
}

func (s *tickService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	if s.fail.Load() {
		s.fail.Store(false)
		return errors.New("induced failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *tickService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTreeRunsBothLayers(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger(), DefaultTreeConfig())
	orch := &tickService{name: "orch"}
	api := &tickService{name: "api"}
	tree.AddOrchestrationService(orch)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for orch.starts.Load() == 0 || api.starts.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("services not started: orch=%d api=%d", orch.starts.Load(), api.starts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop after cancellation")
	}
}

func TestTreeRestartsFailedService(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger(), TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	svc := &tickService{name: "flaky"}
	svc.fail.Store(true)
	tree.AddOrchestrationService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for svc.starts.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("service restarted %d times, want >= 2", svc.starts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
