// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package cooldown

import (
	"context"
	"time"

	"github.com/tomtom215/backlogarr/internal/logging"
)

// Sweeper periodically evicts expired tracker entries. It satisfies
// suture.Service and runs under the orchestration supervisor.
type Sweeper struct {
	tracker  *Tracker
	interval time.Duration
}

// NewSweeper creates a sweeper. A non-positive interval defaults to a
// quarter of the tracker's TTL, capped at one hour.
func NewSweeper(tracker *Tracker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = tracker.TTL() / 4
		if interval > time.Hour {
			interval = time.Hour
		}
	}
	return &Sweeper{tracker: tracker, interval: interval}
}

// Serve sweeps until ctx is cancelled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.tracker.Sweep(); removed > 0 {
				logging.Debug().Int("removed", removed).Int("remaining", s.tracker.Len()).
					Msg("cooldown entries swept")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sweeper) String() string { return "cooldown-sweeper" }
