// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package cooldown suppresses re-searching items searched too recently.
//
// The tracker is a process-lifetime in-memory map with a TTL (default 24h).
// Entries older than the TTL are treated as absent on lookup; a periodic
// sweep evicts them so the map does not grow with the whole backlog.
// Single-process only: sharing an instance across processes would require
// moving this state behind the same interface into an external store.
package cooldown

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/metrics"
)

// DefaultTTL is the default minimum interval between searches of one item.
const DefaultTTL = 24 * time.Hour

// Key identifies one searchable item across instances. Instance and item
// type are part of the key so a Sonarr episode id never collides with a
// Radarr movie id.
type Key struct {
	InstanceID uuid.UUID
	ItemType   string
	ItemID     int64
}

// String renders the key for logging.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.InstanceID, k.ItemType, k.ItemID)
}

// Tracker records when items were last searched and answers suppression
// queries as a pure function of time. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Key]time.Time

	// now is injectable for tests.
	now func() time.Time
}

// New creates a tracker with the given TTL; non-positive falls back to
// DefaultTTL.
func New(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:     ttl,
		entries: make(map[Key]time.Time),
		now:     time.Now,
	}
}

// IsSuppressed reports whether the item was searched within the TTL.
// An entry exactly at the TTL boundary is eligible again.
func (t *Tracker) IsSuppressed(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.entries[key]
	if !ok {
		return false
	}
	if t.now().Sub(last) >= t.ttl {
		// Logically expired; evict lazily.
		delete(t.entries, key)
		return false
	}
	metrics.CooldownSuppressed.Inc()
	return true
}

// MarkSearched records that the item was searched now.
func (t *Tracker) MarkSearched(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = t.now()
	metrics.CooldownEntries.Set(float64(len(t.entries)))
}

// Sweep evicts expired entries and returns how many were removed. Called
// periodically by the owning service; correctness does not depend on it.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, last := range t.entries {
		if now.Sub(last) >= t.ttl {
			delete(t.entries, key)
			removed++
		}
	}
	metrics.CooldownEntries.Set(float64(len(t.entries)))
	return removed
}

// Len returns the number of live entries, counting logically expired entries
// that have not been swept yet.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// TTL returns the configured suppression window.
func (t *Tracker) TTL() time.Duration {
	return t.ttl
}
