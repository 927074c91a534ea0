// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package cooldown

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestTracker(ttl time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := New(ttl)
	tr.now = clock.now
	return tr, clock
}

func testKey(id int64) Key {
	return Key{InstanceID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), ItemType: "episode", ItemID: id}
}

func TestSuppressionWithinTTL(t *testing.T) {
	t.Parallel()

	tr, clock := newTestTracker(24 * time.Hour)
	key := testKey(1)

	if tr.IsSuppressed(key) {
		t.Error("unknown key must not be suppressed")
	}

	tr.MarkSearched(key)
	if !tr.IsSuppressed(key) {
		t.Error("key must be suppressed immediately after marking")
	}

	clock.advance(23 * time.Hour)
	if !tr.IsSuppressed(key) {
		t.Error("key must still be suppressed before the TTL boundary")
	}
}

func TestEligibleAtTTLBoundary(t *testing.T) {
	t.Parallel()

	tr, clock := newTestTracker(24 * time.Hour)
	key := testKey(2)

	tr.MarkSearched(key)

	// Exactly at T + TTL the item is eligible again.
	clock.advance(24 * time.Hour)
	if tr.IsSuppressed(key) {
		t.Error("key must be eligible at exactly T + TTL")
	}
}

func TestExpiredLookupEvictsLazily(t *testing.T) {
	t.Parallel()

	tr, clock := newTestTracker(time.Hour)
	key := testKey(3)

	tr.MarkSearched(key)
	clock.advance(2 * time.Hour)

	if tr.IsSuppressed(key) {
		t.Fatal("expired key reported suppressed")
	}
	if tr.Len() != 0 {
		t.Errorf("expired entry not evicted on lookup, len = %d", tr.Len())
	}
}

func TestReMarkResetsWindow(t *testing.T) {
	t.Parallel()

	tr, clock := newTestTracker(time.Hour)
	key := testKey(4)

	tr.MarkSearched(key)
	clock.advance(50 * time.Minute)
	tr.MarkSearched(key)
	clock.advance(50 * time.Minute)

	if !tr.IsSuppressed(key) {
		t.Error("re-marking must restart the suppression window")
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()

	tr, clock := newTestTracker(time.Hour)
	for i := int64(0); i < 10; i++ {
		tr.MarkSearched(testKey(i))
	}
	clock.advance(30 * time.Minute)
	for i := int64(10); i < 15; i++ {
		tr.MarkSearched(testKey(i))
	}

	// First batch is expired, second is not.
	clock.advance(31 * time.Minute)
	removed := tr.Sweep()

	if removed != 10 {
		t.Errorf("Sweep removed %d entries, want 10", removed)
	}
	if tr.Len() != 5 {
		t.Errorf("post-sweep len = %d, want 5", tr.Len())
	}
}

func TestDefaultTTLFallback(t *testing.T) {
	t.Parallel()

	if got := New(0).TTL(); got != DefaultTTL {
		t.Errorf("New(0).TTL() = %s, want %s", got, DefaultTTL)
	}
	if got := New(-time.Hour).TTL(); got != DefaultTTL {
		t.Errorf("New(-1h).TTL() = %s, want %s", got, DefaultTTL)
	}
}

func TestKeySeparation(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker(time.Hour)
	instA := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	instB := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	tr.MarkSearched(Key{InstanceID: instA, ItemType: "episode", ItemID: 7})

	if tr.IsSuppressed(Key{InstanceID: instB, ItemType: "episode", ItemID: 7}) {
		t.Error("same item id on a different instance must not be suppressed")
	}
	if tr.IsSuppressed(Key{InstanceID: instA, ItemType: "movie", ItemID: 7}) {
		t.Error("same item id with a different type must not be suppressed")
	}
}
