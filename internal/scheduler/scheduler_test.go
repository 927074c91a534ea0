// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/config"
	"github.com/tomtom215/backlogarr/internal/engine"
	"github.com/tomtom215/backlogarr/internal/models"
	"github.com/tomtom215/backlogarr/internal/store"
)

type fakeQueueStore struct {
	mu     sync.Mutex
	queues map[uuid.UUID]models.SearchQueue
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{queues: make(map[uuid.UUID]models.SearchQueue)}
}

func (s *fakeQueueStore) put(q models.SearchQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[q.ID] = q
}

func (s *fakeQueueStore) GetQueue(_ context.Context, id uuid.UUID) (*models.SearchQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := q
	return &clone, nil
}

func (s *fakeQueueStore) ListQueues(_ context.Context, activeOnly bool) ([]models.SearchQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SearchQueue
	for _, q := range s.queues {
		if activeOnly && !q.IsActive {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *fakeQueueStore) UpdateQueue(_ context.Context, q *models.SearchQueue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[q.ID] = *q
	return nil
}

// fakeExecutor emulates the engine's post-run bookkeeping: it completes the
// run and reschedules recurring queues.
type fakeExecutor struct {
	store *fakeQueueStore
	err   error

	mu    sync.Mutex
	calls []uuid.UUID
}

func (f *fakeExecutor) Execute(ctx context.Context, queueID uuid.UUID) (*engine.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, queueID)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	q, err := f.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	q.ConsecutiveFailures = 0
	if q.Recurring && q.IsActive {
		next := time.Now().UTC().Add(q.Interval)
		q.Status = models.QueuePending
		q.NextRunAt = &next
	} else {
		q.Status = models.QueueCompleted
		q.NextRunAt = nil
	}
	if err := f.store.UpdateQueue(ctx, q); err != nil {
		return nil, err
	}
	return &engine.Result{QueueID: queueID, Outcome: models.OutcomeCompleted}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		PollInterval: 10 * time.Millisecond,
		MisfireGrace: 300 * time.Second,
		DrainTimeout: time.Second,
	}
}

func recurringQueue(nextRun *time.Time) models.SearchQueue {
	return models.SearchQueue{
		ID:         uuid.New(),
		InstanceID: uuid.New(),
		Name:       "nightly",
		Strategy:   models.StrategyMissing,
		Recurring:  true,
		Interval:   time.Hour,
		Status:     models.QueuePending,
		NextRunAt:  nextRun,
		IsActive:   true,
	}
}

func TestReloadIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	next := time.Now().UTC().Add(time.Hour)
	q1 := recurringQueue(&next)
	q2 := recurringQueue(&next)
	store.put(q1)
	store.put(q2)

	inactive := recurringQueue(&next)
	inactive.IsActive = false
	store.put(inactive)

	paused := recurringQueue(&next)
	paused.Status = models.QueuePaused
	store.put(paused)

	s := New(testConfig(), store, &fakeExecutor{store: store})
	ctx := context.Background()

	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("second Reload: %v", err)
	}

	jobs := s.Status().ActiveJobs
	if len(jobs) != 2 {
		t.Fatalf("registered %d jobs after double reload, want 2 (no duplicates, no inactive/paused)", len(jobs))
	}
	seen := map[uuid.UUID]bool{}
	for _, j := range jobs {
		if seen[j.QueueID] {
			t.Errorf("duplicate trigger for queue %s", j.QueueID)
		}
		seen[j.QueueID] = true
	}
}

func TestFireDueExecutesAndReschedules(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	due := time.Now().UTC().Add(-time.Second)
	q := recurringQueue(&due)
	store.put(q)

	exec := &fakeExecutor{store: store}
	s := New(testConfig(), store, exec)
	ctx := context.Background()

	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	s.fireDue(ctx)
	s.wg.Wait()

	if exec.callCount() != 1 {
		t.Fatalf("executor called %d times, want 1", exec.callCount())
	}

	// Recurring queue re-registers at the engine-computed next_run_at.
	jobs := s.Status().ActiveJobs
	if len(jobs) != 1 {
		t.Fatalf("have %d jobs after run, want 1", len(jobs))
	}
	if !jobs[0].NextRunAt.After(time.Now().Add(50 * time.Minute)) {
		t.Errorf("next run at %v, want roughly an hour out", jobs[0].NextRunAt)
	}
}

func TestMisfireCoalescesToSingleRun(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	// Due four intervals ago, well past the 300s grace: still exactly one run.
	stale := time.Now().UTC().Add(-4 * time.Hour)
	q := recurringQueue(&stale)
	store.put(q)

	exec := &fakeExecutor{store: store}
	s := New(testConfig(), store, exec)
	ctx := context.Background()

	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	s.fireDue(ctx)
	s.wg.Wait()
	s.fireDue(ctx)
	s.wg.Wait()

	if exec.callCount() != 1 {
		t.Errorf("executor called %d times for missed firings, want 1 consolidated run", exec.callCount())
	}
}

func TestOneShotQueueNotRescheduled(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	due := time.Now().UTC().Add(-time.Second)
	q := recurringQueue(&due)
	q.Recurring = false
	q.Interval = 0
	store.put(q)

	exec := &fakeExecutor{store: store}
	s := New(testConfig(), store, exec)
	ctx := context.Background()

	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	s.fireDue(ctx)
	s.wg.Wait()

	if got := len(s.Status().ActiveJobs); got != 0 {
		t.Errorf("one-shot queue still has %d triggers after its run", got)
	}
}

func TestReloadSkipsQueuesWithoutNextRun(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()

	// A one-shot queue that finished before the restart: still active, but
	// the engine cleared its next_run_at when the run completed.
	finished := recurringQueue(nil)
	finished.Recurring = false
	finished.Interval = 0
	finished.Status = models.QueueCompleted
	store.put(finished)

	// A freshly created queue that was never scheduled.
	unscheduled := recurringQueue(nil)
	store.put(unscheduled)

	exec := &fakeExecutor{store: store}
	s := New(testConfig(), store, exec)
	ctx := context.Background()

	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := len(s.Status().ActiveJobs); got != 0 {
		t.Fatalf("registered %d triggers for queues without a next_run_at, want 0", got)
	}

	s.fireDue(ctx)
	s.wg.Wait()
	if exec.callCount() != 0 {
		t.Errorf("executor called %d times after reload, want 0", exec.callCount())
	}

	stored, err := store.GetQueue(ctx, finished.ID)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if stored.Status != models.QueueCompleted {
		t.Errorf("finished queue status = %q after reload, want completed", stored.Status)
	}
}

func TestPausePreservesNextRunAt(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	next := time.Now().UTC().Add(30 * time.Minute)
	q := recurringQueue(&next)
	store.put(q)

	s := New(testConfig(), store, &fakeExecutor{store: store})
	ctx := context.Background()

	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if err := s.Pause(ctx, q.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	stored, err := store.GetQueue(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if stored.Status != models.QueuePaused {
		t.Errorf("status = %q, want paused", stored.Status)
	}
	if stored.NextRunAt == nil || !stored.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt = %v, want preserved %v", stored.NextRunAt, next)
	}
	if len(s.Status().ActiveJobs) != 0 {
		t.Error("paused queue still holds a trigger")
	}

	if err := s.Resume(ctx, q.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	jobs := s.Status().ActiveJobs
	if len(jobs) != 1 || !jobs[0].NextRunAt.Equal(next) {
		t.Errorf("resumed trigger = %+v, want one trigger at %v", jobs, next)
	}
	stored, _ = store.GetQueue(ctx, q.ID)
	if stored.Status != models.QueuePending {
		t.Errorf("status after resume = %q, want pending", stored.Status)
	}
}

func TestPauseDuringActiveRunLetsItFinish(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	next := time.Now().UTC().Add(time.Hour)
	q := recurringQueue(&next)
	q.Status = models.QueueInProgress
	store.put(q)

	s := New(testConfig(), store, &fakeExecutor{store: store})
	ctx := context.Background()

	if err := s.Pause(ctx, q.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// The run is untouched while it is in flight.
	stored, _ := store.GetQueue(ctx, q.ID)
	if stored.Status != models.QueueInProgress {
		t.Errorf("status = %q, pause must not interrupt an active run", stored.Status)
	}

	// Simulate the run finishing: the engine moves a recurring queue back to
	// pending with a fresh next_run_at, then the scheduler parks it.
	finished := *stored
	finished.Status = models.QueuePending
	later := time.Now().UTC().Add(time.Hour)
	finished.NextRunAt = &later
	store.put(finished)

	s.rescheduleAfterRun(ctx, q.ID)

	stored, _ = store.GetQueue(ctx, q.ID)
	if stored.Status != models.QueuePaused {
		t.Errorf("status after run finished = %q, want paused", stored.Status)
	}
	if len(s.Status().ActiveJobs) != 0 {
		t.Error("paused queue was rescheduled")
	}
	if stored.NextRunAt == nil {
		t.Error("next_run_at lost while parking the paused queue")
	}
}

func TestScheduleIsIdempotentWithoutReschedule(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	next := time.Now().UTC().Add(time.Hour)
	q := recurringQueue(&next)
	store.put(q)

	s := New(testConfig(), store, &fakeExecutor{store: store})
	ctx := context.Background()

	if err := s.Schedule(ctx, q.ID, false); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Schedule(ctx, q.ID, false); err != nil {
		t.Fatalf("second Schedule: %v", err)
	}

	jobs := s.Status().ActiveJobs
	if len(jobs) != 1 {
		t.Fatalf("have %d triggers, want 1", len(jobs))
	}
	if !jobs[0].NextRunAt.Equal(next) {
		t.Errorf("trigger at %v, want preserved %v", jobs[0].NextRunAt, next)
	}

	// With reschedule, next_run_at is recomputed from now.
	if err := s.Schedule(ctx, q.ID, true); err != nil {
		t.Fatalf("Schedule(reschedule): %v", err)
	}
	jobs = s.Status().ActiveJobs
	if len(jobs) != 1 {
		t.Fatalf("have %d triggers after reschedule, want 1", len(jobs))
	}
	if jobs[0].NextRunAt.Equal(next) {
		t.Error("reschedule kept the old next_run_at")
	}
}

func TestUnscheduleClearsTriggerAndNextRun(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	next := time.Now().UTC().Add(time.Hour)
	q := recurringQueue(&next)
	store.put(q)

	s := New(testConfig(), store, &fakeExecutor{store: store})
	ctx := context.Background()

	if err := s.Schedule(ctx, q.ID, false); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Unschedule(ctx, q.ID); err != nil {
		t.Fatalf("Unschedule: %v", err)
	}

	if len(s.Status().ActiveJobs) != 0 {
		t.Error("trigger survived unschedule")
	}
	stored, _ := store.GetQueue(ctx, q.ID)
	if stored.NextRunAt != nil {
		t.Errorf("NextRunAt = %v after unschedule, want nil", stored.NextRunAt)
	}
}

func TestServeFiresDueJobs(t *testing.T) {
	t.Parallel()

	store := newFakeQueueStore()
	due := time.Now().UTC().Add(-time.Second)
	q := recurringQueue(&due)
	store.put(q)

	exec := &fakeExecutor{store: store}
	s := New(testConfig(), store, exec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for exec.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("due job never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if !s.Status().Running {
		t.Error("Status.Running = false while Serve is active")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if s.Status().Running {
		t.Error("Status.Running = true after Serve returned")
	}
}
