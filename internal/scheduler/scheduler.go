// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package scheduler triggers queue executions at their due times.
//
// Triggers live in a min-heap keyed by queue id and ordered by next_run_at;
// a poll loop pops due entries and hands them to the execution engine. The
// heap holds at most one entry per queue, which is what makes reload
// idempotent and makes missed firings collapse into a single consolidated
// run instead of firing once per missed interval.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/config"
	"github.com/tomtom215/backlogarr/internal/engine"
	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/metrics"
	"github.com/tomtom215/backlogarr/internal/models"
)

// Errors surfaced by scheduling operations.
var (
	ErrNotSchedulable = errors.New("queue cannot be scheduled")
	ErrNotPaused      = errors.New("queue is not paused")
)

// QueueStore defines the persistence operations the scheduler needs.
type QueueStore interface {
	GetQueue(ctx context.Context, id uuid.UUID) (*models.SearchQueue, error)
	ListQueues(ctx context.Context, activeOnly bool) ([]models.SearchQueue, error)
	UpdateQueue(ctx context.Context, q *models.SearchQueue) error
}

// Executor runs one queue to completion. Implemented by the execution
// engine; the scheduler never touches wire clients itself.
type Executor interface {
	Execute(ctx context.Context, queueID uuid.UUID) (*engine.Result, error)
}

// JobInfo describes one registered trigger for the status endpoint.
type JobInfo struct {
	QueueID   uuid.UUID `json:"queue_id"`
	NextRunAt time.Time `json:"next_run_at"`
}

// Status is the scheduler's externally visible state.
type Status struct {
	Running    bool      `json:"running"`
	ActiveJobs []JobInfo `json:"active_jobs"`
}

// Scheduler owns the trigger heap and the poll loop. Safe for concurrent
// use; the poll loop runs in Serve.
type Scheduler struct {
	cfg      config.SchedulerConfig
	store    QueueStore
	executor Executor

	mu      sync.Mutex
	jobs    map[uuid.UUID]*job
	heap    jobHeap
	paused  map[uuid.UUID]bool
	running bool

	// wg tracks in-flight executions for the shutdown drain.
	wg sync.WaitGroup

	// now is injectable for tests.
	now func() time.Time
}

// New creates a scheduler.
func New(cfg config.SchedulerConfig, store QueueStore, executor Executor) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = 300 * time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		executor: executor,
		jobs:     make(map[uuid.UUID]*job),
		paused:   make(map[uuid.UUID]bool),
		now:      time.Now,
	}
}

// Serve runs the poll loop until ctx is cancelled, then drains in-flight
// executions for up to the configured timeout. It satisfies suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload scheduler state: %w", err)
	}

	s.setRunning(true)
	defer s.setRunning(false)

	logging.Info().
		Dur("poll_interval", s.cfg.PollInterval).
		Dur("misfire_grace", s.cfg.MisfireGrace).
		Int("jobs", s.jobCount()).
		Msg("scheduler started")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.fireDue(ctx)
		case <-ctx.Done():
			s.drain()
			return ctx.Err()
		}
	}
}

func (s *Scheduler) String() string { return "scheduler" }

// Reload registers exactly one trigger per active, unpaused queue that
// carries a next_run_at. Queues without one (finished one-shots, queues
// never scheduled) stay untriggered until Schedule sets a run time. It is
// idempotent: queues that already hold a trigger are left untouched, so
// calling it again never creates duplicates.
func (s *Scheduler) Reload(ctx context.Context) error {
	queues, err := s.store.ListQueues(ctx, true)
	if err != nil {
		return err
	}

	registered := 0
	for i := range queues {
		q := &queues[i]
		if q.Status == models.QueuePaused || q.NextRunAt == nil {
			continue
		}
		if s.register(q.ID, *q.NextRunAt, false) {
			registered++
		}
	}

	logging.Info().Int("queues", len(queues)).Int("registered", registered).
		Msg("scheduler state reloaded")
	return nil
}

// Schedule registers a trigger for the queue. With reschedule, next_run_at
// is recomputed from now even if a trigger already exists; otherwise an
// existing trigger is kept as is.
func (s *Scheduler) Schedule(ctx context.Context, queueID uuid.UUID, reschedule bool) error {
	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return err
	}
	if !q.IsActive {
		return fmt.Errorf("%w: %s is deactivated", ErrNotSchedulable, queueID)
	}
	if q.Status == models.QueuePaused {
		return fmt.Errorf("%w: %s is paused, resume it instead", ErrNotSchedulable, queueID)
	}

	if !reschedule {
		if s.hasJob(queueID) {
			return nil
		}
		if q.NextRunAt != nil {
			s.register(queueID, *q.NextRunAt, false)
			return nil
		}
	}

	runAt := s.now()
	if q.Recurring {
		runAt = q.ComputeNextRun(runAt)
	}
	q.NextRunAt = &runAt
	if err := s.store.UpdateQueue(ctx, q); err != nil {
		return err
	}
	s.register(queueID, runAt, true)
	return nil
}

// Unschedule removes the queue's trigger and clears its next_run_at.
func (s *Scheduler) Unschedule(ctx context.Context, queueID uuid.UUID) error {
	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return err
	}
	s.remove(queueID)
	q.NextRunAt = nil
	return s.store.UpdateQueue(ctx, q)
}

// Pause unregisters the queue's future trigger while preserving next_run_at
// for resumption. An in_progress run is never interrupted: it finishes
// normally and the queue parks as paused afterwards.
func (s *Scheduler) Pause(ctx context.Context, queueID uuid.UUID) error {
	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.paused[queueID] = true
	s.mu.Unlock()
	s.remove(queueID)

	if q.Status == models.QueueInProgress {
		// The running execution reschedules through rescheduleAfterRun, which
		// sees the pause marker and parks the queue.
		logging.Info().Str("queue", queueID.String()).
			Msg("pause requested during active run, letting it finish")
		return nil
	}

	q.Status = models.QueuePaused
	return s.store.UpdateQueue(ctx, q)
}

// Resume re-registers a paused queue's trigger at its preserved next_run_at.
func (s *Scheduler) Resume(ctx context.Context, queueID uuid.UUID) error {
	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	wasPaused := s.paused[queueID]
	delete(s.paused, queueID)
	s.mu.Unlock()

	if q.Status != models.QueuePaused && !wasPaused {
		return fmt.Errorf("%w: %s", ErrNotPaused, queueID)
	}

	if q.Status == models.QueuePaused {
		q.Status = models.QueuePending
		if err := s.store.UpdateQueue(ctx, q); err != nil {
			return err
		}
	}

	runAt := s.now()
	if q.NextRunAt != nil {
		runAt = *q.NextRunAt
	}
	s.register(queueID, runAt, true)
	return nil
}

// ExecuteNow triggers a queue synchronously, bypassing the timer. The
// trigger heap is untouched except that a completed recurring run
// reschedules as usual.
func (s *Scheduler) ExecuteNow(ctx context.Context, queueID uuid.UUID) (*engine.Result, error) {
	result, err := s.executor.Execute(ctx, queueID)
	if err == nil || errors.Is(err, engine.ErrQueueBusy) {
		s.rescheduleAfterRun(ctx, queueID)
	}
	return result, err
}

// Status reports whether the poll loop runs and which triggers are
// registered, ordered by due time.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, JobInfo{QueueID: j.queueID, NextRunAt: j.runAt})
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].NextRunAt.Before(jobs[k].NextRunAt) })

	return Status{Running: s.running, ActiveJobs: jobs}
}

// fireDue pops every due trigger and starts its execution. A trigger firing
// later than the misfire grace is logged and counted, but still produces
// exactly one run.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.now()

	for {
		s.mu.Lock()
		if len(s.heap) == 0 || s.heap[0].runAt.After(now) {
			s.mu.Unlock()
			return
		}
		j := heap.Pop(&s.heap).(*job)
		delete(s.jobs, j.queueID)
		metrics.ScheduledJobs.Set(float64(len(s.jobs)))
		s.mu.Unlock()

		lateness := now.Sub(j.runAt)
		metrics.TriggerLatency.Observe(lateness.Seconds())
		if lateness > s.cfg.MisfireGrace {
			metrics.MisfiresCoalesced.Inc()
			logging.Warn().
				Str("queue", j.queueID.String()).
				Dur("late_by", lateness).
				Msg("missed firings coalesced into one consolidated run")
		}

		s.wg.Add(1)
		go func(queueID uuid.UUID) {
			defer s.wg.Done()
			s.runQueue(ctx, queueID)
		}(j.queueID)
	}
}

func (s *Scheduler) runQueue(ctx context.Context, queueID uuid.UUID) {
	_, err := s.executor.Execute(ctx, queueID)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrQueueBusy):
		// max_instances=1: the previous run of this queue is still going.
		// Its completion path reschedules, nothing to do here.
		logging.Debug().Str("queue", queueID.String()).Msg("trigger skipped, queue already running")
		return
	case errors.Is(err, engine.ErrQueueInactive), errors.Is(err, engine.ErrQueuePaused):
		logging.Info().Str("queue", queueID.String()).Err(err).Msg("trigger dropped")
		return
	case ctx.Err() != nil:
		return
	default:
		logging.Error().Str("queue", queueID.String()).
			Msg(logging.Redact(fmt.Sprintf("queue execution failed: %v", err)))
	}

	s.rescheduleAfterRun(ctx, queueID)
}

// rescheduleAfterRun re-registers a recurring queue using the next_run_at
// the engine computed, or parks the queue when a pause arrived mid-run.
func (s *Scheduler) rescheduleAfterRun(ctx context.Context, queueID uuid.UUID) {
	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		logging.Error().Err(err).Str("queue", queueID.String()).
			Msg("failed to load queue for rescheduling")
		return
	}

	s.mu.Lock()
	pausedMidRun := s.paused[queueID]
	s.mu.Unlock()

	if pausedMidRun {
		if q.Status == models.QueuePending {
			q.Status = models.QueuePaused
			if err := s.store.UpdateQueue(ctx, q); err != nil {
				logging.Error().Err(err).Str("queue", queueID.String()).
					Msg("failed to park paused queue")
			}
		}
		return
	}

	if !q.IsActive || !q.Recurring || q.NextRunAt == nil || q.Status != models.QueuePending {
		return
	}
	s.register(queueID, *q.NextRunAt, true)
}

// register adds or updates the queue's trigger. With replace false an
// existing trigger wins; reports whether a trigger was added or moved.
func (s *Scheduler) register(queueID uuid.UUID, runAt time.Time, replace bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[queueID]; ok {
		if !replace {
			return false
		}
		existing.runAt = runAt
		heap.Fix(&s.heap, existing.index)
		return true
	}

	j := &job{queueID: queueID, runAt: runAt}
	heap.Push(&s.heap, j)
	s.jobs[queueID] = j
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
	return true
}

func (s *Scheduler) remove(queueID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[queueID]
	if !ok {
		return
	}
	heap.Remove(&s.heap, j.index)
	delete(s.jobs, queueID)
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
}

func (s *Scheduler) hasJob(queueID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[queueID]
	return ok
}

func (s *Scheduler) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

// drain waits for in-flight executions to observe cancellation, bounded by
// the configured drain timeout. Abandoned runs are reconciled at next start.
func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		logging.Info().Msg("scheduler drained cleanly")
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).
			Msg("drain timeout elapsed with executions still in flight")
	}
}
