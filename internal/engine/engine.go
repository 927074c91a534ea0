// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package engine executes search queues: it walks a queue's strategy
// sequence, filters cooldown-suppressed items, dispatches rate-limited
// search commands through the wire client, and records the outcome.
//
// Concurrency contract: executions of the same queue are mutually exclusive
// (a second caller gets ErrQueueBusy); distinct queues run concurrently up
// to the configured global cap.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/arr"
	"github.com/tomtom215/backlogarr/internal/config"
	"github.com/tomtom215/backlogarr/internal/cooldown"
	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/metrics"
	"github.com/tomtom215/backlogarr/internal/models"
	"github.com/tomtom215/backlogarr/internal/ratelimit"
	"github.com/tomtom215/backlogarr/internal/registry"
	"github.com/tomtom215/backlogarr/internal/strategy"
)

// Errors surfaced to callers of Execute.
var (
	ErrQueueBusy     = errors.New("queue execution already in progress")
	ErrQueueInactive = errors.New("queue is deactivated")
	ErrQueuePaused   = errors.New("queue is paused")
)

// fatalStopThreshold is the number of consecutive fatal item dispatch
// failures after which the rest of a run is abandoned.
const fatalStopThreshold = 3

// QueueStore is the persistence surface the engine mutates queue state
// through.
type QueueStore interface {
	GetQueue(ctx context.Context, id uuid.UUID) (*models.SearchQueue, error)
	UpdateQueue(ctx context.Context, q *models.SearchQueue) error
}

// RunRecorder writes the execution audit trail.
type RunRecorder interface {
	StartRun(ctx context.Context, queueID, instanceID uuid.UUID) (*models.SearchHistoryRecord, error)
	CompleteRun(ctx context.Context, rec *models.SearchHistoryRecord, searched, found int) error
	FailRun(ctx context.Context, rec *models.SearchHistoryRecord, searched, found int, summary string) error
	InterruptRun(ctx context.Context, rec *models.SearchHistoryRecord, searched, found int) error
}

// Result summarizes one finished execution.
type Result struct {
	RunID         uuid.UUID
	QueueID       uuid.UUID
	Outcome       models.RunOutcome
	ItemsSearched int
	ItemsFound    int
	Duration      time.Duration
}

// Engine runs queue executions. All fields are set at construction; Engine
// is safe for concurrent use.
type Engine struct {
	cfg       config.SearchConfig
	store     QueueStore
	instances registry.InstanceRegistry
	creds     registry.CredentialStore
	limits    *ratelimit.Registry
	cooldowns *cooldown.Tracker
	recorder  RunRecorder

	// sem bounds concurrent executions across distinct queues.
	sem chan struct{}

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
	clients map[uuid.UUID]*cachedClient

	// newClient is injectable for tests; the default wires the HTTP client
	// behind a per-instance circuit breaker.
	newClient func(inst *models.Instance, apiKey string, gate arr.Gate) (arr.Client, error)
}

type cachedClient struct {
	client    arr.Client
	updatedAt time.Time
}

// New creates an engine.
func New(cfg config.SearchConfig, store QueueStore, instances registry.InstanceRegistry,
	creds registry.CredentialStore, recorder RunRecorder) *Engine {
	if cfg.MaxConcurrentSearches < 1 {
		cfg.MaxConcurrentSearches = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 25
	}
	e := &Engine{
		cfg:       cfg,
		store:     store,
		instances: instances,
		creds:     creds,
		limits:    ratelimit.NewRegistry(),
		cooldowns: cooldown.New(cfg.CooldownTTL),
		recorder:  recorder,
		sem:       make(chan struct{}, cfg.MaxConcurrentSearches),
		running:   make(map[uuid.UUID]struct{}),
		clients:   make(map[uuid.UUID]*cachedClient),
	}
	e.newClient = e.buildClient
	return e
}

// Cooldowns exposes the tracker for the sweep loop and diagnostics.
func (e *Engine) Cooldowns() *cooldown.Tracker { return e.cooldowns }

// Execute runs one queue to completion. It returns ErrQueueBusy when an
// execution of the same queue is already in flight, and blocks on the global
// concurrency semaphore otherwise.
func (e *Engine) Execute(ctx context.Context, queueID uuid.UUID) (*Result, error) {
	if !e.tryLock(queueID) {
		return nil, fmt.Errorf("%w: %s", ErrQueueBusy, queueID)
	}
	defer e.unlock(queueID)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.sem }()

	metrics.ActiveExecutions.Inc()
	defer metrics.ActiveExecutions.Dec()

	return e.execute(ctx, queueID)
}

func (e *Engine) execute(ctx context.Context, queueID uuid.UUID) (*Result, error) {
	q, err := e.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !q.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrQueueInactive, queueID)
	}
	switch q.Status {
	case models.QueuePaused:
		return nil, fmt.Errorf("%w: %s", ErrQueuePaused, queueID)
	case models.QueueInProgress:
		// The keyed lock makes this unreachable in one process; a stale row
		// from a crash is reconciled at startup.
		return nil, fmt.Errorf("%w: %s", ErrQueueBusy, queueID)
	}

	inst, err := e.instances.GetInstance(ctx, q.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instance for queue %s: %w", queueID, err)
	}
	client, err := e.clientFor(inst)
	if err != nil {
		return nil, err
	}
	eval, err := strategy.New(q.Strategy, q.StrategyParams, client)
	if err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	q.Status = models.QueueInProgress
	q.LastRunAt = &started
	if err := e.store.UpdateQueue(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to mark queue in progress: %w", err)
	}

	rec, err := e.recorder.StartRun(ctx, q.ID, inst.ID)
	if err != nil {
		q.Status = models.QueueFailed
		_ = e.store.UpdateQueue(ctx, q)
		return nil, err
	}

	logging.Info().
		Str("queue", q.ID.String()).
		Str("instance", inst.Name).
		Str("strategy", string(q.Strategy)).
		Msg("queue execution started")

	runCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.RunTimeout)
		defer cancel()
	}

	searched, found, runErr := e.run(runCtx, inst, client, eval)

	// Finalization must survive the run context being cancelled.
	finCtx, finCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer finCancel()

	result := &Result{
		RunID:         rec.ID,
		QueueID:       q.ID,
		ItemsSearched: searched,
		ItemsFound:    found,
		Duration:      time.Since(started),
	}

	switch {
	case runErr == nil:
		result.Outcome = models.OutcomeCompleted
		if err := e.recorder.CompleteRun(finCtx, rec, searched, found); err != nil {
			logging.Error().Err(err).Str("queue", q.ID.String()).Msg("failed to finalize run record")
		}
		e.finishQueue(finCtx, q, true)
	case ctx.Err() != nil:
		// Shutdown or caller cancellation, not an instance problem.
		result.Outcome = models.OutcomeInterrupted
		if err := e.recorder.InterruptRun(finCtx, rec, searched, found); err != nil {
			logging.Error().Err(err).Str("queue", q.ID.String()).Msg("failed to finalize run record")
		}
		q.Status = models.QueuePending
		if err := e.store.UpdateQueue(finCtx, q); err != nil {
			logging.Error().Err(err).Str("queue", q.ID.String()).Msg("failed to update queue state")
		}
	default:
		result.Outcome = models.OutcomeFailed
		summary := logging.RedactErr(runErr)
		if err := e.recorder.FailRun(finCtx, rec, searched, found, summary); err != nil {
			logging.Error().Err(err).Str("queue", q.ID.String()).Msg("failed to finalize run record")
		}
		e.finishQueue(finCtx, q, false)
	}

	logging.Info().
		Str("queue", q.ID.String()).
		Str("outcome", string(result.Outcome)).
		Int("items_searched", searched).
		Int("items_found", found).
		Dur("duration", result.Duration).
		Msg("queue execution finished")

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// run walks the strategy sequence and dispatches one rate-limited search
// command per admitted candidate. Returns the counters accumulated so far
// even on error.
func (e *Engine) run(ctx context.Context, inst *models.Instance, client arr.Client, eval strategy.Evaluator) (searched, found int, err error) {
	itemType := inst.Kind.ItemType()

	var (
		cursor           arr.Cursor
		consecutiveFatal int
	)

	for {
		if err := ctx.Err(); err != nil {
			return searched, found, err
		}

		items, next, err := eval.Evaluate(ctx, cursor)
		if err != nil {
			return searched, found, err
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return searched, found, err
			}

			key := cooldown.Key{InstanceID: inst.ID, ItemType: itemType, ItemID: item.ID}
			if e.cooldowns.IsSuppressed(key) {
				continue
			}

			if _, err := client.TriggerSearch(ctx, []int64{item.ID}); err != nil {
				if arr.IsFatal(err) {
					consecutiveFatal++
					if consecutiveFatal >= fatalStopThreshold {
						return searched, found, fmt.Errorf(
							"aborting run after %d consecutive fatal dispatch failures: %w",
							consecutiveFatal, err)
					}
					logging.Warn().Str("instance", inst.Name).Int64("item", item.ID).
						Msg(logging.Redact(fmt.Sprintf("search dispatch rejected, continuing: %v", err)))
					continue
				}
				// Retries are already exhausted inside the wire client.
				return searched, found, err
			}

			// Counters advance only on an accepted dispatch: rejected or
			// failed candidates appear in neither.
			consecutiveFatal = 0
			searched++
			found++
			metrics.ItemsSearched.Inc()
			metrics.ItemsFound.Inc()
			e.cooldowns.MarkSearched(key)
		}

		if next == nil {
			return searched, found, nil
		}
		cursor = *next
	}
}

// finishQueue applies post-run state: failure accounting, auto-deactivation,
// and rescheduling for recurring queues.
func (e *Engine) finishQueue(ctx context.Context, q *models.SearchQueue, succeeded bool) {
	now := time.Now().UTC()
	if succeeded {
		q.Status = models.QueueCompleted
		q.ConsecutiveFailures = 0
	} else {
		q.Status = models.QueueFailed
		q.ConsecutiveFailures++
		if q.ConsecutiveFailures >= models.FailureShutoffThreshold && q.IsActive {
			q.IsActive = false
			metrics.QueueDeactivations.Inc()
			logging.Warn().
				Str("queue", q.ID.String()).
				Int("consecutive_failures", q.ConsecutiveFailures).
				Msg("queue deactivated after repeated failures")
		}
	}

	if q.Recurring && q.IsActive {
		next := q.ComputeNextRun(now)
		q.Status = models.QueuePending
		q.NextRunAt = &next
	} else {
		q.NextRunAt = nil
	}

	if err := e.store.UpdateQueue(ctx, q); err != nil {
		logging.Error().Err(err).Str("queue", q.ID.String()).Msg("failed to update queue state")
	}
}

func (e *Engine) tryLock(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[id]; ok {
		return false
	}
	e.running[id] = struct{}{}
	return true
}

func (e *Engine) unlock(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, id)
}

// clientFor returns the cached client for an instance, rebuilding it when
// the instance record changed. Credentials are resolved fresh on every
// rebuild, which is what makes live key rotation work.
func (e *Engine) clientFor(inst *models.Instance) (arr.Client, error) {
	e.mu.Lock()
	cached, ok := e.clients[inst.ID]
	e.mu.Unlock()
	if ok && cached.updatedAt.Equal(inst.UpdatedAt) {
		return cached.client, nil
	}

	apiKey, err := e.creds.Resolve(inst.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential for instance %s: %w", inst.Name, err)
	}
	gate := e.limits.Bucket(inst.ID.String(), inst.RequestsPerSecond)
	client, err := e.newClient(inst, apiKey, gate)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.clients[inst.ID] = &cachedClient{client: client, updatedAt: inst.UpdatedAt}
	e.mu.Unlock()
	return client, nil
}

// TestInstance probes an instance's reachability and credentials through the
// same client construction path executions use. The instance need not be
// persisted yet, so connection tests work during setup.
func (e *Engine) TestInstance(ctx context.Context, inst *models.Instance) (*models.HealthResult, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	apiKey, err := e.creds.Resolve(inst.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential for instance %s: %w", inst.Name, err)
	}
	// Built uncached: the probe must see the instance exactly as submitted,
	// including credential changes that have not been persisted yet.
	client, err := e.newClient(inst, apiKey, e.limits.Bucket(inst.ID.String(), inst.RequestsPerSecond))
	if err != nil {
		return nil, err
	}
	return client.TestConnection(ctx)
}

func (e *Engine) buildClient(inst *models.Instance, apiKey string, gate arr.Gate) (arr.Client, error) {
	client, err := arr.New(inst, apiKey, arr.Options{
		Gate: gate,
		// The listing page size is the engine's batch size, so one page is
		// one fixed-size batch of candidates.
		PageSize: e.cfg.BatchSize,
		Timeout:  e.cfg.RequestTimeout,
		Retry: arr.RetryConfig{
			Attempts:     e.cfg.RetryAttempts,
			InitialDelay: e.cfg.RetryInitialDelay,
			MaxDelay:     e.cfg.RetryMaxDelay,
		},
	})
	if err != nil {
		return nil, err
	}
	return arr.NewBreakerClient(inst.Name, client), nil
}
