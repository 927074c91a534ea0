// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/arr"
	"github.com/tomtom215/backlogarr/internal/config"
	"github.com/tomtom215/backlogarr/internal/cooldown"
	"github.com/tomtom215/backlogarr/internal/models"
	"github.com/tomtom215/backlogarr/internal/registry"
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
		return nil, errors.New("queue not found")
	}
	clone := q
	return &clone, nil
}

func (s *fakeQueueStore) UpdateQueue(_ context.Context, q *models.SearchQueue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[q.ID] = *q
	return nil
}

type fakeInstanceRegistry struct {
	instances map[uuid.UUID]*models.Instance
}

func (r *fakeInstanceRegistry) GetInstance(_ context.Context, id uuid.UUID) (*models.Instance, error) {
	inst, ok := r.instances[id]
	if !ok {
		return nil, errors.New("instance not found")
	}
	return inst, nil
}

type fakeRecorder struct {
	mu          sync.Mutex
	started     int
	completed   int
	failed      int
	interrupted int
	lastSummary string
}

func (r *fakeRecorder) StartRun(_ context.Context, queueID, instanceID uuid.UUID) (*models.SearchHistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return &models.SearchHistoryRecord{
		ID: uuid.New(), QueueID: queueID, InstanceID: instanceID,
		StartedAt: time.Now().UTC(), Outcome: models.OutcomeRunning,
	}, nil
}

func (r *fakeRecorder) CompleteRun(_ context.Context, _ *models.SearchHistoryRecord, _, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	return nil
}

func (r *fakeRecorder) FailRun(_ context.Context, _ *models.SearchHistoryRecord, _, _ int, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	r.lastSummary = summary
	return nil
}

func (r *fakeRecorder) InterruptRun(_ context.Context, _ *models.SearchHistoryRecord, _, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted++
	return nil
}

// fakeClient serves pre-built wanted pages and records triggered searches.
// It acquires the gate before each call, like the real wire client.
type fakeClient struct {
	gate       arr.Gate
	pages      []models.WantedPage
	listErr    error
	triggerErr error
	blockUntil chan struct{}

	mu        sync.Mutex
	listCalls int
	triggered [][]int64
}

func (c *fakeClient) acquire(ctx context.Context) error {
	if c.gate == nil {
		return nil
	}
	return c.gate.Acquire(ctx)
}

func (c *fakeClient) TestConnection(ctx context.Context) (*models.HealthResult, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	return &models.HealthResult{OK: true}, nil
}

func (c *fakeClient) ListMissing(ctx context.Context, cursor arr.Cursor) (*models.WantedPage, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.listCalls++
	c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	idx := cursor.Page() - 1
	if idx >= len(c.pages) {
		return &models.WantedPage{Page: cursor.Page()}, nil
	}
	page := c.pages[idx]
	page.Page = cursor.Page()
	return &page, nil
}

func (c *fakeClient) ListCutoffUnmet(ctx context.Context, cursor arr.Cursor) (*models.WantedPage, error) {
	return c.ListMissing(ctx, cursor)
}

func (c *fakeClient) TriggerSearch(ctx context.Context, itemIDs []int64) (*models.CommandHandle, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	if c.blockUntil != nil {
		select {
		case <-c.blockUntil:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	c.triggered = append(c.triggered, itemIDs)
	n := len(c.triggered)
	c.mu.Unlock()
	if c.triggerErr != nil {
		return nil, c.triggerErr
	}
	return &models.CommandHandle{ID: int64(n)}, nil
}

func (c *fakeClient) CommandStatus(context.Context, models.CommandHandle) (models.CommandState, error) {
	return models.CommandCompleted, nil
}

func (c *fakeClient) triggerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.triggered)
}

func (c *fakeClient) listCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls
}

func pageOf(n int) models.WantedPage {
	items := make([]models.MediaItem, n)
	for i := range items {
		items[i] = models.MediaItem{
			ID:        int64(i + 1),
			Title:     fmt.Sprintf("item-%d", i+1),
			Monitored: true,
			Added:     time.Now().UTC().AddDate(0, -1, 0),
		}
	}
	return models.WantedPage{PageSize: n, TotalRecords: n, Items: items}
}

type harness struct {
	engine *Engine
	store  *fakeQueueStore
	rec    *fakeRecorder
	client *fakeClient
	queue  models.SearchQueue
	inst   models.Instance
}

func newHarness(t *testing.T, cfg config.SearchConfig, client *fakeClient, rps float64) *harness {
	t.Helper()

	inst := models.Instance{
		ID:                uuid.New(),
		Name:              "sonarr-test",
		Kind:              models.KindSonarr,
		BaseURL:           "http://sonarr:8989",
		CredentialRef:     "test-key",
		RequestsPerSecond: rps,
		UpdatedAt:         time.Now().UTC(),
	}
	queue := models.SearchQueue{
		ID:         uuid.New(),
		InstanceID: inst.ID,
		Name:       "test queue",
		Strategy:   models.StrategyMissing,
		Status:     models.QueuePending,
		IsActive:   true,
	}

	store := newFakeQueueStore()
	store.put(queue)

	creds := registry.NewStaticCredentialStore()
	creds.Set("test-key", "secret")

	rec := &fakeRecorder{}
	eng := New(cfg, store, &fakeInstanceRegistry{
		instances: map[uuid.UUID]*models.Instance{inst.ID: &inst},
	}, creds, rec)
	eng.newClient = func(_ *models.Instance, _ string, gate arr.Gate) (arr.Client, error) {
		client.gate = gate
		return client, nil
	}

	return &harness{engine: eng, store: store, rec: rec, client: client, queue: queue, inst: inst}
}

func (h *harness) storedQueue(t *testing.T) *models.SearchQueue {
	t.Helper()
	q, err := h.store.GetQueue(context.Background(), h.queue.ID)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	return q
}

func TestExecuteThrottledRun(t *testing.T) {
	t.Parallel()

	client := &fakeClient{pages: []models.WantedPage{pageOf(10)}}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 1, BatchSize: 25}, client, 5)

	start := time.Now()
	result, err := h.engine.Execute(context.Background(), h.queue.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	elapsed := time.Since(start)

	if result.Outcome != models.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", result.Outcome)
	}
	if result.ItemsSearched != 10 || result.ItemsFound != 10 {
		t.Errorf("counters = (%d, %d), want (10, 10)", result.ItemsSearched, result.ItemsFound)
	}
	// 11 gated calls (1 listing + 10 dispatches) at 5/s from an empty bucket.
	if elapsed < 2*time.Second {
		t.Errorf("run took %s, want >= 2s with a 5/s limit over 10 items", elapsed)
	}

	q := h.storedQueue(t)
	if q.Status != models.QueueCompleted {
		t.Errorf("queue status = %q, want completed", q.Status)
	}
	if q.ConsecutiveFailures != 0 {
		t.Errorf("consecutive_failures = %d, want 0", q.ConsecutiveFailures)
	}
	if h.rec.completed != 1 {
		t.Errorf("completed runs recorded = %d, want 1", h.rec.completed)
	}
}

func TestExecuteAuthFailureFailsImmediately(t *testing.T) {
	t.Parallel()

	client := &fakeClient{listErr: &arr.APIError{
		Class: arr.ClassAuthentication, Op: "wanted/missing", StatusCode: 401,
		Message: "invalid api key",
	}}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 1, BatchSize: 25}, client, 100)

	result, err := h.engine.Execute(context.Background(), h.queue.ID)
	if !arr.IsAuthentication(err) {
		t.Fatalf("Execute error = %v, want authentication class", err)
	}
	if result.Outcome != models.OutcomeFailed {
		t.Errorf("Outcome = %q, want failed", result.Outcome)
	}
	if got := client.listCount(); got != 1 {
		t.Errorf("listing called %d times, want exactly 1 (no retries)", got)
	}
	if client.triggerCount() != 0 {
		t.Errorf("%d searches dispatched after auth failure, want 0", client.triggerCount())
	}

	q := h.storedQueue(t)
	if q.ConsecutiveFailures != 1 {
		t.Errorf("consecutive_failures = %d, want 1", q.ConsecutiveFailures)
	}
	if q.Status != models.QueueFailed {
		t.Errorf("queue status = %q, want failed", q.Status)
	}
	if h.rec.failed != 1 {
		t.Errorf("failed runs recorded = %d, want 1", h.rec.failed)
	}
}

func TestExecuteHardStopAfterConsecutiveFatalDispatches(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		pages: []models.WantedPage{pageOf(10)},
		triggerErr: &arr.APIError{
			Class: arr.ClassValidation, Op: "command", StatusCode: 400,
			Message: "unknown item",
		},
	}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 1, BatchSize: 25}, client, 100)

	result, err := h.engine.Execute(context.Background(), h.queue.ID)
	if err == nil {
		t.Fatal("Execute succeeded, want hard-stop failure")
	}
	if result.Outcome != models.OutcomeFailed {
		t.Errorf("Outcome = %q, want failed", result.Outcome)
	}
	// Three consecutive fatal dispatches abort the rest of the run, and
	// rejected dispatches never reach the counters.
	if result.ItemsSearched != 0 || result.ItemsFound != 0 {
		t.Errorf("counters = (%d, %d), want (0, 0)", result.ItemsSearched, result.ItemsFound)
	}
	if client.triggerCount() != 3 {
		t.Errorf("dispatch attempts = %d, want 3", client.triggerCount())
	}
}

func TestExecuteAutoDeactivatesAtThreshold(t *testing.T) {
	t.Parallel()

	client := &fakeClient{listErr: &arr.APIError{
		Class: arr.ClassTransient, Op: "wanted/missing", StatusCode: 503,
		Message: "service unavailable",
	}}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 1, BatchSize: 25}, client, 100)

	h.queue.ConsecutiveFailures = models.FailureShutoffThreshold - 1
	h.queue.Recurring = true
	h.queue.Interval = time.Hour
	h.store.put(h.queue)

	if _, err := h.engine.Execute(context.Background(), h.queue.ID); err == nil {
		t.Fatal("Execute succeeded, want failure")
	}

	q := h.storedQueue(t)
	if q.IsActive {
		t.Error("queue still active after reaching the failure threshold")
	}
	if q.ConsecutiveFailures != models.FailureShutoffThreshold {
		t.Errorf("consecutive_failures = %d, want %d", q.ConsecutiveFailures, models.FailureShutoffThreshold)
	}
	if q.NextRunAt != nil {
		t.Error("deactivated queue must not have a next run scheduled")
	}

	// No further runs until manually reactivated.
	if _, err := h.engine.Execute(context.Background(), h.queue.ID); !errors.Is(err, ErrQueueInactive) {
		t.Errorf("Execute on deactivated queue = %v, want ErrQueueInactive", err)
	}
}

func TestExecuteRecurringReschedules(t *testing.T) {
	t.Parallel()

	client := &fakeClient{pages: []models.WantedPage{pageOf(2)}}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 1, BatchSize: 25}, client, 100)

	h.queue.Recurring = true
	h.queue.Interval = time.Hour
	h.queue.ConsecutiveFailures = 3
	h.store.put(h.queue)

	before := time.Now().UTC()
	if _, err := h.engine.Execute(context.Background(), h.queue.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	q := h.storedQueue(t)
	if q.Status != models.QueuePending {
		t.Errorf("recurring queue status = %q, want pending", q.Status)
	}
	if q.ConsecutiveFailures != 0 {
		t.Errorf("consecutive_failures = %d, want 0 after success", q.ConsecutiveFailures)
	}
	if q.NextRunAt == nil {
		t.Fatal("recurring queue has no next_run_at after completion")
	}
	if q.NextRunAt.Before(before.Add(time.Hour)) {
		t.Errorf("next_run_at = %v, want >= %v", q.NextRunAt, before.Add(time.Hour))
	}
}

func TestExecuteSkipsCooldownSuppressedItems(t *testing.T) {
	t.Parallel()

	client := &fakeClient{pages: []models.WantedPage{pageOf(5)}}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 1, BatchSize: 25}, client, 100)

	itemType := h.inst.Kind.ItemType()
	for id := int64(1); id <= 5; id++ {
		h.engine.Cooldowns().MarkSearched(cooldown.Key{
			InstanceID: h.inst.ID, ItemType: itemType, ItemID: id,
		})
	}

	result, err := h.engine.Execute(context.Background(), h.queue.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ItemsSearched != 0 || result.ItemsFound != 0 {
		t.Errorf("counters = (%d, %d), want (0, 0) with everything suppressed",
			result.ItemsSearched, result.ItemsFound)
	}
	if result.Outcome != models.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", result.Outcome)
	}
	if client.triggerCount() != 0 {
		t.Errorf("%d searches dispatched, want 0", client.triggerCount())
	}
}

func TestExecuteSerializesSameQueue(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := &fakeClient{pages: []models.WantedPage{pageOf(1)}, blockUntil: release}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 2, BatchSize: 25}, client, 100)

	firstDone := make(chan error, 1)
	go func() {
		_, err := h.engine.Execute(context.Background(), h.queue.ID)
		firstDone <- err
	}()

	// Wait until the first execution is inside its dispatch.
	deadline := time.After(2 * time.Second)
	for client.listCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first execution never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := h.engine.Execute(context.Background(), h.queue.ID); !errors.Is(err, ErrQueueBusy) {
		t.Errorf("concurrent Execute = %v, want ErrQueueBusy", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first Execute: %v", err)
	}
}

func TestExecuteRejectsPausedQueue(t *testing.T) {
	t.Parallel()

	client := &fakeClient{pages: []models.WantedPage{pageOf(1)}}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 1, BatchSize: 25}, client, 100)

	h.queue.Status = models.QueuePaused
	h.store.put(h.queue)

	if _, err := h.engine.Execute(context.Background(), h.queue.ID); !errors.Is(err, ErrQueuePaused) {
		t.Errorf("Execute on paused queue = %v, want ErrQueuePaused", err)
	}
	if h.rec.started != 0 {
		t.Errorf("%d runs recorded for a paused queue, want 0", h.rec.started)
	}
}

func TestExecuteRedactsFailureSummary(t *testing.T) {
	t.Parallel()

	client := &fakeClient{listErr: &arr.APIError{
		Class: arr.ClassTransient, Op: "wanted/missing", StatusCode: 503,
		Message: "upstream error for request with apikey=super-secret-key",
	}}
	h := newHarness(t, config.SearchConfig{MaxConcurrentSearches: 1, BatchSize: 25}, client, 100)

	if _, err := h.engine.Execute(context.Background(), h.queue.ID); err == nil {
		t.Fatal("Execute succeeded, want failure")
	}
	if h.rec.lastSummary == "" {
		t.Fatal("no failure summary recorded")
	}
	if strings.Contains(h.rec.lastSummary, "super-secret-key") {
		t.Errorf("failure summary leaks the credential: %q", h.rec.lastSummary)
	}
}
