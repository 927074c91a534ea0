// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/backlogarr/internal/arr"
	"github.com/tomtom215/backlogarr/internal/models"
)

// fakeClient serves canned pages for listing calls. Pages are 1-based.
type fakeClient struct {
	missing  [][]models.MediaItem
	cutoff   [][]models.MediaItem
	listErr  error
	pageSize int
}

func (f *fakeClient) page(source [][]models.MediaItem, cursor arr.Cursor) (*models.WantedPage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	total := 0
	for _, p := range source {
		total += len(p)
	}
	n := cursor.Page()
	page := &models.WantedPage{Page: n, PageSize: f.pageSize, TotalRecords: total}
	if n <= len(source) {
		page.Items = source[n-1]
	}
	return page, nil
}

func (f *fakeClient) TestConnection(context.Context) (*models.HealthResult, error) {
	return &models.HealthResult{OK: true}, nil
}

func (f *fakeClient) ListMissing(_ context.Context, cursor arr.Cursor) (*models.WantedPage, error) {
	return f.page(f.missing, cursor)
}

func (f *fakeClient) ListCutoffUnmet(_ context.Context, cursor arr.Cursor) (*models.WantedPage, error) {
	return f.page(f.cutoff, cursor)
}

func (f *fakeClient) TriggerSearch(context.Context, []int64) (*models.CommandHandle, error) {
	return &models.CommandHandle{ID: 1}, nil
}

func (f *fakeClient) CommandStatus(context.Context, models.CommandHandle) (models.CommandState, error) {
	return models.CommandCompleted, nil
}

func item(id int64, opts ...func(*models.MediaItem)) models.MediaItem {
	it := models.MediaItem{ID: id, Title: "item", Monitored: true, Added: time.Now().AddDate(0, -1, 0)}
	for _, opt := range opts {
		opt(&it)
	}
	return it
}

// drain walks the whole sequence the way the engine does.
func drain(t *testing.T, ev Evaluator) []models.MediaItem {
	t.Helper()
	var all []models.MediaItem
	cursor := arr.Cursor{}
	for i := 0; i < 100; i++ {
		items, next, err := ev.Evaluate(context.Background(), cursor)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		all = append(all, items...)
		if next == nil {
			return all
		}
		cursor = *next
	}
	t.Fatal("sequence did not terminate")
	return nil
}

func TestMissingWalksAllPages(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		pageSize: 2,
		missing: [][]models.MediaItem{
			{item(1), item(2)},
			{item(3), item(4)},
			{item(5)},
		},
	}
	ev, err := New(models.StrategyMissing, nil, client)
	if err != nil {
		t.Fatal(err)
	}

	all := drain(t, ev)
	if len(all) != 5 {
		t.Fatalf("drained %d items, want 5", len(all))
	}
	// Order is preserved across pages.
	for i, it := range all {
		if it.ID != int64(i+1) {
			t.Errorf("item %d has id %d, want %d", i, it.ID, i+1)
		}
	}
}

func TestCutoffUnmetUsesCutoffListing(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		pageSize: 10,
		missing:  [][]models.MediaItem{{item(1)}},
		cutoff:   [][]models.MediaItem{{item(10), item(11)}},
	}
	ev, err := New(models.StrategyCutoffUnmet, nil, client)
	if err != nil {
		t.Fatal(err)
	}

	all := drain(t, ev)
	if len(all) != 2 || all[0].ID != 10 {
		t.Errorf("cutoff strategy returned %+v, want the cutoff listing", all)
	}
}

func TestUnmonitoredItemsFiltered(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		pageSize: 10,
		missing: [][]models.MediaItem{{
			item(1),
			item(2, func(it *models.MediaItem) { it.Monitored = false }),
			item(3),
		}},
	}
	ev, err := New(models.StrategyMissing, nil, client)
	if err != nil {
		t.Fatal(err)
	}

	all := drain(t, ev)
	if len(all) != 2 {
		t.Fatalf("got %d items, want 2 (unmonitored dropped)", len(all))
	}
}

func TestRecentWindowFilter(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		pageSize: 10,
		missing: [][]models.MediaItem{{
			item(1, func(it *models.MediaItem) { it.Added = time.Now().AddDate(0, 0, -2) }),
			item(2, func(it *models.MediaItem) { it.Added = time.Now().AddDate(0, 0, -30) }),
		}},
	}
	ev, err := New(models.StrategyRecent, &models.StrategyParams{RecentDays: 7}, client)
	if err != nil {
		t.Fatal(err)
	}

	all := drain(t, ev)
	if len(all) != 1 || all[0].ID != 1 {
		t.Errorf("recent strategy returned %+v, want only the 2-day-old item", all)
	}
}

func TestCustomPredicate(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		pageSize: 10,
		missing: [][]models.MediaItem{{
			// Meets both constraints.
			item(1, func(it *models.MediaItem) {
				it.QualityScore = 8
				it.Added = time.Now().AddDate(0, 0, -60)
			}),
			// Quality too low.
			item(2, func(it *models.MediaItem) {
				it.QualityScore = 2
				it.Added = time.Now().AddDate(0, 0, -60)
			}),
			// Too fresh.
			item(3, func(it *models.MediaItem) {
				it.QualityScore = 9
				it.Added = time.Now().AddDate(0, 0, -1)
			}),
		}},
	}
	params := &models.StrategyParams{MinQualityScore: 5, MinAgeDays: 30}
	ev, err := New(models.StrategyCustom, params, client)
	if err != nil {
		t.Fatal(err)
	}

	all := drain(t, ev)
	if len(all) != 1 || all[0].ID != 1 {
		t.Errorf("custom strategy returned %+v, want only item 1", all)
	}
}

func TestPredicateZeroValuesInactive(t *testing.T) {
	t.Parallel()

	p := Predicate{}
	if !p.Matches(models.MediaItem{}, time.Now()) {
		t.Error("zero predicate must match everything")
	}
}

func TestPredicateUnknownAddedFailsAgeCheck(t *testing.T) {
	t.Parallel()

	p := Predicate{MinAge: 24 * time.Hour}
	if p.Matches(models.MediaItem{}, time.Now()) {
		t.Error("item with unknown added time must not satisfy a min-age constraint")
	}
}

func TestEvaluateErrorPropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	client := &fakeClient{listErr: wantErr}
	ev, err := New(models.StrategyMissing, nil, client)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = ev.Evaluate(context.Background(), arr.Cursor{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Evaluate error = %v, want %v", err, wantErr)
	}
}

func TestUnknownStrategyRejected(t *testing.T) {
	t.Parallel()

	_, err := New(models.StrategyKind("bogus"), nil, &fakeClient{})
	if !errors.Is(err, models.ErrInvalidStrategy) {
		t.Errorf("New(bogus) error = %v, want ErrInvalidStrategy", err)
	}
}

func TestSequenceRestartable(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		pageSize: 2,
		missing:  [][]models.MediaItem{{item(1), item(2)}, {item(3)}},
	}
	ev, err := New(models.StrategyMissing, nil, client)
	if err != nil {
		t.Fatal(err)
	}

	first := drain(t, ev)
	second := drain(t, ev)
	if len(first) != len(second) {
		t.Errorf("re-derived sequence length %d != original %d", len(second), len(first))
	}
}
