// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package strategy produces the ordered candidate sequence a queue searches.
//
// The strategy set is closed: missing, cutoff_unmet, recent, and custom.
// Each variant implements the same Evaluate(cursor) -> (batch, nextCursor)
// capability over the wire client's paginated listings. Sequences are lazy,
// finite (bounded by the service's backlog), and re-derived from scratch on
// every execution; the cursor lives only on the in-flight run.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/backlogarr/internal/arr"
	"github.com/tomtom215/backlogarr/internal/models"
)

// Evaluator yields one filtered batch of candidate items per call. A nil
// next cursor ends the sequence.
type Evaluator interface {
	Evaluate(ctx context.Context, cursor arr.Cursor) (items []models.MediaItem, next *arr.Cursor, err error)
}

// New builds the evaluator for a queue's strategy. The switch is exhaustive
// over the closed strategy set.
func New(kind models.StrategyKind, params *models.StrategyParams, client arr.Client) (Evaluator, error) {
	if params == nil {
		params = &models.StrategyParams{}
	}
	switch kind {
	case models.StrategyMissing:
		return &missingEvaluator{client: client}, nil
	case models.StrategyCutoffUnmet:
		return &cutoffEvaluator{client: client}, nil
	case models.StrategyRecent:
		days := params.RecentDays
		if days <= 0 {
			days = 7
		}
		return &recentEvaluator{client: client, days: days, now: time.Now}, nil
	case models.StrategyCustom:
		return &customEvaluator{
			client:    client,
			predicate: predicateFrom(params),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStrategy, kind)
	}
}

// nextCursor computes the follow-up cursor from a returned page, or nil when
// the sequence is exhausted.
func nextCursor(cursor arr.Cursor, page *models.WantedPage) *arr.Cursor {
	if len(page.Items) == 0 {
		return nil
	}
	if page.PageSize > 0 && page.Page*page.PageSize >= page.TotalRecords {
		return nil
	}
	next := cursor.Next()
	return &next
}

// filterMonitored drops unmonitored items. The listings request monitored
// items, but the flag can flip between the listing and this run.
func filterMonitored(items []models.MediaItem) []models.MediaItem {
	kept := make([]models.MediaItem, 0, len(items))
	for _, item := range items {
		if item.Monitored {
			kept = append(kept, item)
		}
	}
	return kept
}

// missingEvaluator yields monitored items with no file on disk.
type missingEvaluator struct {
	client arr.Client
}

func (e *missingEvaluator) Evaluate(ctx context.Context, cursor arr.Cursor) ([]models.MediaItem, *arr.Cursor, error) {
	page, err := e.client.ListMissing(ctx, cursor)
	if err != nil {
		return nil, nil, err
	}
	return filterMonitored(page.Items), nextCursor(cursor, page), nil
}

// cutoffEvaluator yields monitored items below their quality cutoff.
type cutoffEvaluator struct {
	client arr.Client
}

func (e *cutoffEvaluator) Evaluate(ctx context.Context, cursor arr.Cursor) ([]models.MediaItem, *arr.Cursor, error) {
	page, err := e.client.ListCutoffUnmet(ctx, cursor)
	if err != nil {
		return nil, nil, err
	}
	return filterMonitored(page.Items), nextCursor(cursor, page), nil
}

// recentEvaluator yields missing items added within a trailing window.
type recentEvaluator struct {
	client arr.Client
	days   int
	now    func() time.Time
}

func (e *recentEvaluator) Evaluate(ctx context.Context, cursor arr.Cursor) ([]models.MediaItem, *arr.Cursor, error) {
	page, err := e.client.ListMissing(ctx, cursor)
	if err != nil {
		return nil, nil, err
	}
	threshold := e.now().AddDate(0, 0, -e.days)
	kept := make([]models.MediaItem, 0, len(page.Items))
	for _, item := range filterMonitored(page.Items) {
		if !item.Added.Before(threshold) {
			kept = append(kept, item)
		}
	}
	return kept, nextCursor(cursor, page), nil
}

// customEvaluator yields missing items matching a declarative predicate.
type customEvaluator struct {
	client    arr.Client
	predicate Predicate
}

func (e *customEvaluator) Evaluate(ctx context.Context, cursor arr.Cursor) ([]models.MediaItem, *arr.Cursor, error) {
	page, err := e.client.ListMissing(ctx, cursor)
	if err != nil {
		return nil, nil, err
	}
	kept := make([]models.MediaItem, 0, len(page.Items))
	for _, item := range filterMonitored(page.Items) {
		if e.predicate.Matches(item, time.Now()) {
			kept = append(kept, item)
		}
	}
	return kept, nextCursor(cursor, page), nil
}
