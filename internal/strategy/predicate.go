// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package strategy

import (
	"time"

	"github.com/tomtom215/backlogarr/internal/models"
)

// Predicate is the declarative item filter evaluated by the custom strategy.
// Zero-valued constraints are inactive.
type Predicate struct {
	// MinQualityScore requires the item's current quality weight to be at
	// least this value.
	MinQualityScore int

	// MinAge requires the item to have been in the library at least this
	// long, leaving freshly added items to the service's own automatic
	// search.
	MinAge time.Duration
}

// predicateFrom builds a predicate from the queue's strategy parameters.
func predicateFrom(params *models.StrategyParams) Predicate {
	return Predicate{
		MinQualityScore: params.MinQualityScore,
		MinAge:          time.Duration(params.MinAgeDays) * 24 * time.Hour,
	}
}

// Matches evaluates the predicate against one item's metadata.
func (p Predicate) Matches(item models.MediaItem, now time.Time) bool {
	if p.MinQualityScore > 0 && item.QualityScore < p.MinQualityScore {
		return false
	}
	if p.MinAge > 0 {
		if item.Added.IsZero() || now.Sub(item.Added) < p.MinAge {
			return false
		}
	}
	return true
}
