// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package models

import "time"

// MediaItem is one searchable item descriptor returned by a wanted/cutoff
// listing. Sonarr episodes and Radarr movies both map onto this shape; the
// fields the strategies evaluate are normalized by the wire client.
type MediaItem struct {
	// ID is the service-local item id (episodeId or movieId).
	ID int64 `json:"id"`

	Title string `json:"title"`

	// QualityScore is the weight of the item's current quality profile item,
	// used by the custom strategy's threshold predicate.
	QualityScore int `json:"quality_score"`

	// Added is when the item entered the library.
	Added time.Time `json:"added"`

	// AirDate is the original release/air date, when known.
	AirDate *time.Time `json:"air_date,omitempty"`

	// Monitored items are eligible for automatic search by the service
	// itself; unmonitored items are skipped by every strategy.
	Monitored bool `json:"monitored"`
}

// WantedPage is one page of a paginated wanted/cutoff listing.
type WantedPage struct {
	Page         int         `json:"page"`
	PageSize     int         `json:"page_size"`
	TotalRecords int         `json:"total_records"`
	Items        []MediaItem `json:"items"`
}

// HealthResult reports the outcome of an instance connectivity test.
type HealthResult struct {
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Version string        `json:"version,omitempty"`
}

// CommandHandle identifies a fire-and-forget search command on the external
// service. The handle is separately pollable for completion status.
type CommandHandle struct {
	ID int64 `json:"id"`
}

// CommandState is the lifecycle state of a triggered search command.
type CommandState string

const (
	CommandQueued    CommandState = "queued"
	CommandStarted   CommandState = "started"
	CommandCompleted CommandState = "completed"
	CommandFailed    CommandState = "failed"
)

// Terminal reports whether the command has reached a final state.
func (s CommandState) Terminal() bool {
	return s == CommandCompleted || s == CommandFailed
}
