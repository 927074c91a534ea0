// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

/*
radarr.go - Radarr v3 API Client

Implements the wire contract against Radarr: wanted/missing and
wanted/cutoff listings (movie records) and MoviesSearch commands.

API Reference: https://radarr.video/docs/api/
*/

package arr

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/backlogarr/internal/models"
)

// Ensure RadarrClient implements Client
var _ Client = (*RadarrClient)(nil)

// RadarrClient talks to one Radarr instance.
type RadarrClient struct {
	base *baseClient
}

// radarrSystemStatus is the /system/status response subset we read.
type radarrSystemStatus struct {
	Version string `json:"version"`
	AppName string `json:"appName"`
}

// radarrMovie is one record of a wanted listing.
type radarrMovie struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Year      int        `json:"year"`
	Added     *time.Time `json:"added"`
	InCinemas *time.Time `json:"inCinemas"`
	Monitored bool       `json:"monitored"`
	MovieFile *struct {
		Quality *struct {
			Quality struct {
				ID int `json:"id"`
			} `json:"quality"`
		} `json:"quality"`
	} `json:"movieFile"`
}

// radarrWantedPage is the paginated envelope of wanted endpoints.
type radarrWantedPage struct {
	Page         int           `json:"page"`
	PageSize     int           `json:"pageSize"`
	TotalRecords int           `json:"totalRecords"`
	Records      []radarrMovie `json:"records"`
}

// radarrCommand is the /command resource.
type radarrCommand struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// TestConnection verifies reachability and credentials via /system/status.
func (c *RadarrClient) TestConnection(ctx context.Context) (*models.HealthResult, error) {
	var status radarrSystemStatus
	start := time.Now()
	if err := c.base.get(ctx, "radarr.system_status", "/api/v3/system/status", nil, &status); err != nil {
		return nil, err
	}
	return &models.HealthResult{
		OK:      true,
		Latency: time.Since(start),
		Version: status.Version,
	}, nil
}

// ListMissing returns one page of monitored movies with no file.
func (c *RadarrClient) ListMissing(ctx context.Context, cursor Cursor) (*models.WantedPage, error) {
	return c.listWanted(ctx, "radarr.list_missing", "/api/v3/wanted/missing", cursor)
}

// ListCutoffUnmet returns one page of movies below their quality cutoff.
func (c *RadarrClient) ListCutoffUnmet(ctx context.Context, cursor Cursor) (*models.WantedPage, error) {
	return c.listWanted(ctx, "radarr.list_cutoff", "/api/v3/wanted/cutoff", cursor)
}

func (c *RadarrClient) listWanted(ctx context.Context, op, path string, cursor Cursor) (*models.WantedPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(cursor.pageNumber()))
	query.Set("pageSize", strconv.Itoa(c.base.pageSize))
	query.Set("sortKey", "title")
	query.Set("sortDirection", "ascending")
	query.Set("monitored", "true")

	var page radarrWantedPage
	if err := c.base.get(ctx, op, path, query, &page); err != nil {
		return nil, err
	}

	items := make([]models.MediaItem, 0, len(page.Records))
	for i := range page.Records {
		items = append(items, movieToItem(&page.Records[i]))
	}
	return &models.WantedPage{
		Page:         page.Page,
		PageSize:     page.PageSize,
		TotalRecords: page.TotalRecords,
		Items:        items,
	}, nil
}

// TriggerSearch submits a MoviesSearch command for the given movie ids.
func (c *RadarrClient) TriggerSearch(ctx context.Context, itemIDs []int64) (*models.CommandHandle, error) {
	if len(itemIDs) == 0 {
		return nil, &APIError{Class: ClassValidation, Op: "radarr.trigger_search", Message: "no movie ids supplied"}
	}
	payload := map[string]any{
		"name":     "MoviesSearch",
		"movieIds": itemIDs,
	}
	var cmd radarrCommand
	if err := c.base.post(ctx, "radarr.trigger_search", "/api/v3/command", payload, &cmd); err != nil {
		return nil, err
	}
	return &models.CommandHandle{ID: cmd.ID}, nil
}

// CommandStatus polls a previously submitted command.
func (c *RadarrClient) CommandStatus(ctx context.Context, handle models.CommandHandle) (models.CommandState, error) {
	var cmd radarrCommand
	path := fmt.Sprintf("/api/v3/command/%d", handle.ID)
	if err := c.base.get(ctx, "radarr.command_status", path, nil, &cmd); err != nil {
		return "", err
	}
	return commandStateFrom(cmd.Status), nil
}

// movieToItem normalizes a Radarr movie record onto the shared item shape.
func movieToItem(m *radarrMovie) models.MediaItem {
	item := models.MediaItem{
		ID:        m.ID,
		Title:     m.Title,
		Monitored: m.Monitored,
		AirDate:   m.InCinemas,
	}
	if m.Added != nil {
		item.Added = *m.Added
	} else if m.InCinemas != nil {
		item.Added = *m.InCinemas
	}
	if m.MovieFile != nil && m.MovieFile.Quality != nil {
		item.QualityScore = m.MovieFile.Quality.Quality.ID
	}
	return item
}
