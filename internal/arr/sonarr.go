// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

/*
sonarr.go - Sonarr v3 API Client

Implements the wire contract against Sonarr: wanted/missing and
wanted/cutoff listings (episode records) and EpisodeSearch commands.

API Reference: https://sonarr.tv/docs/api/
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

// Ensure SonarrClient implements Client
var _ Client = (*SonarrClient)(nil)

// SonarrClient talks to one Sonarr instance.
type SonarrClient struct {
	base *baseClient
}

// sonarrSystemStatus is the /system/status response subset we read.
type sonarrSystemStatus struct {
	Version string `json:"version"`
	AppName string `json:"appName"`
}

// sonarrEpisode is one record of a wanted listing.
type sonarrEpisode struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	SeriesID      int64      `json:"seriesId"`
	AirDateUTC    *time.Time `json:"airDateUtc"`
	Monitored     bool       `json:"monitored"`
	EpisodeFileID int64      `json:"episodeFileId"`
	Series        *struct {
		Title string     `json:"title"`
		Added *time.Time `json:"added"`
	} `json:"series"`
	EpisodeFile *struct {
		Quality *struct {
			Quality struct {
				ID int `json:"id"`
			} `json:"quality"`
		} `json:"quality"`
	} `json:"episodeFile"`
}

// sonarrWantedPage is the paginated envelope of wanted endpoints.
type sonarrWantedPage struct {
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	TotalRecords int             `json:"totalRecords"`
	Records      []sonarrEpisode `json:"records"`
}

// sonarrCommand is the /command resource.
type sonarrCommand struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// TestConnection verifies reachability and credentials via /system/status.
func (c *SonarrClient) TestConnection(ctx context.Context) (*models.HealthResult, error) {
	var status sonarrSystemStatus
	start := time.Now()
	if err := c.base.get(ctx, "sonarr.system_status", "/api/v3/system/status", nil, &status); err != nil {
		return nil, err
	}
	return &models.HealthResult{
		OK:      true,
		Latency: time.Since(start),
		Version: status.Version,
	}, nil
}

// ListMissing returns one page of monitored episodes with no file.
func (c *SonarrClient) ListMissing(ctx context.Context, cursor Cursor) (*models.WantedPage, error) {
	return c.listWanted(ctx, "sonarr.list_missing", "/api/v3/wanted/missing", cursor)
}

// ListCutoffUnmet returns one page of episodes below their quality cutoff.
func (c *SonarrClient) ListCutoffUnmet(ctx context.Context, cursor Cursor) (*models.WantedPage, error) {
	return c.listWanted(ctx, "sonarr.list_cutoff", "/api/v3/wanted/cutoff", cursor)
}

func (c *SonarrClient) listWanted(ctx context.Context, op, path string, cursor Cursor) (*models.WantedPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(cursor.pageNumber()))
	query.Set("pageSize", strconv.Itoa(c.base.pageSize))
	query.Set("sortKey", "airDateUtc")
	query.Set("sortDirection", "ascending")
	query.Set("monitored", "true")
	query.Set("includeSeries", "true")

	var page sonarrWantedPage
	if err := c.base.get(ctx, op, path, query, &page); err != nil {
		return nil, err
	}

	items := make([]models.MediaItem, 0, len(page.Records))
	for i := range page.Records {
		items = append(items, episodeToItem(&page.Records[i]))
	}
	return &models.WantedPage{
		Page:         page.Page,
		PageSize:     page.PageSize,
		TotalRecords: page.TotalRecords,
		Items:        items,
	}, nil
}

// TriggerSearch submits an EpisodeSearch command for the given episode ids.
func (c *SonarrClient) TriggerSearch(ctx context.Context, itemIDs []int64) (*models.CommandHandle, error) {
	if len(itemIDs) == 0 {
		return nil, &APIError{Class: ClassValidation, Op: "sonarr.trigger_search", Message: "no episode ids supplied"}
	}
	payload := map[string]any{
		"name":       "EpisodeSearch",
		"episodeIds": itemIDs,
	}
	var cmd sonarrCommand
	if err := c.base.post(ctx, "sonarr.trigger_search", "/api/v3/command", payload, &cmd); err != nil {
		return nil, err
	}
	return &models.CommandHandle{ID: cmd.ID}, nil
}

// CommandStatus polls a previously submitted command.
func (c *SonarrClient) CommandStatus(ctx context.Context, handle models.CommandHandle) (models.CommandState, error) {
	var cmd sonarrCommand
	path := fmt.Sprintf("/api/v3/command/%d", handle.ID)
	if err := c.base.get(ctx, "sonarr.command_status", path, nil, &cmd); err != nil {
		return "", err
	}
	return commandStateFrom(cmd.Status), nil
}

// episodeToItem normalizes a Sonarr episode record onto the shared item shape.
func episodeToItem(ep *sonarrEpisode) models.MediaItem {
	item := models.MediaItem{
		ID:        ep.ID,
		Title:     ep.Title,
		Monitored: ep.Monitored,
		AirDate:   ep.AirDateUTC,
	}
	if ep.Series != nil {
		if ep.Series.Added != nil {
			item.Added = *ep.Series.Added
		}
		if ep.Series.Title != "" {
			item.Title = ep.Series.Title + " - " + ep.Title
		}
	}
	if item.Added.IsZero() && ep.AirDateUTC != nil {
		item.Added = *ep.AirDateUTC
	}
	if ep.EpisodeFile != nil && ep.EpisodeFile.Quality != nil {
		item.QualityScore = ep.EpisodeFile.Quality.Quality.ID
	}
	return item
}

// commandStateFrom maps the service's command status strings onto the shared
// enum. Unknown strings conservatively map to started so pollers keep going.
func commandStateFrom(status string) models.CommandState {
	switch status {
	case "queued":
		return models.CommandQueued
	case "started":
		return models.CommandStarted
	case "completed":
		return models.CommandCompleted
	case "failed", "aborted", "cancelled":
		return models.CommandFailed
	default:
		return models.CommandStarted
	}
}
