// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ListHistory handles GET /api/v1/history?queue_id=<uuid>&limit=<n>,
// newest first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	var queueID *uuid.UUID
	if raw := r.URL.Query().Get("queue_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, codeInvalidRequest, "queue_id must be a UUID")
			return
		}
		queueID = &id
	}
	limit := queryInt(r, "limit", 50, 500)

	records, err := h.history.List(r.Context(), queueID, limit)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// QueueStats handles GET /api/v1/queues/{id}/stats.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	// 404 for queues that never existed, zeroed stats for run-less ones.
	if _, err := h.store.GetQueue(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	stats, err := h.history.Stats(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// SuccessRate handles GET /api/v1/stats/success-rate?window_hours=<n>.
func (h *Handler) SuccessRate(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "window_hours", 24*7, 24*365)
	rate, err := h.history.SuccessRate(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"window_hours": hours,
		"success_rate": rate,
	})
}

// Trend handles GET /api/v1/stats/trend?days=<n>: items found per day.
func (h *Handler) Trend(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30, 365)
	points, err := h.history.Trend(r.Context(), days)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

// Health handles GET /api/v1/health and GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"uptime_seconds":    int64(time.Since(h.startTime).Seconds()),
		"scheduler_running": h.schedules.Status().Running,
	})
}
