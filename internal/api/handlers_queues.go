// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/models"
	"github.com/tomtom215/backlogarr/internal/store"
)

// queueRequest is the create/update payload for a search queue.
type queueRequest struct {
	InstanceID string `json:"instance_id" validate:"required,uuid4"`
	Name       string `json:"name" validate:"required,min=1,max=128"`
	Strategy   string `json:"strategy" validate:"required,oneof=missing cutoff_unmet recent custom"`

	StrategyParams *models.StrategyParams `json:"strategy_params,omitempty"`

	Recurring bool `json:"recurring"`
	// IntervalSeconds is required for recurring queues; minimum one minute.
	IntervalSeconds int64 `json:"interval_seconds" validate:"omitempty,min=60"`

	IsActive *bool `json:"is_active,omitempty"`
}

func (req *queueRequest) apply(q *models.SearchQueue) error {
	instanceID, err := uuid.Parse(req.InstanceID)
	if err != nil {
		return errors.New("instance_id must be a UUID")
	}
	q.InstanceID = instanceID
	q.Name = req.Name
	q.Strategy = models.StrategyKind(req.Strategy)
	q.StrategyParams = req.StrategyParams
	q.Recurring = req.Recurring
	q.Interval = time.Duration(req.IntervalSeconds) * time.Second
	if req.IsActive != nil {
		q.IsActive = *req.IsActive
	}
	return nil
}

// CreateQueue handles POST /api/v1/queues. New queues start active and
// unscheduled; a schedule call arms the trigger.
func (h *Handler) CreateQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	// Reject queues pointing at instances that do not exist.
	instanceID, _ := uuid.Parse(req.InstanceID)
	if _, err := h.store.GetInstance(r.Context(), instanceID); err != nil {
		respondStoreError(w, err)
		return
	}

	q := &models.SearchQueue{IsActive: true}
	if err := req.apply(q); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	if err := h.store.CreateQueue(r.Context(), q); err != nil {
		if errors.Is(err, models.ErrInvalidStrategy) || errors.Is(err, models.ErrInvalidQueueInterval) {
			respondError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
		respondStoreError(w, err)
		return
	}

	logging.Info().Str("queue", q.Name).Str("strategy", string(q.Strategy)).Msg("queue created")
	respondJSON(w, http.StatusCreated, q)
}

// GetQueue handles GET /api/v1/queues/{id}.
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	q, err := h.store.GetQueue(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// ListQueues handles GET /api/v1/queues?active=true.
func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	queues, err := h.store.ListQueues(r.Context(), activeOnly)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, queues)
}

// UpdateQueue handles PUT /api/v1/queues/{id}. Configuration fields only;
// execution state (status, failure counters, run times) belongs to the
// engine and scheduler.
func (h *Handler) UpdateQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req queueRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	q, err := h.store.GetQueue(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if q.Status == models.QueueInProgress {
		respondError(w, http.StatusConflict, codeConflict, "queue is executing, retry after the run finishes")
		return
	}

	wasActive := q.IsActive
	if err := req.apply(q); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	// Reactivation through the API also clears the failure shutoff.
	if !wasActive && q.IsActive {
		q.ConsecutiveFailures = 0
	}

	if err := h.store.UpdateQueue(r.Context(), q); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// DeleteQueue handles DELETE /api/v1/queues/{id}. The trigger goes first so
// the scheduler never fires a deleted queue.
func (h *Handler) DeleteQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.schedules.Unschedule(r.Context(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
		respondStoreError(w, err)
		return
	}
	if err := h.store.DeleteQueue(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id.String()})
}

// ScheduleQueue handles POST /api/v1/queues/{id}/schedule. With
// ?reschedule=true an existing trigger is recomputed from now.
func (h *Handler) ScheduleQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	reschedule := r.URL.Query().Get("reschedule") == "true"
	if err := h.schedules.Schedule(r.Context(), id, reschedule); err != nil {
		respondStoreError(w, err)
		return
	}
	q, err := h.store.GetQueue(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// UnscheduleQueue handles POST /api/v1/queues/{id}/unschedule.
func (h *Handler) UnscheduleQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.schedules.Unschedule(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"unscheduled": id.String()})
}

// PauseQueue handles POST /api/v1/queues/{id}/pause.
func (h *Handler) PauseQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.schedules.Pause(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"paused": id.String()})
}

// ResumeQueue handles POST /api/v1/queues/{id}/resume.
func (h *Handler) ResumeQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.schedules.Resume(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"resumed": id.String()})
}

// ExecuteQueue handles POST /api/v1/queues/{id}/execute: an immediate
// synchronous run, bypassing the timer.
func (h *Handler) ExecuteQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	result, err := h.schedules.ExecuteNow(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// SchedulerStatus handles GET /api/v1/scheduler/status.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.schedules.Status())
}
