// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/engine"
	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/models"
	"github.com/tomtom215/backlogarr/internal/scheduler"
	"github.com/tomtom215/backlogarr/internal/store"
)

// Error codes returned in APIError.Code.
const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeValidation      = "VALIDATION_ERROR"
	codeNotFound        = "NOT_FOUND"
	codeConflict        = "CONFLICT"
	codeInternal        = "INTERNAL_ERROR"
	codeUpstreamFailure = "UPSTREAM_FAILURE"
)

// maxBodyBytes bounds request bodies; management payloads are tiny.
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(&models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logging.Error().Err(err).Msg("failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(&models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: code, Message: message},
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logging.Error().Err(err).Msg("failed to write error response")
	}
}

// respondStoreError maps service-layer errors onto HTTP statuses. Messages
// pass through the redactor so upstream errors never leak credentials.
func respondStoreError(w http.ResponseWriter, err error, secrets ...string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "record not found")
	case errors.Is(err, engine.ErrQueueBusy):
		respondError(w, http.StatusConflict, codeConflict, "queue is already executing")
	case errors.Is(err, engine.ErrQueueInactive), errors.Is(err, engine.ErrQueuePaused),
		errors.Is(err, scheduler.ErrNotSchedulable), errors.Is(err, scheduler.ErrNotPaused):
		respondError(w, http.StatusConflict, codeConflict, logging.Redact(err.Error(), secrets...))
	default:
		logging.Error().Msg(logging.Redact(fmt.Sprintf("request failed: %v", err), secrets...))
		respondError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// decodeJSON reads and unmarshals a bounded request body, then validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "malformed JSON body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			respondError(w, http.StatusBadRequest, codeValidation,
				fmt.Sprintf("field %s failed %s validation", strings.ToLower(verrs[0].Field()), verrs[0].Tag()))
			return false
		}
		respondError(w, http.StatusBadRequest, codeValidation, "validation failed")
		return false
	}
	return true
}

// pathUUID parses the {id} URL parameter.
func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an integer query parameter with a default and upper bound.
func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
