// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/models"
)

// instanceRequest is the create/update payload for a service instance.
// The API key itself never travels through this API: CredentialRef names
// the environment secret that holds it.
type instanceRequest struct {
	Name              string  `json:"name" validate:"required,min=1,max=128"`
	Kind              string  `json:"kind" validate:"required,oneof=sonarr radarr"`
	BaseURL           string  `json:"base_url" validate:"required,url"`
	CredentialRef     string  `json:"credential_ref" validate:"required,min=1,max=256"`
	RequestsPerSecond float64 `json:"requests_per_second" validate:"required,gt=0,lte=100"`
}

func (req *instanceRequest) apply(inst *models.Instance) {
	inst.Name = req.Name
	inst.Kind = models.InstanceKind(req.Kind)
	inst.BaseURL = req.BaseURL
	inst.CredentialRef = req.CredentialRef
	inst.RequestsPerSecond = req.RequestsPerSecond
}

// CreateInstance handles POST /api/v1/instances.
func (h *Handler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	inst := &models.Instance{}
	req.apply(inst)

	if err := h.store.CreateInstance(r.Context(), inst); err != nil {
		if errors.Is(err, models.ErrInvalidBaseURL) || errors.Is(err, models.ErrInvalidInstanceKind) {
			respondError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
		respondStoreError(w, err)
		return
	}

	logging.Info().Str("instance", inst.Name).Str("kind", string(inst.Kind)).Msg("instance created")
	respondJSON(w, http.StatusCreated, inst)
}

// GetInstance handles GET /api/v1/instances/{id}.
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	inst, err := h.store.GetInstance(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

// ListInstances handles GET /api/v1/instances.
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.store.ListInstances(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, instances)
}

// UpdateInstance handles PUT /api/v1/instances/{id}. Rate changes take
// effect on the next execution; the engine rebuilds its client when it
// observes the bumped UpdatedAt.
func (h *Handler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req instanceRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	inst, err := h.store.GetInstance(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	req.apply(inst)

	if err := h.store.UpdateInstance(r.Context(), inst); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

// DeleteInstance handles DELETE /api/v1/instances/{id}.
func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteInstance(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id.String()})
}

// TestInstance handles POST /api/v1/instances/{id}/test: a connectivity and
// credential probe against the live service.
func (h *Handler) TestInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	inst, err := h.store.GetInstance(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	result, err := h.tester.TestInstance(r.Context(), inst)
	if err != nil {
		respondError(w, http.StatusBadGateway, codeUpstreamFailure,
			logging.Redact(err.Error()))
		return
	}
	respondJSON(w, http.StatusOK, result)
}
