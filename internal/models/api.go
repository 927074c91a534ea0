// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package models

import "time"

// APIResponse is the envelope every HTTP endpoint returns. Status is
// "success" or "error"; Error is populated only for the latter.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response generation details.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError is the structured error payload of a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
