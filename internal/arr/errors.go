// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package arr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Class partitions wire-client failures by how the engine must react.
type Class string

const (
	// ClassTransient covers timeouts, connection resets, and 5xx responses.
	// Retried with exponential backoff.
	ClassTransient Class = "transient_network"

	// ClassAuthentication covers 401/403. Fatal, never retried.
	ClassAuthentication Class = "authentication"

	// ClassValidation covers other 4xx responses: a configuration problem.
	// Fatal, never retried.
	ClassValidation Class = "validation"

	// ClassRateLimited covers 429. Retried after the server-suggested wait
	// when present, otherwise after the normal backoff delay.
	ClassRateLimited Class = "rate_limited"
)

// APIError is a classified wire-client failure. The message is already
// redacted; it is safe to log and to persist in history records.
type APIError struct {
	Class      Class
	Op         string
	StatusCode int
	Message    string

	// RetryAfter is the server-suggested wait for rate-limited responses,
	// zero when the server did not supply one.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Class, e.Message)
}

// Retryable reports whether the wire client may retry this failure.
func (e *APIError) Retryable() bool {
	return e.Class == ClassTransient || e.Class == ClassRateLimited
}

// Fatal reports whether the failure short-circuits without retry.
func (e *APIError) Fatal() bool {
	return e.Class == ClassAuthentication || e.Class == ClassValidation
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(status int) Class {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuthentication
	case status >= 500:
		return ClassTransient
	case status >= 400:
		return ClassValidation
	default:
		return ClassTransient
	}
}

// ClassOf extracts the class of a wire-client error, or "" for other errors.
func ClassOf(err error) Class {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool { return ClassOf(err) == ClassAuthentication }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return ClassOf(err) == ClassValidation }

// IsTransient reports whether err is a transient network failure.
func IsTransient(err error) bool { return ClassOf(err) == ClassTransient }

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool { return ClassOf(err) == ClassRateLimited }

// IsFatal reports whether err must short-circuit the current batch.
func IsFatal(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Fatal()
}
