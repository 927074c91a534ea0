// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package arr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   int
		expected Class
	}{
		{http.StatusInternalServerError, ClassTransient},
		{http.StatusBadGateway, ClassTransient},
		{http.StatusServiceUnavailable, ClassTransient},
		{http.StatusGatewayTimeout, ClassTransient},
		{http.StatusUnauthorized, ClassAuthentication},
		{http.StatusForbidden, ClassAuthentication},
		{http.StatusTooManyRequests, ClassRateLimited},
		{http.StatusBadRequest, ClassValidation},
		{http.StatusNotFound, ClassValidation},
		{http.StatusConflict, ClassValidation},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.expected {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.expected)
		}
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		class     Class
		retryable bool
		fatal     bool
	}{
		{ClassTransient, true, false},
		{ClassRateLimited, true, false},
		{ClassAuthentication, false, true},
		{ClassValidation, false, true},
	}

	for _, tt := range tests {
		e := &APIError{Class: tt.class}
		if e.Retryable() != tt.retryable {
			t.Errorf("%s.Retryable() = %v, want %v", tt.class, e.Retryable(), tt.retryable)
		}
		if e.Fatal() != tt.fatal {
			t.Errorf("%s.Fatal() = %v, want %v", tt.class, e.Fatal(), tt.fatal)
		}
	}
}

func TestClassOfUnwrapsChains(t *testing.T) {
	t.Parallel()

	inner := &APIError{Class: ClassAuthentication, Op: "test", StatusCode: 401}
	wrapped := fmt.Errorf("retry attempts exhausted: %w", inner)

	if ClassOf(wrapped) != ClassAuthentication {
		t.Error("ClassOf must see through fmt.Errorf wrapping")
	}
	if !IsAuthentication(wrapped) {
		t.Error("IsAuthentication must see through wrapping")
	}
	if !IsFatal(wrapped) {
		t.Error("IsFatal must see through wrapping")
	}
	if ClassOf(errors.New("plain")) != "" {
		t.Error("ClassOf of a non-API error must be empty")
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	if got := parseRetryAfter("15"); got != 15*time.Second {
		t.Errorf("parseRetryAfter(15) = %s, want 15s", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %s, want 0", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("parseRetryAfter(garbage) = %s, want 0", got)
	}
	httpDate := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(httpDate); got <= 0 || got > 31*time.Second {
		t.Errorf("parseRetryAfter(http-date) = %s, want ~30s", got)
	}
}
