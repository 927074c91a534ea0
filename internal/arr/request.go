// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package arr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/backlogarr/internal/logging"
	"github.com/tomtom215/backlogarr/internal/metrics"
	"github.com/tomtom215/backlogarr/internal/models"
)

// maxErrorBodySize limits how much of a response body is read for error
// reporting, preventing unbounded allocation on large error responses.
const maxErrorBodySize = 64 * 1024 // 64KB

// defaultPageSize for wanted/cutoff listings.
const defaultPageSize = 50

// baseClient carries the HTTP mechanics shared by both service kinds:
// authentication, token gating, classification, retry, and redaction.
type baseClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	gate       Gate
	retry      RetryConfig
	pageSize   int
}

func newBaseClient(inst *models.Instance, apiKey string, opts Options) *baseClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := opts.Retry
	if retry.Attempts <= 0 {
		retry = DefaultRetryConfig()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &baseClient{
		name:       inst.Name,
		baseURL:    strings.TrimSuffix(inst.BaseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		gate:       opts.Gate,
		retry:      retry,
		pageSize:   pageSize,
	}
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *baseClient) get(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.do(ctx, op, http.MethodGet, path, query, nil, out)
}

// post performs an authenticated POST with a JSON body.
func (c *baseClient) post(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, nil, body, out)
}

// do runs one logical API call with the retry loop. Transient and
// rate-limited failures are retried with exponential backoff (doubling from
// InitialDelay, capped at MaxDelay); rate-limited responses wait at least the
// server-suggested delay. Fatal classifications return immediately.
func (c *baseClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	delay := c.retry.InitialDelay

	var lastErr *APIError
	for attempt := 0; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 0 {
			wait := delay
			if lastErr.Class == ClassRateLimited && lastErr.RetryAfter > wait {
				wait = lastErr.RetryAfter
			}
			logging.Warn().
				Str("instance", c.name).
				Str("operation", op).
				Int("attempt", attempt).
				Dur("delay", wait).
				Str("class", string(lastErr.Class)).
				Msg("Retrying wire call")
			metrics.WireRetries.WithLabelValues(c.name, op).Inc()

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return lastErr
			}
			if delay *= 2; delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}

		err := c.doOnce(ctx, op, method, path, query, body, out)
		if err == nil {
			return nil
		}

		apiErr, ok := err.(*APIError)
		if !ok {
			return err
		}
		metrics.WireRequestErrors.WithLabelValues(c.name, op, string(apiErr.Class)).Inc()
		if !apiErr.Retryable() {
			return apiErr
		}
		lastErr = apiErr
	}

	return fmt.Errorf("retry attempts exhausted: %w", lastErr)
}

// doOnce performs a single network attempt: token acquisition, request,
// classification, decode.
func (c *baseClient) doOnce(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.gate != nil {
		if err := c.gate.Acquire(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request body: %w", op, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.WireRequestDuration.WithLabelValues(c.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		// Timeouts, refused connections, resets: all transient.
		return &APIError{
			Class:   ClassTransient,
			Op:      op,
			Message: logging.Redact(err.Error(), c.apiKey),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &APIError{
				Class:      ClassTransient,
				Op:         op,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("failed to decode response: %s", logging.Redact(err.Error(), c.apiKey)),
			}
		}
	}
	return nil
}

// errorFromResponse builds a classified, redacted APIError from a non-2xx
// response.
func (c *baseClient) errorFromResponse(op string, resp *http.Response) *APIError {
	apiErr := &APIError{
		Class:      classifyStatus(resp.StatusCode),
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    logging.Redact(string(readBodyForError(resp.Body)), c.apiKey),
	}
	if apiErr.Class == ClassRateLimited {
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return apiErr
}

// readBodyForError reads at most maxErrorBodySize of the body for error
// reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
