// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// apiKeyPattern matches api-key material that can leak into error text via
// request URLs or response bodies (query parameters and header echoes).
var apiKeyPattern = regexp.MustCompile(`(?i)(apikey|api_key|x-api-key)=[^&\s"']+`)

// Redact removes credential material from a string destined for logs or
// history records. Known secrets are replaced wherever they appear; api-key
// query parameters are masked regardless of their value.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "[REDACTED]")
		// Secrets can appear URL-escaped inside request URLs.
		if escaped := url.QueryEscape(secret); escaped != secret {
			s = strings.ReplaceAll(s, escaped, "[REDACTED]")
		}
	}
	return apiKeyPattern.ReplaceAllString(s, "${1}=[REDACTED]")
}

// RedactErr is a convenience wrapper for error values. A nil error yields an
// empty string.
func RedactErr(err error, secrets ...string) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error(), secrets...)
}
