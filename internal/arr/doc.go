// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package arr implements authenticated HTTP clients for Sonarr and Radarr
// v3 APIs: connectivity tests, paginated wanted/cutoff listings, and
// fire-and-forget search commands with pollable status.
//
// The package owns error classification (transient network, authentication,
// validation, rate limited) and retry with exponential backoff. Transient and
// rate-limited errors are retried up to the attempt budget, with rate-limited
// responses additionally honoring a server-suggested wait; authentication and
// validation errors fail immediately.
//
// Every network call first acquires a token from the per-instance rate gate
// wired in at construction, and every error message is redacted before it
// leaves the package so credentials never reach logs or history records.
package arr
