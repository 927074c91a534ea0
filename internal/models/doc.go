// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package models defines the core domain entities shared across Backlogarr:
// external service instances, search queues, execution history records, and
// the wire-level DTOs exchanged with Sonarr and Radarr.
//
// The package is deliberately free of behavior beyond validation and enum
// helpers so it can be imported from every layer without cycles.
package models
