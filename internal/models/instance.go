// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InstanceKind identifies the kind of backing media-library service.
type InstanceKind string

const (
	// KindSonarr is a Sonarr (series) instance.
	KindSonarr InstanceKind = "sonarr"
	// KindRadarr is a Radarr (movie) instance.
	KindRadarr InstanceKind = "radarr"
)

// Valid reports whether the kind is one of the supported service kinds.
func (k InstanceKind) Valid() bool {
	return k == KindSonarr || k == KindRadarr
}

// ItemType returns the media item type searched on this kind of instance.
// It is used as part of cooldown keys so episode and movie ids never collide.
func (k InstanceKind) ItemType() string {
	switch k {
	case KindSonarr:
		return "episode"
	case KindRadarr:
		return "movie"
	default:
		return "unknown"
	}
}

// Errors for instance validation
var (
	ErrInvalidInstanceKind = errors.New("instance kind must be sonarr or radarr")
	ErrInvalidBaseURL      = errors.New("instance base URL must be a valid http(s) URL")
	ErrMissingCredential   = errors.New("instance credential reference is required")
)

// Instance is a configured external media-management service endpoint.
// Instances are owned by the instance registry; the execution engine only
// ever reads them.
type Instance struct {
	ID   uuid.UUID    `json:"id"`
	Name string       `json:"name"`
	Kind InstanceKind `json:"kind"`

	// BaseURL is the root URL of the service, e.g. http://sonarr:8989.
	BaseURL string `json:"base_url"`

	// CredentialRef names the secret holding the API key. The secret itself
	// is resolved through the credential store at call time and is never
	// stored on this struct.
	CredentialRef string `json:"credential_ref"`

	// RequestsPerSecond is the configured rate limit for this instance.
	// It sizes both the token bucket refill rate and its burst capacity.
	RequestsPerSecond float64 `json:"requests_per_second"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the instance for structural problems before it is persisted
// or used to build a wire client.
func (i *Instance) Validate() error {
	if !i.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidInstanceKind, i.Kind)
	}
	u, err := url.Parse(i.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, i.BaseURL)
	}
	if strings.TrimSpace(i.CredentialRef) == "" {
		return ErrMissingCredential
	}
	if i.RequestsPerSecond <= 0 {
		return fmt.Errorf("instance requests_per_second must be positive, got %g", i.RequestsPerSecond)
	}
	return nil
}
