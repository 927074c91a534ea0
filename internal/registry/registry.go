// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package registry resolves the external collaborators the engine depends
// on: instance configuration records and the API credentials they reference.
// Credentials only ever live in process memory; they are resolved at call
// time and never persisted alongside instance records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/models"
)

var (
	// ErrCredentialNotFound is returned when a credential reference resolves
	// to nothing. The reference name is safe to log; the secret never is.
	ErrCredentialNotFound = errors.New("credential not found")
)

// InstanceRegistry provides read access to configured service instances.
type InstanceRegistry interface {
	GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error)
}

// CredentialStore resolves a credential reference to its secret value.
type CredentialStore interface {
	Resolve(ref string) (string, error)
}

// StoreRegistry adapts the persistence layer to InstanceRegistry.
type StoreRegistry struct {
	store instanceGetter
}

type instanceGetter interface {
	GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error)
}

// NewStoreRegistry wraps a store in an InstanceRegistry.
func NewStoreRegistry(store instanceGetter) *StoreRegistry {
	return &StoreRegistry{store: store}
}

func (r *StoreRegistry) GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error) {
	return r.store.GetInstance(ctx, id)
}

// EnvCredentialStore resolves credential references against process
// environment variables. A reference like "SONARR_MAIN_API_KEY" maps
// directly to the variable of the same name.
type EnvCredentialStore struct{}

// NewEnvCredentialStore returns the environment-backed credential store.
func NewEnvCredentialStore() *EnvCredentialStore {
	return &EnvCredentialStore{}
}

func (s *EnvCredentialStore) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrCredentialNotFound)
	}
	val, ok := os.LookupEnv(ref)
	if !ok || val == "" {
		return "", fmt.Errorf("%w: %q", ErrCredentialNotFound, ref)
	}
	return val, nil
}

// StaticCredentialStore holds secrets in memory. Used in tests and for
// programmatic wiring; values are never written anywhere.
type StaticCredentialStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewStaticCredentialStore returns an empty in-memory credential store.
func NewStaticCredentialStore() *StaticCredentialStore {
	return &StaticCredentialStore{secrets: make(map[string]string)}
}

// Set stores or replaces a secret under ref.
func (s *StaticCredentialStore) Set(ref, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = secret
}

func (s *StaticCredentialStore) Resolve(ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.secrets[ref]
	if !ok || val == "" {
		return "", fmt.Errorf("%w: %q", ErrCredentialNotFound, ref)
	}
	return val, nil
}
