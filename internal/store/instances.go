// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backlogarr/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const instanceColumns = "id, name, kind, base_url, credential_ref, requests_per_second, created_at, updated_at"

// CreateInstance persists a new instance record.
func (s *Store) CreateInstance(ctx context.Context, inst *models.Instance) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID.String(), inst.Name, string(inst.Kind), inst.BaseURL,
		inst.CredentialRef, inst.RequestsPerSecond, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

// GetInstance loads one instance by id.
func (s *Store) GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id.String())
	return scanInstance(row)
}

// ListInstances returns all configured instances.
func (s *Store) ListInstances(ctx context.Context) ([]models.Instance, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM instances ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

// UpdateInstance persists changes to an existing instance.
func (s *Store) UpdateInstance(ctx context.Context, inst *models.Instance) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	inst.UpdatedAt = time.Now().UTC()

	res, err := s.conn.ExecContext(ctx,
		`UPDATE instances SET name = ?, kind = ?, base_url = ?, credential_ref = ?,
			requests_per_second = ?, updated_at = ? WHERE id = ?`,
		inst.Name, string(inst.Kind), inst.BaseURL, inst.CredentialRef,
		inst.RequestsPerSecond, inst.UpdatedAt, inst.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteInstance removes an instance record.
func (s *Store) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	return requireRowAffected(res)
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*models.Instance, error) {
	var (
		inst     models.Instance
		id, kind string
	)
	err := row.Scan(&id, &inst.Name, &kind, &inst.BaseURL, &inst.CredentialRef,
		&inst.RequestsPerSecond, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}
	if inst.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt instance id %q: %w", id, err)
	}
	inst.Kind = models.InstanceKind(kind)
	return &inst, nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
