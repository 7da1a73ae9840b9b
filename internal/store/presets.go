// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WorkspacePreset remembers the last tool settings used for a workspace
// path, keyed by (path, tool).
type WorkspacePreset struct {
	Path      string          `json:"path"`
	Tool      string          `json:"tool"`
	ProfileID string          `json:"profileId,omitempty"`
	Overrides json.RawMessage `json:"overrides,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// GetPreset retrieves the preset for a workspace path and tool.
func (s *Store) GetPreset(path, tool string) (*WorkspacePreset, error) {
	row := s.db.QueryRow(
		`SELECT path, tool, profile_id, overrides, updated_at FROM workspace_presets WHERE path = ? AND tool = ?`,
		path, tool,
	)

	var (
		p         WorkspacePreset
		profileID sql.NullString
		overrides sql.NullString
		updated   int64
	)
	err := row.Scan(&p.Path, &p.Tool, &profileID, &overrides, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preset: %w", err)
	}
	p.ProfileID = profileID.String
	if overrides.Valid {
		p.Overrides = json.RawMessage(overrides.String)
	}
	p.UpdatedAt = millisToTime(updated)
	return &p, nil
}

// ListPresets returns all presets for a workspace path.
func (s *Store) ListPresets(path string) ([]*WorkspacePreset, error) {
	rows, err := s.db.Query(
		`SELECT path, tool, profile_id, overrides, updated_at FROM workspace_presets WHERE path = ? ORDER BY tool`,
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var result []*WorkspacePreset
	for rows.Next() {
		var (
			p         WorkspacePreset
			profileID sql.NullString
			overrides sql.NullString
			updated   int64
		)
		if err := rows.Scan(&p.Path, &p.Tool, &profileID, &overrides, &updated); err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		p.ProfileID = profileID.String
		if overrides.Valid {
			p.Overrides = json.RawMessage(overrides.String)
		}
		p.UpdatedAt = millisToTime(updated)
		result = append(result, &p)
	}
	return result, rows.Err()
}

// UpsertPreset inserts or replaces the preset for (path, tool).
func (s *Store) UpsertPreset(p *WorkspacePreset) error {
	overrides := "{}"
	if len(p.Overrides) > 0 {
		overrides = string(p.Overrides)
	}
	_, err := s.db.Exec(
		`INSERT INTO workspace_presets (path, tool, profile_id, overrides, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path, tool) DO UPDATE SET profile_id = excluded.profile_id,
		   overrides = excluded.overrides, updated_at = excluded.updated_at`,
		p.Path, p.Tool, nullStr(p.ProfileID), overrides, nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("upsert preset: %w", err)
	}
	return nil
}
