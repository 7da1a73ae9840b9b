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

// Orchestration statuses.
const (
	OrchestrationActive  = "active"
	OrchestrationCleaned = "cleaned"
)

// OrchestrationRow is the persisted form of an orchestration. Doc holds the
// full JSON document (workers, automation, digest bookkeeping) so the engine
// owns its own schema.
type OrchestrationRow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ProjectPath string          `json:"projectPath"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	Doc         json.RawMessage `json:"doc"`
}

// SaveOrchestration inserts a new orchestration row.
func (s *Store) SaveOrchestration(row *OrchestrationRow) error {
	doc := "{}"
	if len(row.Doc) > 0 {
		doc = string(row.Doc)
	}
	status := row.Status
	if status == "" {
		status = OrchestrationActive
	}
	_, err := s.db.Exec(
		`INSERT INTO orchestrations (id, name, project_path, status, created_at, doc) VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID, row.Name, row.ProjectPath, status, nowMillis(), doc,
	)
	if err != nil {
		return fmt.Errorf("save orchestration: %w", err)
	}
	return nil
}

// GetOrchestration retrieves one orchestration.
func (s *Store) GetOrchestration(id string) (*OrchestrationRow, error) {
	row := s.db.QueryRow(
		`SELECT id, name, project_path, status, created_at, doc FROM orchestrations WHERE id = ?`,
		id,
	)
	rec, err := scanOrchestration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get orchestration: %w", err)
	}
	return rec, nil
}

// ListOrchestrations returns all orchestrations, newest first. Pass a status
// to filter.
func (s *Store) ListOrchestrations(status string) ([]*OrchestrationRow, error) {
	query := `SELECT id, name, project_path, status, created_at, doc FROM orchestrations`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orchestrations: %w", err)
	}
	defer rows.Close()

	var result []*OrchestrationRow
	for rows.Next() {
		rec, err := scanOrchestration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan orchestration: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// UpdateOrchestration replaces the doc and status for an orchestration.
func (s *Store) UpdateOrchestration(id, status string, doc json.RawMessage) error {
	body := "{}"
	if len(doc) > 0 {
		body = string(doc)
	}
	res, err := s.db.Exec(
		`UPDATE orchestrations SET status = ?, doc = ? WHERE id = ?`,
		status, body, id,
	)
	if err != nil {
		return fmt.Errorf("update orchestration: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOrchestration removes an orchestration row and its idempotency
// records in one transaction. Session rows are cleaned up separately by the
// engine because they may be shared with the plain session list.
func (s *Store) DeleteOrchestration(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete orchestration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM idempotency WHERE orchestration_id = ?`, id); err != nil {
		return fmt.Errorf("delete idempotency records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM orchestrations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete orchestration: %w", err)
	}
	return tx.Commit()
}

func scanOrchestration(scanner interface{ Scan(...any) error }) (*OrchestrationRow, error) {
	var (
		rec     OrchestrationRow
		created int64
		doc     string
	)
	err := scanner.Scan(&rec.ID, &rec.Name, &rec.ProjectPath, &rec.Status, &created, &doc)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = millisToTime(created)
	rec.Doc = json.RawMessage(doc)
	return &rec, nil
}
