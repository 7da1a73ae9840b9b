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

// Attention item statuses.
const (
	AttentionOpen      = "open"
	AttentionSent      = "sent"
	AttentionResolved  = "resolved"
	AttentionDismissed = "dismissed"
)

// AttentionOption is one selectable response for an attention item.
type AttentionOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Send  string `json:"send"`
}

// AttentionItem is a persisted inbox record.
type AttentionItem struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"sessionId"`
	Ts        time.Time         `json:"ts"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Status    string            `json:"status"`
	Kind      string            `json:"kind"`
	Severity  string            `json:"severity"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Signature string            `json:"signature"`
	Options   []AttentionOption `json:"options"`
}

// Option returns the option with the given id, if present.
func (a *AttentionItem) Option(optionID string) (AttentionOption, bool) {
	for _, o := range a.Options {
		if o.ID == optionID {
			return o, true
		}
	}
	return AttentionOption{}, false
}

// AttentionFilter selects attention items.
type AttentionFilter struct {
	SessionID string
	Status    string
	Limit     int
}

const attentionColumns = `id, session_id, ts, updated_at, status, kind, severity, title, body, signature, options`

func scanAttention(scanner interface{ Scan(...any) error }) (*AttentionItem, error) {
	var (
		a          AttentionItem
		ts, upd    int64
		optionsRaw string
	)
	err := scanner.Scan(&a.ID, &a.SessionID, &ts, &upd, &a.Status, &a.Kind,
		&a.Severity, &a.Title, &a.Body, &a.Signature, &optionsRaw)
	if err != nil {
		return nil, err
	}
	a.Ts = millisToTime(ts)
	a.UpdatedAt = millisToTime(upd)
	if err := json.Unmarshal([]byte(optionsRaw), &a.Options); err != nil {
		a.Options = nil
	}
	return &a, nil
}

// CreateOrTouchAttention inserts a new attention item, unless an open item
// with the same signature exists, in which case that row is touched (title,
// body, options, updated_at refreshed, status forced back to open) and its
// id returned with created=false. Runs in one transaction so two concurrent
// creates cannot both insert.
func (s *Store) CreateOrTouchAttention(item *AttentionItem) (id int64, created bool, err error) {
	optionsRaw, err := json.Marshal(item.Options)
	if err != nil {
		return 0, false, fmt.Errorf("marshal options: %w", err)
	}
	if item.Severity == "" {
		item.Severity = "info"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("begin attention: %w", err)
	}
	defer tx.Rollback()

	now := nowMillis()

	var existingID int64
	err = tx.QueryRow(
		`SELECT id FROM attention_items WHERE signature = ? AND status IN (?, ?) ORDER BY id DESC LIMIT 1`,
		item.Signature, AttentionOpen, AttentionSent,
	).Scan(&existingID)

	switch {
	case err == nil:
		_, err = tx.Exec(
			`UPDATE attention_items SET title = ?, body = ?, options = ?, updated_at = ?, status = ? WHERE id = ?`,
			item.Title, item.Body, string(optionsRaw), now, AttentionOpen, existingID,
		)
		if err != nil {
			return 0, false, fmt.Errorf("touch attention: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, false, err
		}
		return existingID, false, nil

	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.Exec(
			`INSERT INTO attention_items (session_id, ts, updated_at, status, kind, severity, title, body, signature, options)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.SessionID, now, now, AttentionOpen, item.Kind, item.Severity,
			item.Title, item.Body, item.Signature, string(optionsRaw),
		)
		if err != nil {
			return 0, false, fmt.Errorf("insert attention: %w", err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("attention insert id: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, false, err
		}
		return newID, true, nil

	default:
		return 0, false, fmt.Errorf("lookup attention signature: %w", err)
	}
}

// GetAttention retrieves one attention item.
func (s *Store) GetAttention(id int64) (*AttentionItem, error) {
	row := s.db.QueryRow(`SELECT `+attentionColumns+` FROM attention_items WHERE id = ?`, id)
	item, err := scanAttention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attention: %w", err)
	}
	return item, nil
}

// ListAttention returns items matching the filter, newest updated first.
func (s *Store) ListAttention(filter AttentionFilter) ([]*AttentionItem, error) {
	query := `SELECT ` + attentionColumns + ` FROM attention_items WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attention: %w", err)
	}
	defer rows.Close()

	var result []*AttentionItem
	for rows.Next() {
		item, err := scanAttention(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attention: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// SetAttentionStatus updates an item's status.
func (s *Store) SetAttentionStatus(id int64, status string) error {
	res, err := s.db.Exec(
		`UPDATE attention_items SET status = ?, updated_at = ? WHERE id = ?`,
		status, nowMillis(), id,
	)
	if err != nil {
		return fmt.Errorf("set attention status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAttentionAction records an audit action for an item.
func (s *Store) AppendAttentionAction(attentionID int64, sessionID, action string, data any) error {
	var raw []byte
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal action data: %w", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO attention_actions (attention_id, session_id, ts, action, data) VALUES (?, ?, ?, ?, ?)`,
		attentionID, sessionID, nowMillis(), action, nullBytes(raw),
	)
	if err != nil {
		return fmt.Errorf("append attention action: %w", err)
	}
	return nil
}

// OpenAttentionCounts returns the number of unanswered items per session,
// for badge rendering. Items queued to an orchestrator still count.
func (s *Store) OpenAttentionCounts() (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT session_id, COUNT(*) FROM attention_items WHERE status IN (?, ?) GROUP BY session_id`,
		AttentionOpen, AttentionSent,
	)
	if err != nil {
		return nil, fmt.Errorf("attention counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sid string
		var n int
		if err := rows.Scan(&sid, &n); err != nil {
			return nil, err
		}
		counts[sid] = n
	}
	return counts, rows.Err()
}
