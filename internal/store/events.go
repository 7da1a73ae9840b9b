// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventRow is a persisted per-session event.
type EventRow struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId"`
	Ts        time.Time       `json:"ts"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// AppendEvent appends an event row and returns its monotonic id. data may be
// nil or any JSON-marshalable value.
func (s *Store) AppendEvent(sessionID, kind string, data any) (int64, error) {
	var raw []byte
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return 0, fmt.Errorf("marshal event data: %w", err)
		}
	}

	res, err := s.db.Exec(
		`INSERT INTO events (session_id, ts, kind, data) VALUES (?, ?, ?, ?)`,
		sessionID, nowMillis(), kind, nullBytes(raw),
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("event insert id: %w", err)
	}
	return id, nil
}

// ListEvents returns events for a session with id > afterID, oldest first,
// capped at limit (default 200).
func (s *Store) ListEvents(sessionID string, afterID int64, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, ts, kind, data FROM events
		 WHERE session_id = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		sessionID, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LastEventMatching returns the newest event for a session whose kind is in
// exact or starts with one of prefixes. Returns nil when there is none.
func (s *Store) LastEventMatching(sessionID string, exact []string, prefixes []string) (*EventRow, error) {
	var conds []string
	var args []any
	args = append(args, sessionID)

	if len(exact) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(exact)), ",")
		conds = append(conds, `kind IN (`+ph+`)`)
		for _, k := range exact {
			args = append(args, k)
		}
	}
	for _, p := range prefixes {
		conds = append(conds, `kind LIKE ?`)
		args = append(args, p+"%")
	}
	if len(conds) == 0 {
		return nil, nil
	}

	query := `SELECT id, session_id, ts, kind, data FROM events
		 WHERE session_id = ? AND (` + strings.Join(conds, " OR ") + `)
		 ORDER BY id DESC LIMIT 1`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("last event: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func scanEvents(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]EventRow, error) {
	var result []EventRow
	for rows.Next() {
		var (
			e    EventRow
			ts   int64
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &ts, &e.Kind, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Ts = millisToTime(ts)
		if len(data) > 0 {
			e.Data = json.RawMessage(data)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
