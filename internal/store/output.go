// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"time"
)

// OutputRow is one persisted transcript chunk.
type OutputRow struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Ts        time.Time `json:"ts"`
	Chunk     []byte    `json:"chunk"`
}

// AppendOutput appends a raw output chunk to the transcript.
func (s *Store) AppendOutput(sessionID string, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO output (session_id, ts, chunk) VALUES (?, ?, ?)`,
		sessionID, nowMillis(), chunk,
	)
	if err != nil {
		return fmt.Errorf("append output: %w", err)
	}
	return nil
}

// TailOutput returns the newest chunks for a session in chronological order,
// capped at limit (default 100).
func (s *Store) TailOutput(sessionID string, limit int) ([]OutputRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, ts, chunk FROM output
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("tail output: %w", err)
	}
	defer rows.Close()

	var result []OutputRow
	for rows.Next() {
		var (
			o  OutputRow
			ts int64
		)
		if err := rows.Scan(&o.ID, &o.SessionID, &ts, &o.Chunk); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		o.Ts = millisToTime(ts)
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query was newest-first; flip to chronological.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// TranscriptText concatenates the newest transcript chunks into a string,
// bounded by maxBytes from the end.
func (s *Store) TranscriptText(sessionID string, maxBytes int) (string, error) {
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}

	chunks, err := s.TailOutput(sessionID, 500)
	if err != nil {
		return "", err
	}

	total := 0
	for _, c := range chunks {
		total += len(c.Chunk)
	}

	buf := make([]byte, 0, total)
	for _, c := range chunks {
		buf = append(buf, c.Chunk...)
	}
	if len(buf) > maxBytes {
		buf = buf[len(buf)-maxBytes:]
	}
	return string(buf), nil
}
