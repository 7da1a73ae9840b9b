// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is the persisted record of a supervised session.
type Session struct {
	ID            string    `json:"id"`
	Tool          string    `json:"tool"`
	ProfileID     string    `json:"profileId,omitempty"`
	ToolSessionID string    `json:"toolSessionId,omitempty"`
	Cwd           string    `json:"cwd"`
	WorkspaceKey  string    `json:"workspaceKey,omitempty"`
	WorkspaceRoot string    `json:"workspaceRoot,omitempty"`
	TreePath      string    `json:"treePath,omitempty"`
	Label         string    `json:"label,omitempty"`
	PinnedSlot    int       `json:"pinnedSlot,omitempty"`
	Internal      bool      `json:"internal,omitempty"`
	ExitCode      *int      `json:"exitCode,omitempty"`
	ExitSignal    *string   `json:"exitSignal,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Exited reports whether the session has recorded an exit.
func (s *Session) Exited() bool {
	return s.ExitCode != nil || s.ExitSignal != nil
}

const sessionColumns = `id, tool, profile_id, tool_session_id, cwd, workspace_key, workspace_root,
	tree_path, label, pinned_slot, internal, exit_code, exit_signal, created_at, updated_at`

func scanSession(scanner interface{ Scan(...any) error }) (*Session, error) {
	var (
		s                                   Session
		toolSessionID, wsKey, wsRoot        sql.NullString
		treePath, label, exitSignal         sql.NullString
		pinnedSlot, exitCode                sql.NullInt64
		internal, createdAt, updatedAt      int64
	)
	err := scanner.Scan(
		&s.ID, &s.Tool, &s.ProfileID, &toolSessionID, &s.Cwd, &wsKey, &wsRoot,
		&treePath, &label, &pinnedSlot, &internal, &exitCode, &exitSignal,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ToolSessionID = toolSessionID.String
	s.WorkspaceKey = wsKey.String
	s.WorkspaceRoot = wsRoot.String
	s.TreePath = treePath.String
	s.Label = label.String
	s.Internal = internal != 0
	if pinnedSlot.Valid {
		s.PinnedSlot = int(pinnedSlot.Int64)
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		s.ExitCode = &code
	}
	if exitSignal.Valid {
		sig := exitSignal.String
		s.ExitSignal = &sig
	}
	s.CreatedAt = millisToTime(createdAt)
	s.UpdatedAt = millisToTime(updatedAt)
	return &s, nil
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(sess *Session) error {
	now := nowMillis()
	if !sess.CreatedAt.IsZero() {
		now = sess.CreatedAt.UnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, tool, profile_id, tool_session_id, cwd, workspace_key,
			workspace_root, tree_path, label, pinned_slot, internal, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Tool, sess.ProfileID, nullStr(sess.ToolSessionID), sess.Cwd,
		nullStr(sess.WorkspaceKey), nullStr(sess.WorkspaceRoot), nullStr(sess.TreePath),
		nullStr(sess.Label), nullInt(sess.PinnedSlot), boolInt(sess.Internal), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	sess.CreatedAt = millisToTime(now)
	sess.UpdatedAt = millisToTime(now)
	return nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]*Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

// SetToolSessionID records the linked native tool session id.
func (s *Store) SetToolSessionID(id, toolSessionID string) error {
	return s.updateSession(id, `tool_session_id = ?`, toolSessionID)
}

// SetSessionLabel updates the display label.
func (s *Store) SetSessionLabel(id, label string) error {
	return s.updateSession(id, `label = ?`, label)
}

// SetSessionExit records the final exit information.
func (s *Store) SetSessionExit(id string, code *int, signal *string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET exit_code = ?, exit_signal = ?, updated_at = ? WHERE id = ?`,
		nullIntPtr(code), nullStrPtr(signal), nowMillis(), id,
	)
	if err != nil {
		return fmt.Errorf("set session exit: %w", err)
	}
	return nil
}

// PinSession assigns a pinned slot (1..6) to a session, clearing the slot
// from any other session in the same workspace (or cwd when the session has
// no workspace key). slot 0 unpins.
func (s *Store) PinSession(id string, slot int) error {
	if slot < 0 || slot > 6 {
		return fmt.Errorf("pinned slot must be 1-6, got %d", slot)
	}

	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin pin: %w", err)
	}
	defer tx.Rollback()

	if slot > 0 {
		// One slot holder per workspace. Sessions without a workspace key
		// contend per cwd instead.
		if sess.WorkspaceKey != "" {
			_, err = tx.Exec(
				`UPDATE sessions SET pinned_slot = NULL WHERE workspace_key = ? AND pinned_slot = ? AND id != ?`,
				sess.WorkspaceKey, slot, id,
			)
		} else {
			_, err = tx.Exec(
				`UPDATE sessions SET pinned_slot = NULL WHERE workspace_key IS NULL AND cwd = ? AND pinned_slot = ? AND id != ?`,
				sess.Cwd, slot, id,
			)
		}
		if err != nil {
			return fmt.Errorf("clear pinned slot: %w", err)
		}
	}

	if _, err := tx.Exec(
		`UPDATE sessions SET pinned_slot = ?, updated_at = ? WHERE id = ?`,
		nullInt(slot), nowMillis(), id,
	); err != nil {
		return fmt.Errorf("set pinned slot: %w", err)
	}

	return tx.Commit()
}

// DeleteSession removes the session row and everything hanging off it in a
// single transaction: attention actions, attention items, events, output.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		stmt string
		args []any
	}{
		{`DELETE FROM attention_actions WHERE session_id = ?`, []any{id}},
		{`DELETE FROM attention_items WHERE session_id = ?`, []any{id}},
		{`DELETE FROM events WHERE session_id = ?`, []any{id}},
		{`DELETE FROM output WHERE session_id = ?`, []any{id}},
		{`DELETE FROM sessions WHERE id = ?`, []any{id}},
	}
	for _, step := range steps {
		if _, err := tx.Exec(step.stmt, step.args...); err != nil {
			return fmt.Errorf("delete session cascade: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) updateSession(id, set string, args ...any) error {
	args = append(args, nowMillis(), id)
	res, err := s.db.Exec(`UPDATE sessions SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStrPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullIntPtr(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
