// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store persists sessions, events, output transcripts, attention
// items, workspace presets, orchestrations, and idempotency records in a
// single SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the process-wide SQLite handle.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database under dataDir and applies schema and
// migrations. The directory is created if missing.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return OpenPath(filepath.Join(dataDir, "fyp.db"))
}

// OpenPath opens the database at an explicit path. Tests pass ":memory:".
func OpenPath(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps SQLite writers serialized and makes
	// :memory: databases behave (each pooled conn would get its own).
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// createSchema creates all tables and indexes. Every statement is idempotent.
func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			tool TEXT NOT NULL,
			profile_id TEXT NOT NULL DEFAULT '',
			tool_session_id TEXT,
			cwd TEXT NOT NULL DEFAULT '',
			workspace_key TEXT,
			workspace_root TEXT,
			tree_path TEXT,
			label TEXT,
			pinned_slot INTEGER,
			internal INTEGER NOT NULL DEFAULT 0,
			exit_code INTEGER,
			exit_signal TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_ts ON events(session_id, ts)`,
		`CREATE TABLE IF NOT EXISTS output (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			chunk BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_output_session_id ON output(session_id, id DESC)`,
		`CREATE TABLE IF NOT EXISTS attention_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			kind TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'info',
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			signature TEXT NOT NULL,
			options TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attention_session_ts ON attention_items(session_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_attention_signature ON attention_items(signature, status)`,
		`CREATE TABLE IF NOT EXISTS attention_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attention_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			action TEXT NOT NULL,
			data TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS workspace_presets (
			path TEXT NOT NULL,
			tool TEXT NOT NULL,
			profile_id TEXT NOT NULL DEFAULT '',
			overrides TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (path, tool)
		)`,
		`CREATE TABLE IF NOT EXISTS orchestrations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			project_path TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at INTEGER NOT NULL,
			doc TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency (
			orchestration_id TEXT NOT NULL,
			key TEXT NOT NULL,
			command_id TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (orchestration_id, key)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// migrate adds columns introduced after the initial schema. SQLite has no
// ADD COLUMN IF NOT EXISTS, so we diff against PRAGMA table_info.
func (s *Store) migrate() error {
	adds := []struct {
		table  string
		column string
		ddl    string
	}{
		{"sessions", "tree_path", `ALTER TABLE sessions ADD COLUMN tree_path TEXT`},
		{"sessions", "internal", `ALTER TABLE sessions ADD COLUMN internal INTEGER NOT NULL DEFAULT 0`},
		{"sessions", "pinned_slot", `ALTER TABLE sessions ADD COLUMN pinned_slot INTEGER`},
		{"attention_items", "severity", `ALTER TABLE attention_items ADD COLUMN severity TEXT NOT NULL DEFAULT 'info'`},
	}

	for _, a := range adds {
		have, err := s.hasColumn(a.table, a.column)
		if err != nil {
			return err
		}
		if have {
			continue
		}
		if _, err := s.db.Exec(a.ddl); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", a.table, a.column, err)
		}
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// nowMillis returns the current wall clock in milliseconds, the unit all ts
// columns use.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
