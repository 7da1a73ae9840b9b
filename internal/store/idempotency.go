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

// IdempotencyRecord is one remembered command execution, keyed by
// (orchestration, idempotency key). Replays return the stored response.
type IdempotencyRecord struct {
	OrchestrationID string          `json:"orchestrationId"`
	Key             string          `json:"key"`
	CommandID       string          `json:"commandId"`
	PayloadHash     string          `json:"payloadHash"`
	Response        json.RawMessage `json:"response"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// GetIdempotent looks up a prior execution for the key.
func (s *Store) GetIdempotent(orchestrationID, key string) (*IdempotencyRecord, error) {
	row := s.db.QueryRow(
		`SELECT orchestration_id, key, command_id, payload_hash, response, created_at
		 FROM idempotency WHERE orchestration_id = ? AND key = ?`,
		orchestrationID, key,
	)

	var (
		rec      IdempotencyRecord
		response string
		created  int64
	)
	err := row.Scan(&rec.OrchestrationID, &rec.Key, &rec.CommandID, &rec.PayloadHash, &response, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	rec.Response = json.RawMessage(response)
	rec.CreatedAt = millisToTime(created)
	return &rec, nil
}

// PutIdempotent stores the response for a key. A concurrent duplicate insert
// keeps the first writer's record.
func (s *Store) PutIdempotent(rec *IdempotencyRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO idempotency (orchestration_id, key, command_id, payload_hash, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(orchestration_id, key) DO NOTHING`,
		rec.OrchestrationID, rec.Key, rec.CommandID, rec.PayloadHash, string(rec.Response), nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("put idempotency record: %w", err)
	}
	return nil
}

// PruneIdempotency removes records older than the cutoff.
func (s *Store) PruneIdempotency(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM idempotency WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune idempotency: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
