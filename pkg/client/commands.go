// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CommandClient executes catalog commands through the gate.
type CommandClient struct {
	c *Client
}

// Catalog lists every command with its mode and risk tier.
func (cc *CommandClient) Catalog(ctx context.Context) ([]*CommandInfo, error) {
	data, err := cc.c.get(ctx, "/api/v1/commands")
	if err != nil {
		return nil, err
	}
	var out struct {
		Commands []*CommandInfo `json:"commands"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return out.Commands, nil
}

// Execute runs a catalog command. Set req.IdempotencyKey to make the call
// replay-safe: repeating the same key within the orchestration returns the
// stored response with Replayed set.
func (cc *CommandClient) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResult, error) {
	var headers http.Header
	if req.IdempotencyKey != "" {
		headers = http.Header{"Idempotency-Key": []string{req.IdempotencyKey}}
	}
	data, err := cc.c.sendJSON(ctx, http.MethodPost, "/api/v1/commands/execute", req, headers)
	if err != nil {
		return nil, err
	}
	var res ExecuteResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse execute result: %w", err)
	}
	return &res, nil
}
