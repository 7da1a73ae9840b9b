// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// OrchestrationClient manages multi-agent orchestration runs.
type OrchestrationClient struct {
	c *Client
}

// List returns all orchestrations.
func (oc *OrchestrationClient) List(ctx context.Context) ([]*Orchestration, error) {
	data, err := oc.c.get(ctx, "/api/v1/orchestrations")
	if err != nil {
		return nil, err
	}
	var out struct {
		Orchestrations []*Orchestration `json:"orchestrations"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse orchestrations: %w", err)
	}
	return out.Orchestrations, nil
}

// Create starts a new orchestration: one orchestrator session plus a
// worktree and session per worker.
func (oc *OrchestrationClient) Create(ctx context.Context, req *CreateOrchestrationRequest) (*Orchestration, error) {
	data, err := oc.c.postJSON(ctx, "/api/v1/orchestrations", req)
	if err != nil {
		return nil, err
	}
	var doc Orchestration
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse orchestration: %w", err)
	}
	return &doc, nil
}

// Get returns one orchestration including startup, sync, and automation
// state.
func (oc *OrchestrationClient) Get(ctx context.Context, id string) (*Orchestration, error) {
	data, err := oc.c.get(ctx, "/api/v1/orchestrations/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var doc Orchestration
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse orchestration: %w", err)
	}
	return &doc, nil
}

// Dispatch writes text to one or more workers.
func (oc *OrchestrationClient) Dispatch(ctx context.Context, id string, req *DispatchRequest) (*DispatchResult, error) {
	data, err := oc.c.postJSON(ctx, "/api/v1/orchestrations/"+url.PathEscape(id)+"/dispatch", req)
	if err != nil {
		return nil, err
	}
	var out DispatchResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse dispatch result: %w", err)
	}
	return &out, nil
}

// Sync runs a manual digest. A nil request syncs with defaults (no force,
// deliver to the orchestrator).
func (oc *OrchestrationClient) Sync(ctx context.Context, id string, req *SyncRequest) (*SyncResult, error) {
	if req == nil {
		req = &SyncRequest{}
	}
	data, err := oc.c.postJSON(ctx, "/api/v1/orchestrations/"+url.PathEscape(id)+"/sync", req)
	if err != nil {
		return nil, err
	}
	var out SyncResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse sync result: %w", err)
	}
	return &out, nil
}

// PatchAutomation updates the automation policy. Only non-nil fields
// change; the response is the resulting automation state.
func (oc *OrchestrationClient) PatchAutomation(ctx context.Context, id string, patch *AutomationPatch) (*AutomationState, error) {
	data, err := oc.c.patchJSON(ctx, "/api/v1/orchestrations/"+url.PathEscape(id)+"/automation", patch)
	if err != nil {
		return nil, err
	}
	var out AutomationState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse automation state: %w", err)
	}
	return &out, nil
}

// Cleanup stops sessions and removes worktrees. A concurrent cleanup on the
// same orchestration gets "orchestration_locked".
func (oc *OrchestrationClient) Cleanup(ctx context.Context, id string, req *CleanupRequest) (*CleanupSummary, error) {
	data, err := oc.c.postJSON(ctx, "/api/v1/orchestrations/"+url.PathEscape(id)+"/cleanup", req)
	if err != nil {
		return nil, err
	}
	var out CleanupSummary
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse cleanup summary: %w", err)
	}
	return &out, nil
}
