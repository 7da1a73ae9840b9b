// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// PresetClient remembers per-workspace tool settings.
type PresetClient struct {
	c *Client
}

// Get returns the preset for (path, tool).
func (pc *PresetClient) Get(ctx context.Context, path, tool string) (*WorkspacePreset, error) {
	query := url.Values{"path": {path}, "tool": {tool}}
	data, err := pc.c.get(ctx, "/api/v1/presets?"+query.Encode())
	if err != nil {
		return nil, err
	}
	var p WorkspacePreset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	return &p, nil
}

// List returns all presets recorded for a workspace path.
func (pc *PresetClient) List(ctx context.Context, path string) ([]*WorkspacePreset, error) {
	query := url.Values{"path": {path}}
	data, err := pc.c.get(ctx, "/api/v1/presets?"+query.Encode())
	if err != nil {
		return nil, err
	}
	var out struct {
		Presets []*WorkspacePreset `json:"presets"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	return out.Presets, nil
}

// Put upserts the preset for (preset.Path, preset.Tool).
func (pc *PresetClient) Put(ctx context.Context, preset *WorkspacePreset) (*WorkspacePreset, error) {
	data, err := pc.c.putJSON(ctx, "/api/v1/presets", preset)
	if err != nil {
		return nil, err
	}
	var saved WorkspacePreset
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	return &saved, nil
}
