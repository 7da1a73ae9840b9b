// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// InboxClient is the attention inbox: questions, approvals, and errors that
// need a human (or the orchestrator) to act.
type InboxClient struct {
	c *Client
}

// List returns attention items matching the filter, plus per-session open
// counts. A nil filter returns everything.
func (ic *InboxClient) List(ctx context.Context, filter *InboxFilter) (*InboxPage, error) {
	query := url.Values{}
	if filter != nil {
		if filter.SessionID != "" {
			query.Set("sessionId", filter.SessionID)
		}
		if filter.WorkspaceKey != "" {
			query.Set("workspaceKey", filter.WorkspaceKey)
		}
		if filter.Cwd != "" {
			query.Set("cwd", filter.Cwd)
		}
		if filter.Status != "" {
			query.Set("status", filter.Status)
		}
		if filter.Limit > 0 {
			query.Set("limit", strconv.Itoa(filter.Limit))
		}
	}
	path := "/api/v1/inbox"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	data, err := ic.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var page InboxPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parse inbox: %w", err)
	}
	return &page, nil
}

// Create inserts an attention item. A repeated signature dedupes against
// the existing open item (see [CreateAttentionResult]).
func (ic *InboxClient) Create(ctx context.Context, req *CreateAttentionRequest) (*CreateAttentionResult, error) {
	data, err := ic.c.postJSON(ctx, "/api/v1/inbox", req)
	if err != nil {
		return nil, err
	}
	var res CreateAttentionResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse create result: %w", err)
	}
	return &res, nil
}

// Get returns one attention item.
func (ic *InboxClient) Get(ctx context.Context, id int64) (*AttentionItem, error) {
	data, err := ic.c.get(ctx, "/api/v1/inbox/"+strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}
	var item AttentionItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parse attention item: %w", err)
	}
	return &item, nil
}

// Respond answers an item with one of its options; the option's send text
// is written into the session. Answering a closed item gets
// "already_closed".
func (ic *InboxClient) Respond(ctx context.Context, id int64, optionID string) (*AttentionItem, error) {
	data, err := ic.c.postJSON(ctx, "/api/v1/inbox/"+strconv.FormatInt(id, 10)+"/respond",
		map[string]string{"optionId": optionID})
	if err != nil {
		return nil, err
	}
	var item AttentionItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parse attention item: %w", err)
	}
	return &item, nil
}

// Dismiss closes an item without sending anything to the session.
func (ic *InboxClient) Dismiss(ctx context.Context, id int64) (*AttentionItem, error) {
	data, err := ic.c.post(ctx, "/api/v1/inbox/"+strconv.FormatInt(id, 10)+"/dismiss")
	if err != nil {
		return nil, err
	}
	var item AttentionItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parse attention item: %w", err)
	}
	return &item, nil
}
