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

// SessionClient manages supervised PTY sessions.
type SessionClient struct {
	c *Client
}

// List returns all sessions, newest first.
func (sc *SessionClient) List(ctx context.Context) ([]*Session, error) {
	data, err := sc.c.get(ctx, "/api/v1/sessions")
	if err != nil {
		return nil, err
	}
	var out struct {
		Sessions []*Session `json:"sessions"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse sessions: %w", err)
	}
	return out.Sessions, nil
}

// Create spawns a standalone session.
func (sc *SessionClient) Create(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	data, err := sc.c.postJSON(ctx, "/api/v1/sessions", req)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &s, nil
}

// Get returns one session with live status.
func (sc *SessionClient) Get(ctx context.Context, id string) (*Session, error) {
	data, err := sc.c.get(ctx, "/api/v1/sessions/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &s, nil
}

// Delete removes a session. A running session is refused with
// "session_running" unless force is set.
func (sc *SessionClient) Delete(ctx context.Context, id string, force bool) error {
	path := "/api/v1/sessions/" + url.PathEscape(id)
	if force {
		path += "?force=1"
	}
	_, err := sc.c.delete(ctx, path)
	return err
}

// Input writes text to the session's PTY. Include a trailing "\r" to submit
// the line to the tool.
func (sc *SessionClient) Input(ctx context.Context, id, text string) error {
	_, err := sc.c.postJSON(ctx, "/api/v1/sessions/"+url.PathEscape(id)+"/input",
		map[string]string{"text": text})
	return err
}

// Interrupt sends Ctrl-C / SIGINT to the session.
func (sc *SessionClient) Interrupt(ctx context.Context, id string) error {
	_, err := sc.c.post(ctx, "/api/v1/sessions/"+url.PathEscape(id)+"/interrupt")
	return err
}

// Kill sends SIGKILL to the session.
func (sc *SessionClient) Kill(ctx context.Context, id string) error {
	_, err := sc.c.post(ctx, "/api/v1/sessions/"+url.PathEscape(id)+"/kill")
	return err
}

// Resize changes the PTY geometry.
func (sc *SessionClient) Resize(ctx context.Context, id string, cols, rows int) error {
	_, err := sc.c.postJSON(ctx, "/api/v1/sessions/"+url.PathEscape(id)+"/resize",
		map[string]int{"cols": cols, "rows": rows})
	return err
}

// Output returns the transcript tail as text. maxBytes <= 0 uses the server
// default.
func (sc *SessionClient) Output(ctx context.Context, id string, maxBytes int) (string, error) {
	path := "/api/v1/sessions/" + url.PathEscape(id) + "/output"
	if maxBytes > 0 {
		path += "?maxBytes=" + strconv.Itoa(maxBytes)
	}
	data, err := sc.c.get(ctx, path)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse output: %w", err)
	}
	return out.Text, nil
}

// Events returns persisted event rows for the session, after the given row
// id. limit <= 0 uses the server default.
func (sc *SessionClient) Events(ctx context.Context, id string, after int64, limit int) ([]*SessionEvent, error) {
	query := url.Values{}
	if after > 0 {
		query.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/sessions/" + url.PathEscape(id) + "/events"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	data, err := sc.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var out struct {
		Events []*SessionEvent `json:"events"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}
	return out.Events, nil
}

// Pin claims a pinned slot (1-6) for the session; slot 0 unpins.
func (sc *SessionClient) Pin(ctx context.Context, id string, slot int) (*Session, error) {
	data, err := sc.c.postJSON(ctx, "/api/v1/sessions/"+url.PathEscape(id)+"/pin",
		map[string]int{"slot": slot})
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &s, nil
}
