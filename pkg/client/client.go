// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the fyp API.
//
// fyp supervises coding-assistant CLI sessions and orchestrates multi-agent
// runs. This client gives typed access to the HTTP API: sessions, the
// attention inbox, orchestrations, the command gate, events, and presets.
//
// # Getting Started
//
// Create a client pointing at your fyp daemon:
//
//	c := client.New("http://localhost:4112", client.WithToken(token))
//
// Resources hang off sub-clients:
//
//	sessions, err := c.Sessions.List(ctx)
//	items, err := c.Inbox.List(ctx, nil)
//	res, err := c.Commands.Execute(ctx, &client.ExecuteRequest{Command: "diag-evidence", ...})
//
// # Authentication
//
// When the server is configured with a token, every request must carry it.
// Use [Client.Pair] once with a pairing code (minted on the daemon host) to
// obtain the token, then persist it and pass [WithToken].
//
// # Error Handling
//
// API errors come back as *APIError with the server's stable reason code:
//
//	if apiErr, ok := err.(*client.APIError); ok && apiErr.Code == "unknown_session" { ... }
//
// All methods accept a context.Context for cancellation and timeouts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a fyp API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// Sessions manages supervised PTY sessions.
	Sessions *SessionClient

	// Orchestrations manages multi-agent orchestration runs.
	Orchestrations *OrchestrationClient

	// Inbox is the attention inbox: questions, approvals, errors.
	Inbox *InboxClient

	// Commands executes catalog commands through the gate.
	Commands *CommandClient

	// Events reads event history and subscribes to the live stream.
	Events *EventClient

	// Presets remembers per-workspace tool settings.
	Presets *PresetClient
}

// Option configures a [Client].
type Option func(*Client)

// New creates a client for the daemon at baseURL (e.g. "http://localhost:4112").
// A trailing slash is removed. The default HTTP timeout is 30 seconds.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Sessions = &SessionClient{c: c}
	c.Orchestrations = &OrchestrationClient{c: c}
	c.Inbox = &InboxClient{c: c}
	c.Commands = &CommandClient{c: c}
	c.Events = &EventClient{c: c}
	c.Presets = &PresetClient{c: c}
	return c
}

// WithToken sets the API token sent as "Authorization: Bearer <token>".
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client (TLS settings, proxies, tracing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP timeout. The default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status returns the daemon's status summary.
func (c *Client) Status(ctx context.Context) (*ServerStatus, error) {
	data, err := c.get(ctx, "/api/v1/status")
	if err != nil {
		return nil, err
	}
	var st ServerStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	return &st, nil
}

// Pair redeems a one-shot pairing code for the API token. The returned token
// should be persisted and passed to [WithToken] on subsequent runs.
func (c *Client) Pair(ctx context.Context, code string) (string, error) {
	data, err := c.postJSON(ctx, "/api/v1/pair", map[string]string{"code": code})
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse pair response: %w", err)
	}
	return out.Token, nil
}

// NewPairingCode mints a pairing code. Requires the token (meant to be run
// on the daemon host).
func (c *Client) NewPairingCode(ctx context.Context) (string, error) {
	data, err := c.post(ctx, "/api/v1/pair/new")
	if err != nil {
		return "", err
	}
	var out struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse pairing code: %w", err)
	}
	return out.Code, nil
}

// apiResponse is the standard API response envelope.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// APIError is an error response from the fyp API. Code is one of the
// server's stable reason codes ("not_found", "unknown_session",
// "orchestration_locked", "command_policy_blocked", ...).
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

func (c *Client) post(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) putJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.sendJSON(ctx, http.MethodPut, path, body, nil)
}

func (c *Client) patchJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, body, nil)
}

func (c *Client) delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body interface{}, headers http.Header) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(data), headers)
}

// do performs an HTTP request and parses the response envelope.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers http.Header) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, vals := range headers {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	}

	if apiResp.Error != nil {
		return nil, apiResp.Error
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return apiResp.Data, nil
}
