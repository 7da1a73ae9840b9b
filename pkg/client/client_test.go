// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelope wraps data the way the server does.
func envelope(data interface{}) string {
	raw, _ := json.Marshal(map[string]interface{}{"data": data})
	return string(raw)
}

func errEnvelope(code, message string) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"data": nil,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
	return string(raw)
}

func TestClient_TokenHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, envelope(map[string]interface{}{"version": "0.9"}))
	}))
	defer server.Close()

	c := New(server.URL, WithToken("secret-token"))
	_, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestClient_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:4112/")
	assert.Equal(t, "http://localhost:4112", c.BaseURL())
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, errEnvelope("unknown_session", "no session with id x"))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Sessions.Get(context.Background(), "x")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.Equal(t, "unknown_session", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "unknown_session")
}

func TestClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		fmt.Fprint(w, envelope(map[string]interface{}{
			"version":          "0.9",
			"pid":              4242,
			"uptimeMs":         1500,
			"sessions":         map[string]int{"total": 3, "running": 2},
			"orchestrations":   map[string]int{"active": 1},
			"inbox":            map[string]int{"sess-1": 2},
			"pendingQuestions": 1,
		}))
	}))
	defer server.Close()

	st, err := New(server.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.9", st.Version)
	assert.Equal(t, 4242, st.PID)
	assert.Equal(t, 3, st.Sessions.Total)
	assert.Equal(t, 2, st.Sessions.Running)
	assert.Equal(t, 1, st.Orchestrations.Active)
	assert.Equal(t, 2, st.Inbox["sess-1"])
	assert.Equal(t, 1, st.PendingQuestions)
}

func TestClient_PairFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/pair/new":
			fmt.Fprint(w, envelope(map[string]string{"code": "123456"}))
		case "/api/v1/pair":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "123456", body["code"])
			fmt.Fprint(w, envelope(map[string]string{"token": "the-token"}))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := New(server.URL, WithToken("admin"))
	code, err := c.NewPairingCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	token, err := New(server.URL).Pair(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "the-token", token)
}

func TestSessionClient_ListAndCreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/sessions":
			fmt.Fprint(w, envelope(map[string]interface{}{
				"sessions": []map[string]interface{}{
					{"id": "s-1", "tool": "codex", "cwd": "/work", "status": map[string]interface{}{"running": true, "pid": 100}},
					{"id": "s-2", "tool": "claude", "cwd": "/work", "status": map[string]interface{}{"running": false}},
				},
			}))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions":
			var req CreateSessionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "/work", req.Cwd)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, envelope(map[string]interface{}{
				"id": "s-3", "tool": req.Tool, "cwd": req.Cwd,
				"status": map[string]interface{}{"running": true, "pid": 101},
			}))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := New(server.URL)
	sessions, err := c.Sessions.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].Status.Running)
	assert.False(t, sessions[1].Status.Running)

	created, err := c.Sessions.Create(context.Background(), &CreateSessionRequest{Tool: "codex", Cwd: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "s-3", created.ID)
	assert.Equal(t, 101, created.Status.PID)
}

func TestSessionClient_ControlPaths(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.RequestURI())
		fmt.Fprint(w, envelope(map[string]bool{"ok": true}))
	}))
	defer server.Close()

	c := New(server.URL)
	ctx := context.Background()
	require.NoError(t, c.Sessions.Input(ctx, "s-1", "hello\r"))
	require.NoError(t, c.Sessions.Interrupt(ctx, "s-1"))
	require.NoError(t, c.Sessions.Kill(ctx, "s-1"))
	require.NoError(t, c.Sessions.Resize(ctx, "s-1", 120, 40))
	require.NoError(t, c.Sessions.Delete(ctx, "s-1", true))

	assert.Equal(t, []string{
		"POST /api/v1/sessions/s-1/input",
		"POST /api/v1/sessions/s-1/interrupt",
		"POST /api/v1/sessions/s-1/kill",
		"POST /api/v1/sessions/s-1/resize",
		"DELETE /api/v1/sessions/s-1?force=1",
	}, paths)
}

func TestInboxClient_RespondAndList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/inbox":
			assert.Equal(t, "open", r.URL.Query().Get("status"))
			fmt.Fprint(w, envelope(map[string]interface{}{
				"items": []map[string]interface{}{
					{"id": 7, "sessionId": "s-1", "status": "open", "title": "Approve?",
						"options": []map[string]string{{"id": "y", "label": "Yes", "send": "y\r"}}},
				},
				"counts": map[string]int{"s-1": 1},
			}))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/inbox/7/respond":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "y", body["optionId"])
			fmt.Fprint(w, envelope(map[string]interface{}{"id": 7, "status": "resolved"}))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := New(server.URL)
	page, err := c.Inbox.List(context.Background(), &InboxFilter{Status: "open"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(7), page.Items[0].ID)
	assert.Equal(t, 1, page.Counts["s-1"])

	item, err := c.Inbox.Respond(context.Background(), 7, "y")
	require.NoError(t, err)
	assert.Equal(t, "resolved", item.Status)
}

func TestCommandClient_ExecuteIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/commands/execute", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		var req ExecuteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "diag-evidence", req.Command)
		fmt.Fprint(w, envelope(map[string]interface{}{
			"ok": true, "command": req.Command, "mode": "worker.dispatch",
			"policy": map[string]string{"tier": "low"},
		}))
	}))
	defer server.Close()

	res, err := New(server.URL).Commands.Execute(context.Background(), &ExecuteRequest{
		Command:         "diag-evidence",
		OrchestrationID: "orch-1",
		Payload:         map[string]interface{}{"target": "alpha"},
		IdempotencyKey:  "key-1",
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "low", res.Policy.Tier)
}

func TestEventClient_HistoryQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "s-1", query.Get("sessionId"))
		assert.Equal(t, []string{"input", "session.*"}, query["kind"])
		assert.Equal(t, "5", query.Get("limit"))
		fmt.Fprint(w, envelope(map[string]interface{}{
			"events": []map[string]interface{}{
				{"id": "ev-1", "kind": "input", "sessionId": "s-1", "timestamp": time.Now().Format(time.RFC3339)},
			},
		}))
	}))
	defer server.Close()

	eventList, err := New(server.URL).Events.History(context.Background(), &EventFilter{
		SessionID: "s-1",
		Kinds:     []string{"input", "session.*"},
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, eventList, 1)
	assert.Equal(t, "input", eventList[0].Kind)
}

func TestPresetClient_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			var p WorkspacePreset
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			p.UpdatedAt = time.Now()
			raw, _ := json.Marshal(p)
			fmt.Fprintf(w, `{"data":%s}`, raw)
		case http.MethodGet:
			assert.Equal(t, "/work", r.URL.Query().Get("path"))
			assert.Equal(t, "codex", r.URL.Query().Get("tool"))
			fmt.Fprint(w, envelope(map[string]string{"path": "/work", "tool": "codex"}))
		}
	}))
	defer server.Close()

	c := New(server.URL)
	saved, err := c.Presets.Put(context.Background(), &WorkspacePreset{Path: "/work", Tool: "codex"})
	require.NoError(t, err)
	assert.Equal(t, "/work", saved.Path)

	got, err := c.Presets.Get(context.Background(), "/work", "codex")
	require.NoError(t, err)
	assert.Equal(t, "codex", got.Tool)
}

func TestParseResponse_NonEnvelopeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream exploded")
	}))
	defer server.Close()

	_, err := New(server.URL).Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
