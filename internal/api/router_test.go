// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/fyp/internal/attention"
	"github.com/wingedpig/fyp/internal/auth"
	"github.com/wingedpig/fyp/internal/command"
	"github.com/wingedpig/fyp/internal/config"
	"github.com/wingedpig/fyp/internal/digest"
	"github.com/wingedpig/fyp/internal/directive"
	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
	"github.com/wingedpig/fyp/internal/worktree"
)

// fakeSup is an in-memory session.Supervisor. It records writes, resizes
// and signals, and lets tests push output through registered listeners the
// way a real PTY would.
type fakeSup struct {
	mu         sync.Mutex
	sessions   map[string]*session.Session
	running    map[string]bool
	writes     map[string][]string
	resizes    map[string][][2]int
	interrupts map[string]int
	kills      map[string]int
	outputFns  map[string][]session.OutputFn
	exitFns    map[string][]session.ExitFn
}

func newFakeSup() *fakeSup {
	return &fakeSup{
		sessions:   map[string]*session.Session{},
		running:    map[string]bool{},
		writes:     map[string][]string{},
		resizes:    map[string][][2]int{},
		interrupts: map[string]int{},
		kills:      map[string]int{},
		outputFns:  map[string][]session.OutputFn{},
		exitFns:    map[string][]session.ExitFn{},
	}
}

func (f *fakeSup) Create(opts session.CreateOptions) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[opts.ID]; ok {
		return nil, session.ErrAlreadyExists
	}
	s := &session.Session{ID: opts.ID, Tool: opts.Tool, Cwd: opts.Cwd, SpawnedAt: time.Now()}
	f.sessions[opts.ID] = s
	f.running[opts.ID] = true
	return s, nil
}

// add registers a session without going through Create, for tests that
// reference sessions the engine never spawned.
func (f *fakeSup) add(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = &session.Session{ID: id, Tool: session.ToolCodex, SpawnedAt: time.Now()}
	f.running[id] = true
}

func (f *fakeSup) Get(id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrUnknownSession
	}
	return s, nil
}

func (f *fakeSup) Status(id string) (session.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return session.Status{}, session.ErrUnknownSession
	}
	if f.running[id] {
		return session.Status{Running: true, PID: 4242}, nil
	}
	code := 0
	return session.Status{Running: false, ExitCode: &code}, nil
}

func (f *fakeSup) List() []*session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*session.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

func (f *fakeSup) Write(id, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return session.ErrUnknownSession
	}
	f.writes[id] = append(f.writes[id], data)
	return nil
}

func (f *fakeSup) Resize(id string, cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return session.ErrUnknownSession
	}
	f.resizes[id] = append(f.resizes[id], [2]int{cols, rows})
	return nil
}

func (f *fakeSup) Interrupt(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return session.ErrUnknownSession
	}
	f.interrupts[id]++
	return nil
}

func (f *fakeSup) Stop(id string) error { return f.Interrupt(id) }

func (f *fakeSup) Kill(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return session.ErrUnknownSession
	}
	f.kills[id]++
	f.running[id] = false
	return nil
}

func (f *fakeSup) Forget(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return session.ErrUnknownSession
	}
	delete(f.sessions, id)
	delete(f.running, id)
	delete(f.outputFns, id)
	delete(f.exitFns, id)
	return nil
}

func (f *fakeSup) OnOutput(id string, fn session.OutputFn) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return nil, session.ErrUnknownSession
	}
	f.outputFns[id] = append(f.outputFns[id], fn)
	return func() {}, nil
}

func (f *fakeSup) OnExit(id string, fn session.ExitFn) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return nil, session.ErrUnknownSession
	}
	f.exitFns[id] = append(f.exitFns[id], fn)
	return func() {}, nil
}

func (f *fakeSup) Dispose() {}

// emitOutput feeds bytes through the session's output listeners.
func (f *fakeSup) emitOutput(id string, chunk []byte) {
	f.mu.Lock()
	fns := append([]session.OutputFn(nil), f.outputFns[id]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(chunk)
	}
}

func (f *fakeSup) recordedWrites(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes[id]...)
}

// fakeGit satisfies worktree.Executor without touching a real repository.
type fakeGit struct{}

func (g *fakeGit) Resolve(ctx context.Context, dir string) (worktree.Workspace, error) {
	return worktree.Workspace{Root: dir, GitDir: dir + "/.git", Key: dir + "/.git"}, nil
}
func (g *fakeGit) Add(ctx context.Context, repoDir, path, branch string, lock bool) error {
	return nil
}
func (g *fakeGit) Unlock(ctx context.Context, repoDir, path string) error       { return nil }
func (g *fakeGit) Remove(ctx context.Context, repoDir, path string, force bool) error { return nil }
func (g *fakeGit) List(ctx context.Context, repoDir string) ([]worktree.Info, error) {
	return nil, nil
}
func (g *fakeGit) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return "main", nil
}

type apiFixture struct {
	st    *store.Store
	sup   *fakeSup
	bus   events.EventBus
	eng   *orchestrate.Engine
	inbox *attention.Router
	srv   *httptest.Server
	token string
}

func newAPIFixture(t *testing.T, token string) *apiFixture {
	t.Helper()

	st, err := store.OpenPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewMemoryEventBus(events.MemoryBusConfig{HistoryMaxEvents: 1000})
	sup := newFakeSup()
	eng := orchestrate.NewEngine(orchestrate.EngineConfig{
		Store:  st,
		Sup:    sup,
		Git:    &fakeGit{},
		Bus:    bus,
		Parser: directive.NewParser(2 * time.Second),
		Config: &config.Config{},
	})
	require.NoError(t, eng.Restore())

	sched := digest.NewScheduler(st, sup, eng, bus, false)
	inbox := attention.NewRouter(st, sup, bus, eng, false)
	gate, err := command.NewGate(st, eng, sched, false)
	require.NoError(t, err)
	a := auth.New(token, time.Minute, 3)

	router, _ := NewRouter(Dependencies{
		Store:      st,
		Supervisor: sup,
		Engine:     eng,
		Scheduler:  sched,
		Inbox:      inbox,
		Gate:       gate,
		Auth:       a,
		EventBus:   bus,
		Version:    "test",
	}, false)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &apiFixture{st: st, sup: sup, bus: bus, eng: eng, inbox: inbox, srv: srv, token: token}
}

// do issues a request against the test server and decodes the envelope.
func (f *apiFixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+"/api/v1"+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

func data(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()
	d, ok := envelope["data"].(map[string]any)
	require.True(t, ok, "envelope has no data object: %v", envelope)
	return d
}

func errCode(t *testing.T, envelope map[string]any) string {
	t.Helper()
	e, ok := envelope["error"].(map[string]any)
	require.True(t, ok, "envelope has no error object: %v", envelope)
	code, _ := e["code"].(string)
	return code
}

func TestRouter_AuthRequired(t *testing.T) {
	fix := newAPIFixture(t, "secret-token")

	// No credentials.
	resp, err := http.Get(fix.srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "unauthorized", errCode(t, envelope))

	// Wrong token.
	req, _ := http.NewRequest("GET", fix.srv.URL+"/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	// Correct token.
	status, envelope := fix.do(t, "GET", "/status", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "test", data(t, envelope)["version"])
}

func TestRouter_PairFlow(t *testing.T) {
	fix := newAPIFixture(t, "secret-token")

	// Minting a code requires the token.
	status, envelope := fix.do(t, "POST", "/pair/new", nil)
	require.Equal(t, http.StatusOK, status)
	code, _ := data(t, envelope)["code"].(string)
	require.NotEmpty(t, code)

	// Redeeming does not: that is the whole point of pairing.
	body, _ := json.Marshal(map[string]string{"code": code})
	resp, err := http.Post(fix.srv.URL+"/api/v1/pair", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var redeemed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&redeemed))
	assert.Equal(t, "secret-token", data(t, redeemed)["token"])

	// Codes are single-use.
	resp2, err := http.Post(fix.srv.URL+"/api/v1/pair", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	fix := newAPIFixture(t, "")
	cwd := t.TempDir()

	// Create.
	status, envelope := fix.do(t, "POST", "/sessions", map[string]any{
		"tool": "codex", "cwd": cwd, "label": "main",
	})
	require.Equal(t, http.StatusCreated, status)
	created := data(t, envelope)
	sid, _ := created["id"].(string)
	require.NotEmpty(t, sid)
	assert.Equal(t, "codex", created["tool"])
	liveStatus, _ := created["status"].(map[string]any)
	require.NotNil(t, liveStatus)
	assert.Equal(t, true, liveStatus["running"])

	// List.
	status, envelope = fix.do(t, "GET", "/sessions", nil)
	require.Equal(t, http.StatusOK, status)
	sessions, _ := data(t, envelope)["sessions"].([]any)
	assert.Len(t, sessions, 1)

	// Input reaches the PTY and is recorded as an event.
	status, _ = fix.do(t, "POST", "/sessions/"+sid+"/input", map[string]string{"text": "run the tests\r"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"run the tests\r"}, fix.sup.recordedWrites(sid))

	status, envelope = fix.do(t, "POST", "/sessions/"+sid+"/input", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))

	// Resize.
	status, _ = fix.do(t, "POST", "/sessions/"+sid+"/resize", map[string]int{"cols": 120, "rows": 40})
	require.Equal(t, http.StatusOK, status)
	status, envelope = fix.do(t, "POST", "/sessions/"+sid+"/resize", map[string]int{"cols": 0, "rows": 40})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))

	// Output persisted through the supervisor listener shows up in the
	// transcript endpoint.
	fix.sup.emitOutput(sid, []byte("compiled ok\r\n"))
	status, envelope = fix.do(t, "GET", "/sessions/"+sid+"/output", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, data(t, envelope)["text"], "compiled ok")

	// Interrupt.
	status, _ = fix.do(t, "POST", "/sessions/"+sid+"/interrupt", nil)
	require.Equal(t, http.StatusOK, status)

	// Pin.
	status, envelope = fix.do(t, "POST", "/sessions/"+sid+"/pin", map[string]int{"slot": 2})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), data(t, envelope)["pinnedSlot"])

	// Persisted event trail.
	status, envelope = fix.do(t, "GET", "/sessions/"+sid+"/events", nil)
	require.Equal(t, http.StatusOK, status)
	rows, _ := data(t, envelope)["events"].([]any)
	kinds := map[string]bool{}
	for _, raw := range rows {
		row, _ := raw.(map[string]any)
		kind, _ := row["kind"].(string)
		kinds[kind] = true
	}
	assert.True(t, kinds[events.KindSessionCreated], "missing session created event, got %v", kinds)
	assert.True(t, kinds[events.KindInput], "missing input event, got %v", kinds)

	// Deleting a running session is refused without force.
	status, envelope = fix.do(t, "DELETE", "/sessions/"+sid, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "session_running", errCode(t, envelope))

	status, _ = fix.do(t, "DELETE", "/sessions/"+sid+"?force=1", nil)
	require.Equal(t, http.StatusOK, status)

	status, envelope = fix.do(t, "GET", "/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errCode(t, envelope))
}

func TestRouter_SessionCreateValidation(t *testing.T) {
	fix := newAPIFixture(t, "")

	status, envelope := fix.do(t, "POST", "/sessions", map[string]any{"tool": "codex"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))

	status, envelope = fix.do(t, "POST", "/sessions", map[string]any{"tool": "vim", "cwd": t.TempDir()})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))
}

func TestRouter_Inbox(t *testing.T) {
	fix := newAPIFixture(t, "")
	fix.sup.add("sess-1")

	create := map[string]any{
		"sessionId": "sess-1",
		"kind":      "question",
		"title":     "Deploy to staging?",
		"options": []map[string]string{
			{"id": "yes", "label": "Yes", "send": "yes\r"},
			{"id": "no", "label": "No", "send": "no\r"},
		},
	}

	status, envelope := fix.do(t, "POST", "/inbox", create)
	require.Equal(t, http.StatusCreated, status)
	res := data(t, envelope)
	assert.Equal(t, true, res["ok"])
	id := int64(res["id"].(float64))
	require.NotZero(t, id)

	// Same signature coalesces instead of duplicating.
	status, envelope = fix.do(t, "POST", "/inbox", create)
	require.Equal(t, http.StatusOK, status)
	dup := data(t, envelope)
	assert.Equal(t, false, dup["ok"])
	assert.Equal(t, "duplicate", dup["reason"])

	status, envelope = fix.do(t, "GET", "/inbox", nil)
	require.Equal(t, http.StatusOK, status)
	items, _ := data(t, envelope)["items"].([]any)
	assert.Len(t, items, 1)
	require.Contains(t, data(t, envelope), "counts")

	// Unknown option is rejected without closing the item.
	status, envelope = fix.do(t, "POST", fmt.Sprintf("/inbox/%d/respond", id), map[string]string{"optionId": "maybe"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))

	// Responding sends the option text to the session.
	status, envelope = fix.do(t, "POST", fmt.Sprintf("/inbox/%d/respond", id), map[string]string{"optionId": "yes"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "resolved", data(t, envelope)["status"])
	assert.Equal(t, []string{"yes\r"}, fix.sup.recordedWrites("sess-1"))

	// Second response hits a closed item.
	status, envelope = fix.do(t, "POST", fmt.Sprintf("/inbox/%d/respond", id), map[string]string{"optionId": "no"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_closed", errCode(t, envelope))

	// Dismiss path on a fresh item.
	status, envelope = fix.do(t, "POST", "/inbox", map[string]any{
		"sessionId": "sess-1", "kind": "error", "title": "tests failing",
	})
	require.Equal(t, http.StatusCreated, status)
	id2 := int64(data(t, envelope)["id"].(float64))
	status, envelope = fix.do(t, "POST", fmt.Sprintf("/inbox/%d/dismiss", id2), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dismissed", data(t, envelope)["status"])

	// Bad ids.
	status, _ = fix.do(t, "POST", "/inbox/999999/respond", map[string]string{"optionId": "yes"})
	assert.Equal(t, http.StatusNotFound, status)
	status, envelope = fix.do(t, "POST", "/inbox/abc/respond", map[string]string{"optionId": "yes"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))
}

func TestRouter_CommandCatalog(t *testing.T) {
	fix := newAPIFixture(t, "")

	status, envelope := fix.do(t, "GET", "/commands", nil)
	require.Equal(t, http.StatusOK, status)
	cmds, _ := data(t, envelope)["commands"].([]any)
	assert.GreaterOrEqual(t, len(cmds), 40)

	for _, raw := range cmds {
		entry, _ := raw.(map[string]any)
		assert.NotEmpty(t, entry["id"])
		assert.NotEmpty(t, entry["mode"])
		assert.Contains(t, []any{"low", "medium", "high"}, entry["tier"])
	}
}

func TestRouter_CommandExecuteErrors(t *testing.T) {
	fix := newAPIFixture(t, "")

	status, envelope := fix.do(t, "POST", "/commands/execute", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))

	status, envelope = fix.do(t, "POST", "/commands/execute", map[string]any{"command": "no-such-command"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_command", errCode(t, envelope))

	// Schema envelope rejects unknown payload keys.
	status, envelope = fix.do(t, "POST", "/commands/execute", map[string]any{
		"command":         "diag-evidence",
		"orchestrationId": "orch-x",
		"payload":         map[string]any{"target": "builder", "task": "check it", "bogus": true},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "command_invalid_payload", errCode(t, envelope))

	// High tier without the acknowledgment set is blocked by policy.
	status, envelope = fix.do(t, "POST", "/commands/execute", map[string]any{
		"command":         "security-vuln-repro",
		"orchestrationId": "orch-x",
		"payload":         map[string]any{"target": "builder", "task": "probe the auth bypass"},
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "command_policy_blocked", errCode(t, envelope))
	errObj, _ := envelope["error"].(map[string]any)
	details, _ := errObj["details"].(map[string]any)
	require.NotNil(t, details)
	assert.Equal(t, "high", details["tier"])
}

func TestRouter_EventsHistory(t *testing.T) {
	fix := newAPIFixture(t, "")
	ctx := context.Background()

	require.NoError(t, fix.bus.Publish(ctx, events.Event{Kind: events.KindInput, SessionID: "a"}))
	require.NoError(t, fix.bus.Publish(ctx, events.Event{Kind: events.KindKill, SessionID: "a"}))
	require.NoError(t, fix.bus.Publish(ctx, events.Event{Kind: events.KindInput, SessionID: "b"}))

	status, envelope := fix.do(t, "GET", "/events?sessionId=a", nil)
	require.Equal(t, http.StatusOK, status)
	evs, _ := data(t, envelope)["events"].([]any)
	assert.Len(t, evs, 2)

	status, envelope = fix.do(t, "GET", "/events?kind="+events.KindInput, nil)
	require.Equal(t, http.StatusOK, status)
	evs, _ = data(t, envelope)["events"].([]any)
	assert.Len(t, evs, 2)
}

func TestRouter_Presets(t *testing.T) {
	fix := newAPIFixture(t, "")

	status, envelope := fix.do(t, "PUT", "/presets", map[string]any{
		"path": "/home/dev/proj", "tool": "claude", "profileId": "claude-deep",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "claude-deep", data(t, envelope)["profileId"])

	status, envelope = fix.do(t, "GET", "/presets?path=/home/dev/proj&tool=claude", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "claude", data(t, envelope)["tool"])

	status, envelope = fix.do(t, "GET", "/presets?path=/home/dev/proj", nil)
	require.Equal(t, http.StatusOK, status)
	presets, _ := data(t, envelope)["presets"].([]any)
	assert.Len(t, presets, 1)

	status, _ = fix.do(t, "GET", "/presets?path=/home/dev/proj&tool=codex", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, envelope = fix.do(t, "GET", "/presets", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))

	status, envelope = fix.do(t, "PUT", "/presets", map[string]any{"path": "/x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_input", errCode(t, envelope))
}

func TestRouter_Status(t *testing.T) {
	fix := newAPIFixture(t, "")

	status, envelope := fix.do(t, "GET", "/status", nil)
	require.Equal(t, http.StatusOK, status)
	d := data(t, envelope)
	assert.Equal(t, "test", d["version"])
	assert.NotZero(t, d["pid"])
	require.Contains(t, d, "sessions")
	require.Contains(t, d, "orchestrations")
	require.Contains(t, d, "inbox")
}

func TestRouter_OrchestrationNotFound(t *testing.T) {
	fix := newAPIFixture(t, "")

	status, envelope := fix.do(t, "GET", "/orchestrations/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errCode(t, envelope))

	status, envelope = fix.do(t, "GET", "/orchestrations", nil)
	require.Equal(t, http.StatusOK, status)
	orchs, _ := data(t, envelope)["orchestrations"].([]any)
	assert.Empty(t, orchs)
}
