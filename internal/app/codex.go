// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"

	"github.com/wingedpig/fyp/internal/attention"
	"github.com/wingedpig/fyp/internal/config"
	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/jsonrpc"
	"github.com/wingedpig/fyp/internal/store"
)

// codexBridge runs one `codex app-server` subprocess and reflects its
// server-to-client traffic onto the event bus. Approval requests surface as
// attention items through the router's native watch; the decision travels
// back over JSON-RPC when the item is resolved or dismissed.
type codexBridge struct {
	client *jsonrpc.Client
	bus    events.EventBus
	inbox  *attention.Router
	st     *store.Store
	cmd    string

	mu      sync.Mutex
	pending map[string]int64 // attention signature -> rpc request id
	unsubs  []func()
}

func newCodexBridge(tc config.ToolConfig, version string, bus events.EventBus, inbox *attention.Router, st *store.Store) *codexBridge {
	b := &codexBridge{
		bus:     bus,
		inbox:   inbox,
		st:      st,
		cmd:     tc.Command,
		pending: map[string]int64{},
	}
	b.client = jsonrpc.NewClient(jsonrpc.Config{
		Name:          "codex-app-server",
		Command:       tc.Command,
		Args:          append(append([]string{}, tc.Args...), "app-server"),
		Env:           tc.Env,
		ClientName:    "fyp",
		ClientVersion: version,
	}, jsonrpc.Handlers{
		OnRequest: b.onRequest,
		OnNotify:  b.onNotify,
		OnState:   b.onState,
	})
	return b
}

// start wires the bus subscriptions and spawns the app-server. A missing
// codex binary disables the bridge instead of failing startup.
func (b *codexBridge) start(ctx context.Context) error {
	if _, err := exec.LookPath(b.cmd); err != nil {
		log.Printf("app: %s not found, codex app-server bridge disabled", b.cmd)
		return nil
	}

	for _, kind := range []string{events.KindInboxRespond, events.KindInboxDismiss} {
		id, err := b.bus.Subscribe(kind, b.onInboxClosed)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
		unsubID := id
		b.unsubs = append(b.unsubs, func() { b.bus.Unsubscribe(unsubID) })
	}

	go func() {
		if err := b.client.EnsureStarted(context.Background()); err != nil {
			log.Printf("app: codex app-server: %v", err)
		}
	}()
	return nil
}

func (b *codexBridge) stop() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	b.client.Stop()
}

// approvalMethod reports whether a server request needs a human decision.
func approvalMethod(method string) bool {
	switch method {
	case "execCommandApproval", "applyPatchApproval":
		return true
	}
	return strings.HasSuffix(method, "Approval")
}

func (b *codexBridge) onRequest(req jsonrpc.ServerRequest) {
	var params map[string]any
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}

	b.publish(events.Event{
		Kind: events.KindAppServerRequest,
		Data: map[string]any{"method": req.Method, "rpcId": req.ID},
	})

	if !approvalMethod(req.Method) {
		// Not ours to answer; the server will time out on its own terms.
		if err := b.client.RespondError(req.ID, -32601, "unhandled request "+req.Method); err != nil {
			log.Printf("app: codex app-server: reject %s: %v", req.Method, err)
		}
		return
	}

	convID, _ := params["conversationId"].(string)
	sessionID := b.sessionFor(convID)
	if sessionID == "" {
		log.Printf("app: codex app-server: %s for unknown conversation %q", req.Method, convID)
		if err := b.client.RespondError(req.ID, -32600, "no linked session"); err != nil {
			log.Printf("app: codex app-server: reject %s: %v", req.Method, err)
		}
		return
	}

	sig := fmt.Sprintf("appserver|%s|%d", req.Method, req.ID)
	b.mu.Lock()
	b.pending[sig] = req.ID
	b.mu.Unlock()

	title := "Codex requests approval: " + req.Method
	if cmd, ok := params["command"].(string); ok && cmd != "" {
		title = "Codex wants to run: " + cmd
	}
	body, _ := params["reason"].(string)

	b.publish(events.Event{
		Kind:      events.PrefixCodexNativeApproval + req.Method,
		SessionID: sessionID,
		Data: map[string]any{
			"title":     title,
			"body":      body,
			"signature": sig,
		},
	})
}

func (b *codexBridge) onNotify(method string, params json.RawMessage) {
	data := map[string]any{"method": method}
	var parsed map[string]any
	if len(params) > 0 && json.Unmarshal(params, &parsed) == nil {
		data["params"] = parsed
	}
	b.publish(events.Event{Kind: events.KindAppServerNotify, Data: data})
}

func (b *codexBridge) onState(state string) {
	b.publish(events.Event{Kind: events.KindAppServerState, Data: map[string]any{"state": state}})
}

// onInboxClosed answers the pending RPC when its attention item closes.
// Items the bridge did not create fall through on the signature check.
func (b *codexBridge) onInboxClosed(ctx context.Context, ev events.Event) error {
	id, ok := attentionID(ev.Data["attentionId"])
	if !ok {
		return nil
	}
	item, err := b.inbox.Get(id)
	if err != nil {
		return nil
	}

	b.mu.Lock()
	rpcID, ok := b.pending[item.Signature]
	if ok {
		delete(b.pending, item.Signature)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}

	decision := "denied"
	if ev.Kind == events.KindInboxRespond {
		if optID, _ := ev.Data["optionId"].(string); optID == "y" {
			decision = "approved"
		}
	}
	if err := b.client.Respond(rpcID, map[string]string{"decision": decision}); err != nil {
		log.Printf("app: codex app-server: answer %d: %v", rpcID, err)
	}
	return nil
}

// sessionFor maps a codex conversation id to the supervised session linked
// to it.
func (b *codexBridge) sessionFor(convID string) string {
	if convID == "" {
		return ""
	}
	rows, err := b.st.ListSessions()
	if err != nil {
		return ""
	}
	for _, row := range rows {
		if row.ToolSessionID == convID {
			return row.ID
		}
	}
	return ""
}

func (b *codexBridge) publish(ev events.Event) {
	if err := b.bus.Publish(context.Background(), ev); err != nil {
		log.Printf("app: publish %s: %v", ev.Kind, err)
	}
}

func attentionID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
