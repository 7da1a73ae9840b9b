// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package attention

import (
	"context"
	"fmt"
	"log"

	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/store"
)

// Native event kinds that become inbox items. Claude permission prompts and
// Codex approval requests both reduce to a yes/no decision at the PTY.
var nativeKinds = []string{
	events.KindClaudePermission,
	events.KindCodexApproval,
	"codex.native.approval.*",
}

// WatchNative subscribes the router to native permission/approval events on
// the bus, so tool prompts surface as inbox items without the tool knowing
// about the inbox. Returns an unsubscribe func.
func (r *Router) WatchNative(bus events.EventBus) (func(), error) {
	subs := make([]events.SubscriptionID, 0, len(nativeKinds))
	for _, pattern := range nativeKinds {
		id, err := bus.Subscribe(pattern, r.onNativeEvent)
		if err != nil {
			for _, s := range subs {
				bus.Unsubscribe(s)
			}
			return nil, fmt.Errorf("subscribe %s: %w", pattern, err)
		}
		subs = append(subs, id)
	}
	return func() {
		for _, s := range subs {
			if err := bus.Unsubscribe(s); err != nil {
				log.Printf("attention: unsubscribe native: %v", err)
			}
		}
	}, nil
}

func (r *Router) onNativeEvent(ctx context.Context, ev events.Event) error {
	if ev.SessionID == "" {
		return nil
	}
	title, _ := ev.Data["title"].(string)
	if title == "" {
		title, _ = ev.Data["prompt"].(string)
	}
	if title == "" {
		title = "Tool is waiting for approval"
	}
	body, _ := ev.Data["body"].(string)

	in := CreateInput{
		SessionID: ev.SessionID,
		Kind:      kindFor(ev.Kind),
		Severity:  SeverityWarn,
		Title:     title,
		Body:      body,
		Options:   optionsFrom(ev.Data),
	}
	if sig, ok := ev.Data["signature"].(string); ok && sig != "" {
		in.Signature = sig
	}
	if _, err := r.Create(in); err != nil {
		log.Printf("attention: native %s for %s: %v", ev.Kind, ev.SessionID, err)
	}
	return nil
}

func kindFor(eventKind string) string {
	switch eventKind {
	case events.KindClaudePermission:
		return "permission"
	default:
		return "approval"
	}
}

// optionsFrom reads an options array off the event payload, falling back to
// the yes/no keystrokes the native prompts accept.
func optionsFrom(data map[string]interface{}) []store.AttentionOption {
	raw, ok := data["options"].([]interface{})
	if !ok {
		return []store.AttentionOption{
			{ID: "y", Label: "Approve", Send: "y"},
			{ID: "n", Label: "Deny", Send: "n"},
		}
	}
	opts := make([]store.AttentionOption, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		opt := store.AttentionOption{}
		opt.ID, _ = m["id"].(string)
		opt.Label, _ = m["label"].(string)
		opt.Send, _ = m["send"].(string)
		if opt.ID == "" {
			continue
		}
		if opt.Send == "" {
			opt.Send = opt.ID
		}
		opts = append(opts, opt)
	}
	if len(opts) == 0 {
		return []store.AttentionOption{
			{ID: "y", Label: "Approve", Send: "y"},
			{ID: "n", Label: "Deny", Send: "n"},
		}
	}
	return opts
}
