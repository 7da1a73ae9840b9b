// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process event bus for fyp. Persistent
// per-session event rows live in the store; the bus carries live fan-out to
// WebSocket clients, the digest scheduler, and the attention router.
package events

import (
	"context"
	"strings"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID              string                 `json:"id"`
	Kind            string                 `json:"kind"`
	SessionID       string                 `json:"sessionId,omitempty"`
	OrchestrationID string                 `json:"orchestrationId,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Data            map[string]interface{} `json:"data,omitempty"`

	// StoreID is the monotonic row id assigned when the event was persisted,
	// zero for bus-only events.
	StoreID int64 `json:"storeId,omitempty"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Kinds     []string  // Event kinds to match (supports wildcards)
	SessionID string    // Filter by session
	Since     time.Time // Events after this time
	Until     time.Time // Events before this time
	Limit     int       // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Session lifecycle and input kinds.
const (
	KindInput          = "input"
	KindInterrupt      = "interrupt"
	KindStop           = "stop"
	KindKill           = "kill"
	KindSessionCreated = "session.created"
	KindSessionExit    = "session.exit"
	KindSessionLink    = "session.tool_link"
	KindSessionMeta    = "session.meta"
	KindSessionGit     = "session.git"
)

// Profile startup kinds.
const (
	KindProfileStartup       = "profile.startup"
	KindProfileStartupFailed = "profile.startup_failed"
)

// Orchestration kinds.
const (
	KindDispatch = "orchestration.dispatch"
	KindSync     = "orchestration.sync"
	KindCleanup  = "orchestration.cleanup"
)

// Inbox kinds.
const (
	KindInboxRespond = "inbox.respond"
	KindInboxDismiss = "inbox.dismiss"
	KindInboxTimeout = "inbox.timeout"
)

// Tool-native attention kinds. The codex.native.approval. and
// orchestration.question. families are open-ended; match them by prefix.
const (
	KindClaudePermission = "claude.permission"
	KindCodexApproval    = "codex.approval"
	KindCodexUserInput   = "codex.native.user_input"

	PrefixCodexNativeApproval   = "codex.native.approval."
	PrefixOrchestrationQuestion = "orchestration.question."
)

// Codex app-server kinds.
const (
	KindAppServerRequest = "codex.app_server.request"
	KindAppServerNotify  = "codex.app_server.notification"
	KindAppServerState   = "codex.app_server.state"
)

// DigestRelevant reports whether an event kind feeds a worker snapshot's
// lastEvent. Generic runtime events must not churn the digest.
func DigestRelevant(kind string) bool {
	switch kind {
	case KindClaudePermission, KindCodexApproval, KindCodexUserInput,
		KindInboxRespond, KindInboxDismiss, KindInboxTimeout, KindSessionExit:
		return true
	}
	return strings.HasPrefix(kind, PrefixCodexNativeApproval) ||
		strings.HasPrefix(kind, PrefixOrchestrationQuestion)
}
