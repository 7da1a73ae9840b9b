// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"time"
)

// ServerStatus is the daemon's status summary.
type ServerStatus struct {
	Version          string         `json:"version"`
	PID              int            `json:"pid"`
	StartedAt        time.Time      `json:"startedAt"`
	UptimeMs         int64          `json:"uptimeMs"`
	Sessions         SessionCounts  `json:"sessions"`
	Orchestrations   OrchCounts     `json:"orchestrations"`
	Inbox            map[string]int `json:"inbox"`
	PendingQuestions int            `json:"pendingQuestions"`
}

// SessionCounts summarizes supervised sessions.
type SessionCounts struct {
	Total   int `json:"total"`
	Running int `json:"running"`
}

// OrchCounts summarizes orchestrations.
type OrchCounts struct {
	Active int `json:"active"`
}

// SessionStatus is the live process state of a session.
type SessionStatus struct {
	Running  bool    `json:"running"`
	PID      int     `json:"pid,omitempty"`
	ExitCode *int    `json:"exitCode,omitempty"`
	Signal   *string `json:"signal,omitempty"`
}

// Session is a supervised PTY session: the persisted row plus live status.
type Session struct {
	ID            string        `json:"id"`
	Tool          string        `json:"tool"`
	ProfileID     string        `json:"profileId,omitempty"`
	ToolSessionID string        `json:"toolSessionId,omitempty"`
	Cwd           string        `json:"cwd"`
	WorkspaceKey  string        `json:"workspaceKey,omitempty"`
	WorkspaceRoot string        `json:"workspaceRoot,omitempty"`
	TreePath      string        `json:"treePath,omitempty"`
	Label         string        `json:"label,omitempty"`
	PinnedSlot    int           `json:"pinnedSlot,omitempty"`
	Internal      bool          `json:"internal,omitempty"`
	ExitCode      *int          `json:"exitCode,omitempty"`
	ExitSignal    *string       `json:"exitSignal,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Status        SessionStatus `json:"status"`
}

// CreateSessionRequest spawns a standalone session.
type CreateSessionRequest struct {
	Tool      string `json:"tool,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
	Cwd       string `json:"cwd"`
	Label     string `json:"label,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
}

// SessionEvent is one persisted event row for a session.
type SessionEvent struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId"`
	Ts        time.Time       `json:"ts"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// AttentionOption is one way to answer an attention item. Send is the text
// written into the session's PTY when the option is chosen.
type AttentionOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Send  string `json:"send"`
}

// AttentionItem is one inbox record. Status is one of "open", "sent",
// "resolved", or "dismissed".
type AttentionItem struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"sessionId"`
	Ts        time.Time         `json:"ts"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Status    string            `json:"status"`
	Kind      string            `json:"kind"`
	Severity  string            `json:"severity"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Signature string            `json:"signature"`
	Options   []AttentionOption `json:"options"`
}

// CreateAttentionRequest inserts an attention item.
type CreateAttentionRequest struct {
	SessionID string            `json:"sessionId"`
	Kind      string            `json:"kind"`
	Severity  string            `json:"severity,omitempty"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	Signature string            `json:"signature,omitempty"`
	Options   []AttentionOption `json:"options,omitempty"`
}

// CreateAttentionResult reports the outcome of creating an item. A repeated
// signature touches the existing open item instead of inserting a new row,
// in which case OK is false, Reason is "duplicate", and ExistingID names it.
type CreateAttentionResult struct {
	OK         bool   `json:"ok"`
	ID         int64  `json:"id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ExistingID int64  `json:"existingId,omitempty"`
}

// InboxFilter selects attention items. Zero values mean no constraint.
type InboxFilter struct {
	SessionID    string
	WorkspaceKey string
	Cwd          string
	Status       string
	Limit        int
}

// InboxPage is a list of attention items plus per-session open counts.
type InboxPage struct {
	Items  []*AttentionItem `json:"items"`
	Counts map[string]int   `json:"counts"`
}

// Orchestration is one multi-agent run.
type Orchestration struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	ProjectPath           string          `json:"projectPath"`
	WorkspaceKey          string          `json:"workspaceKey,omitempty"`
	WorkspaceRoot         string          `json:"workspaceRoot,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	Status                string          `json:"status"`
	DispatchMode          string          `json:"dispatchMode"`
	OrchestratorSessionID string          `json:"orchestratorSessionId"`
	Workers               []*Worker       `json:"workers"`
	Startup               Startup         `json:"startup"`
	Sync                  json.RawMessage `json:"sync,omitempty"`
	Automation            AutomationState `json:"automation"`
	CleanupSummary        json.RawMessage `json:"cleanupSummary,omitempty"`
}

// Worker is one worker slot inside an orchestration.
type Worker struct {
	Name              string `json:"name"`
	Slug              string `json:"slug"`
	SessionID         string `json:"sessionId"`
	Tool              string `json:"tool"`
	ProfileID         string `json:"profileId,omitempty"`
	Branch            string `json:"branch,omitempty"`
	WorktreePath      string `json:"worktreePath,omitempty"`
	TaskPrompt        string `json:"taskPrompt"`
	Bootstrap         string `json:"bootstrap,omitempty"`
	InitialDispatched bool   `json:"initialDispatched"`
	WorktreeError     string `json:"worktreeError,omitempty"`
}

// Startup tracks which workers still await their first dispatch.
type Startup struct {
	State                string   `json:"state"`
	PendingSessionIDs    []string `json:"pendingSessionIds"`
	DispatchedSessionIDs []string `json:"dispatchedSessionIds"`
}

// AutomationPolicy governs attention routing for an orchestration.
type AutomationPolicy struct {
	QuestionMode      string `json:"questionMode"`
	SteeringMode      string `json:"steeringMode"`
	YoloMode          bool   `json:"yoloMode"`
	QuestionTimeoutMs int    `json:"questionTimeoutMs,omitempty"`
	ReviewIntervalMs  int    `json:"reviewIntervalMs,omitempty"`
}

// AutomationState is the automation policy plus its counters.
type AutomationState struct {
	Policy                AutomationPolicy `json:"policy"`
	PendingQuestionCount  int              `json:"pendingQuestionCount"`
	QuestionDispatchCount int              `json:"questionDispatchCount"`
}

// OrchestratorSpec configures the orchestrator session of a new
// orchestration.
type OrchestratorSpec struct {
	Tool      string `json:"tool,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
	Prompt    string `json:"prompt"`
}

// WorkerSpec configures one worker of a new orchestration.
type WorkerSpec struct {
	Name       string `json:"name"`
	Tool       string `json:"tool,omitempty"`
	ProfileID  string `json:"profileId,omitempty"`
	TaskPrompt string `json:"taskPrompt"`
}

// CreateOrchestrationRequest starts a new orchestration.
type CreateOrchestrationRequest struct {
	Name         string           `json:"name"`
	ProjectPath  string           `json:"projectPath"`
	Orchestrator OrchestratorSpec `json:"orchestrator"`
	Workers      []WorkerSpec     `json:"workers"`

	AutoWorktrees              *bool  `json:"autoWorktrees,omitempty"`
	DispatchMode               string `json:"dispatchMode,omitempty"`
	AutoDispatchInitialPrompts *bool  `json:"autoDispatchInitialPrompts,omitempty"`
}

// DispatchRequest writes text to one or more workers. Target is a worker
// slug, a session id, or "all".
type DispatchRequest struct {
	Target                    string `json:"target"`
	Text                      string `json:"text"`
	Interrupt                 bool   `json:"interrupt,omitempty"`
	ForceInterrupt            bool   `json:"forceInterrupt,omitempty"`
	IncludeBootstrapIfPresent bool   `json:"includeBootstrapIfPresent,omitempty"`
	Source                    string `json:"source,omitempty"`
}

// DispatchFailure names one session a dispatch could not reach.
type DispatchFailure struct {
	Sid    string `json:"sid"`
	Reason string `json:"reason"`
}

// DispatchResult reports per-session outcomes of one dispatch.
type DispatchResult struct {
	OK                 bool              `json:"ok"`
	Reason             string            `json:"reason,omitempty"`
	AvailableTargets   []string          `json:"availableTargets,omitempty"`
	Sent               []string          `json:"sent"`
	Failed             []DispatchFailure `json:"failed"`
	Count              DispatchCount     `json:"count"`
	InjectedBootstrap  bool              `json:"injectedBootstrap"`
	InterruptRequested bool              `json:"interruptRequested"`
}

// DispatchCount summarizes a dispatch outcome.
type DispatchCount struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// SyncRequest triggers a manual digest sync. Force bypasses the no-change
// suppression; Deliver=false builds the digest without writing it to the
// orchestrator (defaults to true when nil).
type SyncRequest struct {
	Force   bool  `json:"force,omitempty"`
	Deliver *bool `json:"deliver,omitempty"`
}

// DigestInfo describes one built digest.
type DigestInfo struct {
	Hash        string    `json:"hash"`
	GeneratedAt time.Time `json:"generatedAt"`
	Workers     int       `json:"workers"`
	Running     int       `json:"running"`
	Changes     int       `json:"changes"`
}

// SyncResult reports one sync pass.
type SyncResult struct {
	Sent   bool       `json:"sent"`
	Reason string     `json:"reason,omitempty"`
	Digest DigestInfo `json:"digest"`
}

// AutomationPatch updates an orchestration's automation policy. Only
// non-nil fields change.
type AutomationPatch struct {
	QuestionMode      *string `json:"questionMode,omitempty"`
	SteeringMode      *string `json:"steeringMode,omitempty"`
	YoloMode          *bool   `json:"yoloMode,omitempty"`
	QuestionTimeoutMs *int    `json:"questionTimeoutMs,omitempty"`
	ReviewIntervalMs  *int    `json:"reviewIntervalMs,omitempty"`
}

// CleanupRequest selects which cleanup stages to run.
type CleanupRequest struct {
	StopSessions    bool `json:"stopSessions"`
	DeleteSessions  bool `json:"deleteSessions,omitempty"`
	RemoveWorktrees bool `json:"removeWorktrees,omitempty"`
}

// CleanupSummary records what a cleanup did.
type CleanupSummary struct {
	Sessions  CleanupSessions  `json:"sessions"`
	Worktrees CleanupWorktrees `json:"worktrees"`
}

// CleanupSessions counts session outcomes.
type CleanupSessions struct {
	Closed  int `json:"closed"`
	Deleted int `json:"deleted"`
}

// CleanupWorktrees counts removed worktrees.
type CleanupWorktrees struct {
	Removed int `json:"removed"`
}

// CommandInfo is one catalog entry: a command id plus its mode and risk
// tier.
type CommandInfo struct {
	ID               string   `json:"id"`
	Mode             string   `json:"mode"`
	Tier             string   `json:"tier"`
	Summary          string   `json:"summary,omitempty"`
	RequiredNonEmpty []string `json:"requiredNonEmpty,omitempty"`
	RequiredAnyOf    []string `json:"requiredAnyOf,omitempty"`
}

// ExecuteRequest runs a catalog command through the gate. The Policy*
// fields satisfy the risk-tier requirements for medium and high commands.
type ExecuteRequest struct {
	Command         string                 `json:"command"`
	OrchestrationID string                 `json:"orchestrationId,omitempty"`
	Payload         map[string]interface{} `json:"payload,omitempty"`

	Force                 bool   `json:"force,omitempty"`
	PolicyAck             bool   `json:"policyAck,omitempty"`
	PolicyReason          string `json:"policyReason,omitempty"`
	PolicyApprovedBy      string `json:"policyApprovedBy,omitempty"`
	RollbackPlan          string `json:"rollbackPlan,omitempty"`
	PolicyAuthorizedScope string `json:"policyAuthorizedScope,omitempty"`
	PolicyOverride        bool   `json:"policyOverride,omitempty"`

	// IdempotencyKey is sent as the Idempotency-Key header. A repeated key
	// within the same orchestration replays the stored response.
	IdempotencyKey string `json:"-"`
}

// PolicyInfo reports the risk evaluation on an execute response.
type PolicyInfo struct {
	Tier     string `json:"tier"`
	Forced   bool   `json:"forced,omitempty"`
	Override bool   `json:"override,omitempty"`
}

// ExecuteResult is the gate's success payload. Dispatch and Sync carry the
// command-specific output for dispatch-mode and sync-mode commands; Packet
// carries the text packet for packet-mode ones.
type ExecuteResult struct {
	OK       bool            `json:"ok"`
	Command  string          `json:"command"`
	Mode     string          `json:"mode"`
	Policy   PolicyInfo      `json:"policy"`
	Replayed bool            `json:"replayed"`
	Dispatch json.RawMessage `json:"dispatch,omitempty"`
	Sync     json.RawMessage `json:"sync,omitempty"`
	Packet   string          `json:"packet,omitempty"`
}

// Event is one bus event, from history or the live stream.
type Event struct {
	ID              string                 `json:"id"`
	Kind            string                 `json:"kind"`
	SessionID       string                 `json:"sessionId,omitempty"`
	OrchestrationID string                 `json:"orchestrationId,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Data            map[string]interface{} `json:"data,omitempty"`
	StoreID         int64                  `json:"storeId,omitempty"`
}

// EventFilter selects history events. Zero values mean no constraint.
type EventFilter struct {
	SessionID string
	Kinds     []string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// WorkspacePreset remembers the tool settings last used in a workspace.
type WorkspacePreset struct {
	Path      string          `json:"path"`
	Tool      string          `json:"tool"`
	ProfileID string          `json:"profileId,omitempty"`
	Overrides json.RawMessage `json:"overrides,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
