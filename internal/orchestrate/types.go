// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package orchestrate runs orchestrations: one orchestrator session
// directing worker sessions over isolated git worktrees, with a startup
// state machine, directive-driven dispatch, and locked cleanup.
package orchestrate

import (
	"errors"
	"time"
)

// Orchestration status.
const (
	StatusActive  = "active"
	StatusCleaned = "cleaned"
)

// Dispatch modes.
const (
	ModeAuto              = "auto"
	ModeOrchestratorFirst = "orchestrator-first"
)

// Startup states.
const (
	StateWaitingFirstDispatch = "waiting-first-dispatch"
	StateRunning              = "running"
)

// Sync policy modes.
const (
	SyncManual   = "manual"
	SyncInterval = "interval"
)

// Automation question modes.
const (
	QuestionInline       = "inline"
	QuestionOrchestrator = "orchestrator"
)

// Automation steering modes.
const (
	SteeringOff           = "off"
	SteeringPassiveReview = "passive_review"
)

var (
	// ErrNotFound is returned for unknown orchestration ids.
	ErrNotFound = errors.New("unknown orchestration")
	// ErrLocked is returned when another operation holds the
	// orchestration's lock.
	ErrLocked = errors.New("orchestration locked")
	// ErrCleaned is returned when an operation targets a cleaned
	// orchestration.
	ErrCleaned = errors.New("orchestration cleaned")
)

// InputError is a rejected request with a stable reason code.
type InputError struct {
	Code    string
	Message string
}

func (e *InputError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func badInput(msg string) error {
	return &InputError{Code: "bad_input", Message: msg}
}

// Orchestration is the persisted document describing one orchestration.
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
	Sync                  SyncState       `json:"sync"`
	Automation            AutomationState `json:"automation"`
	CleanupSummary        *CleanupSummary `json:"cleanupSummary,omitempty"`
}

// Worker is one worker slot inside an orchestration. The session itself is
// owned by the supervisor; only the id is held here.
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

// Startup tracks the first-dispatch state machine.
type Startup struct {
	State                string   `json:"state"`
	PendingSessionIDs    []string `json:"pendingSessionIds"`
	DispatchedSessionIDs []string `json:"dispatchedSessionIds"`
}

// SyncPolicy governs digest delivery.
type SyncPolicy struct {
	Mode                  string `json:"mode"`
	IntervalMs            int    `json:"intervalMs,omitempty"`
	DeliverToOrchestrator bool   `json:"deliverToOrchestrator"`
	MinDeliveryGapMs      int    `json:"minDeliveryGapMs,omitempty"`
}

// SyncState is the digest scheduler's persisted view.
type SyncState struct {
	Policy         SyncPolicy                `json:"policy"`
	LastDigestAt   *time.Time                `json:"lastDigestAt,omitempty"`
	LastDigestHash string                    `json:"lastDigestHash,omitempty"`
	Snapshots      map[string]WorkerSnapshot `json:"snapshots,omitempty"`
}

// WorkerSnapshot is the digest view of one worker. StateHash is a
// deterministic sha256 prefix over the snapshot tuple; ChangedAt carries
// over from the previous snapshot while the hash is unchanged.
type WorkerSnapshot struct {
	StateHash         string     `json:"stateHash"`
	Running           bool       `json:"running"`
	Attention         int        `json:"attention"`
	Preview           string     `json:"preview,omitempty"`
	PreviewTs         *time.Time `json:"previewTs,omitempty"`
	Branch            string     `json:"branch,omitempty"`
	LastEventID       int64      `json:"lastEventId,omitempty"`
	LastEventKind     string     `json:"lastEventKind,omitempty"`
	LastEventTs       *time.Time `json:"lastEventTs,omitempty"`
	ProgressUpdatedAt *time.Time `json:"progressUpdatedAt,omitempty"`
	ChecklistDone     int        `json:"checklistDone"`
	ChecklistTotal    int        `json:"checklistTotal"`
	ProgressRelPath   string     `json:"progressRelPath,omitempty"`
	ChangedAt         time.Time  `json:"changedAt"`
}

// AutomationPolicy governs attention routing for an orchestration.
type AutomationPolicy struct {
	QuestionMode      string `json:"questionMode"`
	SteeringMode      string `json:"steeringMode"`
	YoloMode          bool   `json:"yoloMode"`
	QuestionTimeoutMs int    `json:"questionTimeoutMs,omitempty"`
	ReviewIntervalMs  int    `json:"reviewIntervalMs,omitempty"`
}

// AutomationState is the automation policy plus its counters. The pending
// question list itself is runtime state on the handle.
type AutomationState struct {
	Policy                AutomationPolicy `json:"policy"`
	PendingQuestionCount  int              `json:"pendingQuestionCount"`
	QuestionDispatchCount int              `json:"questionDispatchCount"`
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

// SessionIDs returns the orchestrator session id followed by all worker
// session ids.
func (o *Orchestration) SessionIDs() []string {
	ids := make([]string, 0, len(o.Workers)+1)
	if o.OrchestratorSessionID != "" {
		ids = append(ids, o.OrchestratorSessionID)
	}
	for _, w := range o.Workers {
		if w.SessionID != "" {
			ids = append(ids, w.SessionID)
		}
	}
	return ids
}

// WorkerBySession returns the worker owning the given session id.
func (o *Orchestration) WorkerBySession(sessionID string) (*Worker, bool) {
	for _, w := range o.Workers {
		if w.SessionID == sessionID {
			return w, true
		}
	}
	return nil, false
}

// Clone returns a deep copy safe to hand out after the lock is released.
func (o *Orchestration) Clone() *Orchestration {
	c := *o
	c.Workers = make([]*Worker, len(o.Workers))
	for i, w := range o.Workers {
		wc := *w
		c.Workers[i] = &wc
	}
	c.Startup.PendingSessionIDs = append([]string(nil), o.Startup.PendingSessionIDs...)
	c.Startup.DispatchedSessionIDs = append([]string(nil), o.Startup.DispatchedSessionIDs...)
	if o.Sync.Snapshots != nil {
		c.Sync.Snapshots = make(map[string]WorkerSnapshot, len(o.Sync.Snapshots))
		for k, v := range o.Sync.Snapshots {
			c.Sync.Snapshots[k] = v
		}
	}
	if o.Sync.LastDigestAt != nil {
		ts := *o.Sync.LastDigestAt
		c.Sync.LastDigestAt = &ts
	}
	if o.CleanupSummary != nil {
		cs := *o.CleanupSummary
		c.CleanupSummary = &cs
	}
	return &c
}
