// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package attention routes inbox items: deduplicated questions, approvals,
// and permission requests surfaced by sessions. Items are answered by a
// human through the API, or, under an orchestration's automation policy,
// forwarded to the orchestrator session.
package attention

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

// Attention severities.
const (
	SeverityInfo   = "info"
	SeverityWarn   = "warn"
	SeverityDanger = "danger"
)

// Respond/dismiss sources recorded in the audit trail.
const (
	SourceHuman        = "human"
	SourceOrchestrator = "orchestrator"
	SourceTimeout      = "timeout"
)

var (
	// ErrAlreadyClosed is returned when responding to a resolved or
	// dismissed item.
	ErrAlreadyClosed = errors.New("attention item already closed")
	// ErrUnknownOption is returned when the option id is not on the item.
	ErrUnknownOption = errors.New("unknown option")
)

// Engine is the orchestration surface the router needs. Satisfied by
// *orchestrate.Engine.
type Engine interface {
	ForSession(sessionID string) (*orchestrate.Orchestration, bool)
	Get(orchID string) (*orchestrate.Orchestration, error)
	WriteOrchestrator(orchID, text string) error
	UpdateAutomation(orchID string, fn func(*orchestrate.AutomationState)) (*orchestrate.Orchestration, error)
}

// CreateInput describes a new inbox item.
type CreateInput struct {
	SessionID string                  `json:"sessionId"`
	Kind      string                  `json:"kind"`
	Severity  string                  `json:"severity,omitempty"`
	Title     string                  `json:"title"`
	Body      string                  `json:"body,omitempty"`
	Signature string                  `json:"signature,omitempty"`
	Options   []store.AttentionOption `json:"options,omitempty"`
}

// CreateResult reports the outcome of Create. A repeated signature touches
// the existing open item instead of inserting a new row.
type CreateResult struct {
	OK         bool   `json:"ok"`
	ID         int64  `json:"id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ExistingID int64  `json:"existingId,omitempty"`
}

// ListFilter selects inbox items.
type ListFilter struct {
	SessionID    string
	WorkspaceKey string
	Cwd          string
	Status       string
	Limit        int
}

type pendingQuestion struct {
	orchID    string
	sessionID string
	timer     *time.Timer
}

// Router owns the inbox lifecycle and the automation question queue.
type Router struct {
	st    *store.Store
	sup   session.Supervisor
	bus   events.EventBus
	eng   Engine
	debug bool

	mu             sync.Mutex
	pending        map[int64]*pendingQuestion
	defaultTimeout time.Duration
	closed         bool

	now func() time.Time
}

// NewRouter creates a router. eng may be nil when no orchestration engine
// is wired (items are then human-only).
func NewRouter(st *store.Store, sup session.Supervisor, bus events.EventBus, eng Engine, debug bool) *Router {
	return &Router{
		st:      st,
		sup:     sup,
		bus:     bus,
		eng:     eng,
		debug:   debug,
		pending: make(map[int64]*pendingQuestion),
		now:     time.Now,
	}
}

// Create inserts or touches an inbox item. Worker items are queued on the
// owning orchestration when its automation policy routes questions to the
// orchestrator.
func (r *Router) Create(in CreateInput) (*CreateResult, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, fmt.Errorf("sessionId is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.Kind == "" {
		in.Kind = "question"
	}
	if in.Severity == "" {
		in.Severity = SeverityInfo
	}
	if in.Signature == "" {
		in.Signature = DefaultSignature(in.SessionID, in.Kind, in.Title)
	}

	item := &store.AttentionItem{
		SessionID: in.SessionID,
		Kind:      in.Kind,
		Severity:  in.Severity,
		Title:     in.Title,
		Body:      in.Body,
		Signature: in.Signature,
		Options:   in.Options,
	}
	id, created, err := r.st.CreateOrTouchAttention(item)
	if err != nil {
		return nil, err
	}

	if created {
		r.maybeRouteToOrchestrator(id, in)
		return &CreateResult{OK: true, ID: id}, nil
	}
	return &CreateResult{OK: false, Reason: "duplicate", ExistingID: id}, nil
}

// DefaultSignature derives the coalescing signature for an item when the
// caller supplied none. It embeds the session id so equivalent prompts from
// different workers stay distinct.
func DefaultSignature(sessionID, kind, title string) string {
	sum := sha1.Sum([]byte(title))
	return kind + "|" + sessionID + "|" + hex.EncodeToString(sum[:])[:12]
}

// Get returns one item.
func (r *Router) Get(id int64) (*store.AttentionItem, error) {
	return r.st.GetAttention(id)
}

// List returns open (or filtered) items, newest updated first. Workspace
// and cwd filters resolve through the session table.
func (r *Router) List(filter ListFilter) ([]*store.AttentionItem, error) {
	statuses := []string{filter.Status}
	if filter.Status == "" {
		// Unanswered means open plus queued-to-orchestrator.
		statuses = []string{store.AttentionOpen, store.AttentionSent}
	}
	var items []*store.AttentionItem
	for _, status := range statuses {
		part, err := r.st.ListAttention(store.AttentionFilter{
			SessionID: filter.SessionID,
			Status:    status,
			Limit:     filter.Limit,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, part...)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	if filter.WorkspaceKey == "" && filter.Cwd == "" {
		return items, nil
	}

	sessions, err := r.st.ListSessions()
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		if filter.WorkspaceKey != "" && s.WorkspaceKey != filter.WorkspaceKey {
			continue
		}
		if filter.Cwd != "" && s.Cwd != filter.Cwd {
			continue
		}
		allowed[s.ID] = true
	}

	out := items[:0]
	for _, item := range items {
		if allowed[item.SessionID] {
			out = append(out, item)
		}
	}
	return out, nil
}

// Counts returns open item counts per session, for badge rendering.
func (r *Router) Counts() (map[string]int, error) {
	return r.st.OpenAttentionCounts()
}

// Respond answers an item: the chosen option's send text is written into
// the session, the item is resolved, and the action audited.
func (r *Router) Respond(id int64, optionID string, meta map[string]any, source string) (*store.AttentionItem, error) {
	item, err := r.st.GetAttention(id)
	if err != nil {
		return nil, err
	}
	if item.Status != store.AttentionOpen && item.Status != store.AttentionSent {
		return nil, fmt.Errorf("attention %d is %s: %w", id, item.Status, ErrAlreadyClosed)
	}
	opt, ok := item.Option(optionID)
	if !ok {
		return nil, fmt.Errorf("attention %d has no option %q: %w", id, optionID, ErrUnknownOption)
	}
	if source == "" {
		source = SourceHuman
	}

	if opt.Send != "" {
		if err := r.sup.Write(item.SessionID, opt.Send); err != nil {
			log.Printf("attention: %d: write answer to %s: %v", id, item.SessionID, err)
		}
	}

	if err := r.st.SetAttentionStatus(id, store.AttentionResolved); err != nil {
		return nil, err
	}
	data := map[string]any{"optionId": optionID, "source": source}
	if len(meta) > 0 {
		data["meta"] = meta
	}
	if err := r.st.AppendAttentionAction(id, item.SessionID, "respond", data); err != nil {
		log.Printf("attention: %d: audit respond: %v", id, err)
	}
	r.emit(item.SessionID, events.KindInboxRespond, map[string]interface{}{
		"attentionId": id,
		"optionId":    optionID,
		"source":      source,
	})

	r.settlePending(id, source == SourceOrchestrator)

	item.Status = store.AttentionResolved
	return item, nil
}

// Dismiss marks an item dismissed without answering it.
func (r *Router) Dismiss(id int64, source string) (*store.AttentionItem, error) {
	item, err := r.st.GetAttention(id)
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = SourceHuman
	}
	if err := r.st.SetAttentionStatus(id, store.AttentionDismissed); err != nil {
		return nil, err
	}
	if err := r.st.AppendAttentionAction(id, item.SessionID, "dismiss", map[string]any{"source": source}); err != nil {
		log.Printf("attention: %d: audit dismiss: %v", id, err)
	}
	r.emit(item.SessionID, events.KindInboxDismiss, map[string]interface{}{
		"attentionId": id,
		"source":      source,
	})

	r.settlePending(id, false)

	item.Status = store.AttentionDismissed
	return item, nil
}

// PendingCount returns the number of questions currently awaiting an
// orchestrator answer, across all orchestrations.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close cancels all pending question timers.
func (r *Router) Close() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[int64]*pendingQuestion)
	r.closed = true
	r.mu.Unlock()
	for _, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
}

func (r *Router) emit(sessionID, kind string, data map[string]interface{}) {
	ev := events.Event{
		Kind:      kind,
		SessionID: sessionID,
		Timestamp: r.now(),
		Data:      data,
	}
	if storeID, err := r.st.AppendEvent(sessionID, kind, data); err != nil {
		log.Printf("attention: append %s event: %v", kind, err)
	} else {
		ev.StoreID = storeID
	}
	if err := r.bus.Publish(context.Background(), ev); err != nil {
		log.Printf("attention: publish %s: %v", kind, err)
	}
}
