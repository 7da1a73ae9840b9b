// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

// Sync triggers.
const (
	TriggerManual   = "manual"
	TriggerInterval = "interval"
	TriggerCommand  = "command"
)

// Skip reasons.
const (
	ReasonUnchanged   = "unchanged"
	ReasonCollectOnly = "collect_only"
	ReasonDeliveryGap = "min_delivery_gap"
)

// Orchestrations is the engine surface the scheduler needs.
type Orchestrations interface {
	Get(orchID string) (*orchestrate.Orchestration, error)
	WriteOrchestrator(orchID, text string) error
	UpdateSync(orchID string, fn func(*orchestrate.SyncState)) (*orchestrate.Orchestration, error)
}

// DigestInfo describes the computed digest of one sync.
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

// Scheduler runs digest syncs, manually or on a per-orchestration interval.
type Scheduler struct {
	builder *Builder
	orch    Orchestrations
	bus     events.EventBus
	debug   bool

	mu      sync.Mutex
	tickers map[string]chan struct{}
	closed  bool

	now func() time.Time
}

// NewScheduler creates a scheduler. Track must be called per orchestration
// to arm its interval timer.
func NewScheduler(st *store.Store, sup session.Supervisor, orch Orchestrations, bus events.EventBus, debug bool) *Scheduler {
	return &Scheduler{
		builder: NewBuilder(st, sup),
		orch:    orch,
		bus:     bus,
		debug:   debug,
		tickers: make(map[string]chan struct{}),
		now:     time.Now,
	}
}

// Sync runs one digest pass for an orchestration. force bypasses the
// unchanged check; deliver=false collects snapshots without writing to the
// orchestrator (the next delivered digest then reports the accumulated
// changes).
func (s *Scheduler) Sync(orchID string, force, deliver bool, trigger string) (*SyncResult, error) {
	doc, err := s.orch.Get(orchID)
	if err != nil {
		return nil, err
	}
	if doc.Status == orchestrate.StatusCleaned {
		return nil, orchestrate.ErrCleaned
	}
	if trigger == "" {
		trigger = TriggerManual
	}

	generatedAt := s.now()
	snaps := make(map[string]orchestrate.WorkerSnapshot, len(doc.Workers))
	running := 0
	for _, w := range doc.Workers {
		var prev *orchestrate.WorkerSnapshot
		if doc.Sync.Snapshots != nil {
			if p, ok := doc.Sync.Snapshots[w.SessionID]; ok {
				prev = &p
			}
		}
		snap := s.builder.Snapshot(w, prev)
		snaps[w.SessionID] = snap
		if snap.Running {
			running++
		}
	}

	hash := Hash(doc.Workers, snaps)
	changed := hash != doc.Sync.LastDigestHash
	changes := 0
	for _, w := range doc.Workers {
		cur := snaps[w.SessionID]
		var prev *orchestrate.WorkerSnapshot
		if doc.Sync.Snapshots != nil {
			if p, ok := doc.Sync.Snapshots[w.SessionID]; ok {
				prev = &p
			}
		}
		if len(changeBits(prev, &cur)) > 0 {
			changes++
		}
	}

	res := &SyncResult{
		Digest: DigestInfo{
			Hash:        hash,
			GeneratedAt: generatedAt,
			Workers:     len(doc.Workers),
			Running:     running,
			Changes:     changes,
		},
	}

	switch {
	case !deliver:
		res.Reason = ReasonCollectOnly
	case !force && !changed:
		res.Reason = ReasonUnchanged
	case !force && s.withinDeliveryGap(doc, generatedAt):
		res.Reason = ReasonDeliveryGap
	default:
		text := Text(doc, snaps, trigger, hash, generatedAt)
		if err := s.orch.WriteOrchestrator(orchID, text); err != nil {
			return nil, err
		}
		res.Sent = true
	}

	_, err = s.orch.UpdateSync(orchID, func(st *orchestrate.SyncState) {
		st.Snapshots = snaps
		st.LastDigestHash = hash
		if res.Sent {
			ts := generatedAt
			st.LastDigestAt = &ts
		}
	})
	if err != nil {
		return nil, err
	}

	s.publish(doc, res, trigger)
	return res, nil
}

func (s *Scheduler) withinDeliveryGap(doc *orchestrate.Orchestration, now time.Time) bool {
	gap := time.Duration(doc.Sync.Policy.MinDeliveryGapMs) * time.Millisecond
	if gap <= 0 || doc.Sync.LastDigestAt == nil {
		return false
	}
	return now.Sub(*doc.Sync.LastDigestAt) < gap
}

func (s *Scheduler) publish(doc *orchestrate.Orchestration, res *SyncResult, trigger string) {
	ev := events.Event{
		Kind:            events.KindSync,
		SessionID:       doc.OrchestratorSessionID,
		OrchestrationID: doc.ID,
		Timestamp:       s.now(),
		Data: map[string]interface{}{
			"trigger": trigger,
			"sent":    res.Sent,
			"hash":    res.Digest.Hash,
			"changes": res.Digest.Changes,
		},
	}
	if res.Reason != "" {
		ev.Data["reason"] = res.Reason
	}
	if err := s.bus.Publish(context.Background(), ev); err != nil {
		log.Printf("digest: publish sync event: %v", err)
	}
}

// Track arms the interval timer for an orchestration whose sync policy is
// interval mode. Safe to call for manual-mode orchestrations; it is a no-op.
func (s *Scheduler) Track(orchID string) {
	doc, err := s.orch.Get(orchID)
	if err != nil {
		return
	}
	if doc.Sync.Policy.Mode != orchestrate.SyncInterval || doc.Sync.Policy.IntervalMs <= 0 {
		return
	}
	interval := time.Duration(doc.Sync.Policy.IntervalMs) * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.tickers[orchID]; ok {
		return
	}
	stop := make(chan struct{})
	s.tickers[orchID] = stop

	deliver := doc.Sync.Policy.DeliverToOrchestrator
	go s.tickLoop(orchID, interval, deliver, stop)
}

func (s *Scheduler) tickLoop(orchID string, interval time.Duration, deliver bool, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.Sync(orchID, false, deliver, TriggerInterval); err != nil {
				if s.debug {
					log.Printf("digest: %s: interval sync: %v", orchID, err)
				}
				return
			}
		}
	}
}

// Untrack stops the interval timer for an orchestration.
func (s *Scheduler) Untrack(orchID string) {
	s.mu.Lock()
	stop, ok := s.tickers[orchID]
	delete(s.tickers, orchID)
	s.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Close stops all timers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	tickers := s.tickers
	s.tickers = make(map[string]chan struct{})
	s.closed = true
	s.mu.Unlock()
	for _, stop := range tickers {
		close(stop)
	}
}
