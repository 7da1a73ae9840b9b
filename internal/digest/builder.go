// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package digest summarizes worker state for the orchestrator. A digest is
// only delivered when some worker's state actually changed, so the
// orchestrator's context is not flooded with identical status dumps.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

const (
	stateHashLen  = 16
	digestHashLen = 20

	previewMax       = 220
	previewTailBytes = 4096
)

// digestEventKinds are the exact event kinds that feed a worker snapshot's
// lastEvent. Everything else is runtime noise that must not churn the digest.
var digestEventKinds = []string{
	events.KindClaudePermission,
	events.KindCodexApproval,
	events.KindCodexUserInput,
	events.KindInboxRespond,
	events.KindInboxDismiss,
	events.KindInboxTimeout,
	events.KindSessionExit,
}

var digestEventPrefixes = []string{
	events.PrefixCodexNativeApproval,
	events.PrefixOrchestrationQuestion,
}

// ansiPattern strips terminal escape sequences from transcript previews.
var ansiPattern = regexp.MustCompile(`\x1b(\[[0-9;?]*[a-zA-Z]|\][^\x07]*(\x07|\x1b\\)|[()][0-9A-B])`)

// Builder computes worker snapshots and digest text from store and
// supervisor state.
type Builder struct {
	st  *store.Store
	sup session.Supervisor
	now func() time.Time
}

// NewBuilder creates a builder.
func NewBuilder(st *store.Store, sup session.Supervisor) *Builder {
	return &Builder{st: st, sup: sup, now: time.Now}
}

// Snapshot computes the current snapshot for one worker, inheriting
// changedAt from prev while the state hash is unchanged.
func (b *Builder) Snapshot(w *orchestrate.Worker, prev *orchestrate.WorkerSnapshot) orchestrate.WorkerSnapshot {
	snap := orchestrate.WorkerSnapshot{Branch: w.Branch}

	if status, err := b.sup.Status(w.SessionID); err == nil {
		snap.Running = status.Running
	}

	if counts, err := b.st.OpenAttentionCounts(); err == nil {
		snap.Attention = counts[w.SessionID]
	}

	if text, err := b.st.TranscriptText(w.SessionID, previewTailBytes); err == nil {
		snap.Preview = previewOf(text)
	}
	if rows, err := b.st.TailOutput(w.SessionID, 1); err == nil && len(rows) > 0 {
		ts := rows[len(rows)-1].Ts
		snap.PreviewTs = &ts
	}

	if ev, err := b.st.LastEventMatching(w.SessionID, digestEventKinds, digestEventPrefixes); err == nil && ev != nil {
		snap.LastEventID = ev.ID
		snap.LastEventKind = ev.Kind
		ts := ev.Ts
		snap.LastEventTs = &ts
	}

	if prog, ok := readProgress(w.WorktreePath); ok {
		snap.ChecklistDone = prog.done
		snap.ChecklistTotal = prog.total
		snap.ProgressRelPath = prog.relPath
		snap.ProgressUpdatedAt = &prog.updatedAt
	}

	snap.StateHash = StateHash(&snap)
	if prev != nil && prev.StateHash == snap.StateHash {
		snap.ChangedAt = prev.ChangedAt
	} else {
		snap.ChangedAt = b.now()
	}
	return snap
}

// StateHash computes the deterministic hash over the snapshot tuple. Field
// order is fixed; changing it invalidates every persisted snapshot.
func StateHash(s *orchestrate.WorkerSnapshot) string {
	fields := []string{
		boolBit(s.Running),
		strconv.Itoa(s.Attention),
		s.Branch,
		s.Preview,
		s.ProgressRelPath,
		timeField(s.ProgressUpdatedAt),
		strconv.Itoa(s.ChecklistDone),
		strconv.Itoa(s.ChecklistTotal),
		strconv.FormatInt(s.LastEventID, 10),
		s.LastEventKind,
		timeField(s.LastEventTs),
		timeField(s.PreviewTs),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])[:stateHashLen]
}

// Hash computes the digest hash over all workers in order. Identical worker
// state hashes produce an identical digest hash.
func Hash(workers []*orchestrate.Worker, snaps map[string]orchestrate.WorkerSnapshot) string {
	lines := make([]string, 0, len(workers))
	for _, w := range workers {
		lines = append(lines, w.SessionID+"|"+snaps[w.SessionID].StateHash)
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])[:digestHashLen]
}

// Text renders the digest message delivered to the orchestrator session.
func Text(o *orchestrate.Orchestration, snaps map[string]orchestrate.WorkerSnapshot, trigger, digestHash string, generatedAt time.Time) string {
	running := 0
	attention := 0
	for _, w := range o.Workers {
		s := snaps[w.SessionID]
		if s.Running {
			running++
		}
		attention += s.Attention
	}

	changes := make([]string, 0, len(o.Workers))
	for i, w := range o.Workers {
		cur := snaps[w.SessionID]
		var prev *orchestrate.WorkerSnapshot
		if o.Sync.Snapshots != nil {
			if p, ok := o.Sync.Snapshots[w.SessionID]; ok {
				prev = &p
			}
		}
		bits := changeBits(prev, &cur)
		if len(bits) == 0 {
			continue
		}
		changes = append(changes, fmt.Sprintf("- #%d %s (%s): %s",
			i+1, w.Name, shortSid(w.SessionID), strings.Join(bits, " · ")))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ORCHESTRATION SYNC (%s)\n", trigger)
	fmt.Fprintf(&b, "id: %s\n", o.ID)
	fmt.Fprintf(&b, "name: %s\n", o.Name)
	fmt.Fprintf(&b, "generatedAt: %s\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "workers: %d/%d running\n", running, len(o.Workers))
	fmt.Fprintf(&b, "attentionTotal: %d\n", attention)
	fmt.Fprintf(&b, "digestHash: %s\n", digestHash)
	fmt.Fprintf(&b, "changes: %d\n", len(changes))

	b.WriteString("\nChanges since last digest:\n")
	if len(changes) == 0 {
		b.WriteString("- none\n")
	} else {
		for _, c := range changes {
			b.WriteString(c + "\n")
		}
	}

	b.WriteString("\nWorker states:\n")
	for i, w := range o.Workers {
		s := snaps[w.SessionID]
		b.WriteString(workerStateLine(i, w, &s))
		if s.Preview != "" {
			fmt.Fprintf(&b, "  last: %s\n", s.Preview)
		}
	}

	b.WriteString("\nTreat this as read-only status context. Do not interrupt workers unless asked.\n")
	return b.String()
}

func workerStateLine(i int, w *orchestrate.Worker, s *orchestrate.WorkerSnapshot) string {
	state := "stopped"
	if s.Running {
		state = "running"
	}
	parts := []string{
		fmt.Sprintf("- #%d %s (%s)", i+1, w.Name, shortSid(w.SessionID)),
		state,
		fmt.Sprintf("attention:%d", s.Attention),
	}
	if s.Branch != "" {
		parts = append(parts, "branch:"+s.Branch)
	}
	if s.ChecklistTotal > 0 {
		parts = append(parts, fmt.Sprintf("checklist:%d/%d", s.ChecklistDone, s.ChecklistTotal))
	}
	if s.ProgressRelPath != "" {
		parts = append(parts, "progress:"+s.ProgressRelPath)
	}
	if s.LastEventKind != "" {
		parts = append(parts, fmt.Sprintf("%s#%d", s.LastEventKind, s.LastEventID))
	}
	return strings.Join(parts, " · ") + "\n"
}

// changeBits lists the human-readable differences between two snapshots.
func changeBits(prev, cur *orchestrate.WorkerSnapshot) []string {
	if prev == nil {
		return []string{"first snapshot"}
	}
	if prev.StateHash == cur.StateHash {
		return nil
	}
	var bits []string
	if prev.Running != cur.Running {
		bits = append(bits, fmt.Sprintf("%s→%s", runState(prev.Running), runState(cur.Running)))
	}
	if prev.Attention != cur.Attention {
		bits = append(bits, fmt.Sprintf("attention %d→%d", prev.Attention, cur.Attention))
	}
	if prev.Branch != cur.Branch {
		bits = append(bits, fmt.Sprintf("branch %s→%s", orDash(prev.Branch), orDash(cur.Branch)))
	}
	if prev.ChecklistDone != cur.ChecklistDone || prev.ChecklistTotal != cur.ChecklistTotal {
		bits = append(bits, fmt.Sprintf("checklist %d/%d→%d/%d",
			prev.ChecklistDone, prev.ChecklistTotal, cur.ChecklistDone, cur.ChecklistTotal))
	}
	if cur.LastEventID != prev.LastEventID && cur.LastEventKind != "" {
		bits = append(bits, fmt.Sprintf("event %s#%d", cur.LastEventKind, cur.LastEventID))
	}
	if len(bits) == 0 {
		bits = append(bits, "output updated")
	}
	return bits
}

func runState(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortSid(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}

func boolBit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func timeField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// previewOf collapses the tail of a transcript into a single bounded line.
func previewOf(text string) string {
	text = ansiPattern.ReplaceAllString(text, "")
	text = strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, text)

	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.Join(strings.Fields(lines[i]), " ")
		if line == "" {
			continue
		}
		r := []rune(line)
		if len(r) > previewMax {
			r = r[:previewMax]
		}
		return string(r)
	}
	return ""
}
