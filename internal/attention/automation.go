// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package attention

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/wingedpig/fyp/internal/directive"
	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/store"
)

// SetQuestionTimeout sets the fallback question timeout used when an
// orchestration's automation policy does not carry its own.
func (r *Router) SetQuestionTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultTimeout = d
}

// maybeRouteToOrchestrator queues a freshly created worker item on its
// orchestration when the automation policy sends questions to the
// orchestrator instead of a human.
func (r *Router) maybeRouteToOrchestrator(id int64, in CreateInput) {
	if r.eng == nil {
		return
	}
	doc, ok := r.eng.ForSession(in.SessionID)
	if !ok || doc.Status != orchestrate.StatusActive {
		return
	}
	// Orchestrator's own prompts never route back to itself.
	if doc.OrchestratorSessionID == in.SessionID {
		return
	}
	if doc.Automation.Policy.QuestionMode != orchestrate.QuestionOrchestrator {
		return
	}

	timeout := time.Duration(doc.Automation.Policy.QuestionTimeoutMs) * time.Millisecond

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	p := &pendingQuestion{orchID: doc.ID, sessionID: in.SessionID}
	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() { r.timeoutQuestion(id) })
	}
	r.pending[id] = p
	r.mu.Unlock()

	if err := r.st.SetAttentionStatus(id, store.AttentionSent); err != nil {
		log.Printf("attention: %d: mark sent: %v", id, err)
	}
	if _, err := r.eng.UpdateAutomation(doc.ID, func(a *orchestrate.AutomationState) {
		a.PendingQuestionCount++
	}); err != nil {
		log.Printf("attention: %s: bump pending count: %v", doc.ID, err)
	}

	msg := r.batchMessage(doc.ID)
	if err := r.eng.WriteOrchestrator(doc.ID, msg); err != nil {
		log.Printf("attention: %s: write question batch: %v", doc.ID, err)
	}
	if r.debug {
		log.Printf("attention: %d: routed to orchestrator %s (timeout %s)", id, doc.ID, timeout)
	}
}

// batchMessage renders the AUTOMATION QUESTION BATCH text for all questions
// currently pending on an orchestration.
func (r *Router) batchMessage(orchID string) string {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.pending))
	for id, p := range r.pending {
		if p.orchID == orchID {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "AUTOMATION QUESTION BATCH (%d pending)\n", len(ids))
	b.WriteString("Workers are blocked on the decisions below. Answer each by emitting, on its own line:\n")
	b.WriteString(directive.MarkerAnswerQuestion + ` {"attentionId": <id>, "optionId": "<option>"}` + "\n\n")

	for _, id := range ids {
		item, err := r.st.GetAttention(id)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- attentionId:%d session:%s [%s/%s]\n", id, item.SessionID, item.Kind, item.Severity)
		fmt.Fprintf(&b, "  %s\n", item.Title)
		if item.Body != "" {
			fmt.Fprintf(&b, "  %s\n", firstLine(item.Body))
		}
		if len(item.Options) > 0 {
			opts := make([]string, 0, len(item.Options))
			for _, o := range item.Options {
				opts = append(opts, fmt.Sprintf("%s=%q", o.ID, o.Label))
			}
			fmt.Fprintf(&b, "  options: %s\n", strings.Join(opts, " | "))
		}
	}
	b.WriteString("\nDo not guess: pick the option that matches the objective, or the safest one.")
	return b.String()
}

// HandleAnswer consumes a FYP_ANSWER_QUESTION_JSON directive parsed from
// orchestrator output. Answers for unknown, already settled, or
// other-orchestration items are dropped without surfacing an error; the
// orchestrator may replay stale ids after a resync.
func (r *Router) HandleAnswer(orchID string, qa directive.QuestionAnswer) {
	r.mu.Lock()
	p, ok := r.pending[qa.AttentionID]
	r.mu.Unlock()
	if !ok || p.orchID != orchID {
		if r.debug {
			log.Printf("attention: dropping stale answer for %d from %s", qa.AttentionID, orchID)
		}
		return
	}

	if _, err := r.Respond(qa.AttentionID, qa.OptionID, qa.Meta, SourceOrchestrator); err != nil {
		log.Printf("attention: %d: orchestrator answer: %v", qa.AttentionID, err)
		// A bad optionId keeps the question pending so the timeout still fires.
	}
}

// settlePending removes a question from the pending queue after it was
// answered or dismissed, adjusting the orchestration's counters.
func (r *Router) settlePending(id int64, byOrchestrator bool) {
	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}

	if r.eng == nil {
		return
	}
	if _, err := r.eng.UpdateAutomation(p.orchID, func(a *orchestrate.AutomationState) {
		if a.PendingQuestionCount > 0 {
			a.PendingQuestionCount--
		}
		if byOrchestrator {
			a.QuestionDispatchCount++
		}
	}); err != nil {
		log.Printf("attention: %s: settle counters: %v", p.orchID, err)
	}
}

// timeoutQuestion fires when the orchestrator never answered. The item is
// dismissed so a human sees it left the queue, and inbox.timeout is emitted.
func (r *Router) timeoutQuestion(id int64) {
	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	item, err := r.st.GetAttention(id)
	if err != nil {
		log.Printf("attention: %d: timeout lookup: %v", id, err)
		return
	}
	if item.Status == store.AttentionResolved || item.Status == store.AttentionDismissed {
		return
	}
	if err := r.st.SetAttentionStatus(id, store.AttentionDismissed); err != nil {
		log.Printf("attention: %d: timeout dismiss: %v", id, err)
	}
	if err := r.st.AppendAttentionAction(id, item.SessionID, "timeout", map[string]any{"source": SourceTimeout}); err != nil {
		log.Printf("attention: %d: audit timeout: %v", id, err)
	}
	r.emit(item.SessionID, events.KindInboxTimeout, map[string]interface{}{
		"attentionId": id,
		"source":      SourceTimeout,
	})

	if r.eng != nil {
		if _, err := r.eng.UpdateAutomation(p.orchID, func(a *orchestrate.AutomationState) {
			if a.PendingQuestionCount > 0 {
				a.PendingQuestionCount--
			}
		}); err != nil {
			log.Printf("attention: %s: timeout counters: %v", p.orchID, err)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
