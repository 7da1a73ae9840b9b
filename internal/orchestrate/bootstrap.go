// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrate

import (
	"fmt"
	"strings"
)

const plannedTaskPreviewLen = 200

// orchestratorSystemPrompt is injected into the orchestrator session right
// after spawn. Directive examples keep <...> placeholders so the echoed
// prompt is never executed as a real directive.
func orchestratorSystemPrompt(o *Orchestration, objective string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the orchestrator for %q (orchestration %s).\n", o.Name, o.ID)
	if objective != "" {
		fmt.Fprintf(&b, "\nObjective: %s\n", objective)
	}
	b.WriteString("\nWorkers under your direction:\n")
	for i, w := range o.Workers {
		b.WriteString(workerAliasLine(i, w))
	}
	b.WriteString(`
Machine dispatch protocol. Emit one directive per line, exactly in this
form, with real values substituted:
  FYP_SEND_TASK_JSON: {"target":"worker:` + firstSlug(o) + `","text":"<task prompt>"}
  FYP_DISPATCH_JSON: {"target":"all","text":"<message>","interrupt":true}
  FYP_ANSWER_QUESTION_JSON: {"attentionId":<id>,"optionId":"yes"}

- target accepts "all", a worker name, worker:<slug>, session:<id>, or a 1-based index.
- "interrupt":true interrupts the target before the text is written. "interruptMode":"force" escalates to a hard interrupt.
- "initialize":true on the first task injects the worker's profile bootstrap ahead of it.
- Items from an AUTOMATION QUESTION BATCH are answered with the attention id and option id shown in the batch.

This context is injected by the supervisor. Do not repeat it to the user.
`)
	return b.String()
}

// waitModeBootstrap is the initial message workers receive when the
// orchestration starts without dispatching their task prompts.
func waitModeBootstrap(o *Orchestration, w *Worker) string {
	var b strings.Builder
	fmt.Fprintf(&b, "WAIT MODE - you are worker %q in orchestration %q.\n", w.Name, o.Name)
	if w.Branch != "" {
		fmt.Fprintf(&b, "\nBranch: %s\n", w.Branch)
	}
	if w.WorktreePath != "" {
		fmt.Fprintf(&b, "Worktree: %s\n", w.WorktreePath)
	}
	b.WriteString(`
Your task has not been assigned yet. It will arrive as a later message
from the orchestrator. Until it does, do not modify files, run commands,
or start work of any kind. Reply with a one-line acknowledgement and wait.
`)
	return b.String()
}

// orchestratorQuickstart nudges the orchestrator to perform the first
// dispatch when the orchestration starts in waiting-first-dispatch state.
func orchestratorQuickstart(o *Orchestration) string {
	var b strings.Builder
	b.WriteString("ORCHESTRATOR QUICKSTART\n")
	b.WriteString(`
All workers are idle in wait mode and none has received its task yet.
Dispatch each worker's first task now, one directive per line:
  FYP_SEND_TASK_JSON: {"target":"worker:` + firstSlug(o) + `","text":"<task prompt>","initialize":true}

Keep "initialize":true on the first dispatch so the profile bootstrap is
injected ahead of the task. Planned tasks:
`)
	for i, w := range o.Workers {
		fmt.Fprintf(&b, "  #%d %s (worker:%s): %s\n", i+1, w.Name, w.Slug, oneLine(w.TaskPrompt, plannedTaskPreviewLen))
	}
	return b.String()
}

func workerAliasLine(i int, w *Worker) string {
	line := fmt.Sprintf("  #%d %s (worker:%s, session:%s) tool=%s", i+1, w.Name, w.Slug, w.SessionID, w.Tool)
	if w.Branch != "" {
		line += " branch=" + w.Branch
	}
	return line + "\n"
}

func firstSlug(o *Orchestration) string {
	if len(o.Workers) > 0 {
		return o.Workers[0].Slug
	}
	return "name"
}

// oneLine collapses whitespace runs and caps the result for preview use.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
