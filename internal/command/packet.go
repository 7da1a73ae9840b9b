// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"strings"
)

// packetSections are rendered in a fixed order so the same payload always
// produces the same packet text (idempotent replays compare bodies).
var packetSections = []struct {
	key   string
	label string
}{
	{"scope", "SCOPE"},
	{"verify", "VERIFY"},
	{"notYourJob", "NOT YOUR JOB"},
	{"doneWhen", "DONE WHEN"},
	{"extra", "EXTRA"},
	{"notes", "NOTES"},
}

// buildPacket materializes the prompt delivered to a session. The body text
// comes from the first non-empty of task/text/objective/rawPrompt.
func buildPacket(cmd *Command, payload map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "COMMAND: %s\n", cmd.ID)

	if p := stringField(payload, "priority"); p != "" {
		fmt.Fprintf(&b, "PRIORITY: %s\n", p)
	}

	body := firstNonEmpty(payload, "task", "text", "objective", "rawPrompt")
	if body != "" {
		b.WriteString("\nTASK:\n")
		b.WriteString(body)
		b.WriteString("\n")
	} else if cmd.Summary != "" {
		b.WriteString("\nTASK:\n")
		b.WriteString(cmd.Summary)
		b.WriteString("\n")
	}

	for _, sec := range packetSections {
		if v := stringField(payload, sec.key); v != "" {
			fmt.Fprintf(&b, "\n%s:\n%s\n", sec.label, v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildReviewPacket is the system.review prompt to the orchestrator.
func buildReviewPacket(cmd *Command, payload map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "COMMAND: %s\n", cmd.ID)
	b.WriteString("\nPERIODIC REVIEW:\n")
	b.WriteString("Review each worker's latest digest state against the objective. ")
	b.WriteString("Redirect anyone who has drifted; do not restate completed work.\n")
	if focus := stringField(payload, "focus"); focus != "" {
		fmt.Fprintf(&b, "\nFOCUS:\n%s\n", focus)
	}
	if notes := stringField(payload, "notes"); notes != "" {
		fmt.Fprintf(&b, "\nNOTES:\n%s\n", notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstNonEmpty(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := stringField(payload, key); v != "" {
			return v
		}
	}
	return ""
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return strings.TrimSpace(s)
}
