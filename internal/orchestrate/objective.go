// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrate

import (
	"regexp"
	"strings"
)

const (
	maxObjectiveLen     = 2000
	objectiveProbeRunes = 160
)

// objectivePattern matches a "Goal:"/"Objective:" line, optionally led by
// the coordinating preamble the orchestrator prompt templates use.
var objectivePattern = regexp.MustCompile(`(?i)^(?:you are coordinating(?: a team)?\.\s*)?(?:goal|objective)\s*:\s*(.+)$`)

// NormalizeObjective extracts a one-line objective from an orchestrator
// prompt. It scans line by line for a goal/objective label and falls back
// to the prompt's first sentence. Candidates that still carry a template
// placeholder are skipped.
func NormalizeObjective(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return ""
	}
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := objectivePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if candidate == "" || containsPlaceholder(candidate) {
			continue
		}
		return capRunes(candidate, maxObjectiveLen)
	}
	return capRunes(firstSentence(trimmed), maxObjectiveLen)
}

// AugmentTaskPrompt appends the objective to a worker task prompt unless
// the prompt already carries it. Presence is probed with the objective's
// first 160 runes so a truncated restatement still counts.
func AugmentTaskPrompt(task, objective string) string {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return task
	}
	probe := capRunes(objective, objectiveProbeRunes)
	if probe != "" && strings.Contains(task, probe) {
		return task
	}
	return task + "\n\nOBJECTIVE CONTEXT (must be satisfied):\n" + objective
}

func containsPlaceholder(s string) bool {
	return strings.Contains(strings.ToLower(s), "<prompt>")
}

// firstSentence returns the first line up to a sentence terminator that is
// followed by whitespace or end of line.
func firstSentence(s string) string {
	line := s
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '.', '!', '?':
			if i+1 == len(line) || line[i+1] == ' ' || line[i+1] == '\t' {
				return strings.TrimSpace(line[:i+1])
			}
		}
	}
	return line
}

func capRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
