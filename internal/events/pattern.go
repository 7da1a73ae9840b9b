// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"strings"
)

// PatternMatcher matches event kinds (session.exit,
// orchestration.dispatch, codex.native.approval.execCommandApproval, ...)
// against subscription patterns.
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match checks if an event kind matches a pattern.
// Patterns support wildcards:
// - "session.*" matches "session.exit", "session.tool_link", etc.
// - "codex.*" matches the whole codex family, including nested segments
// - "*.respond" matches "inbox.respond"
// - "*" matches everything
func (pm *PatternMatcher) Match(kind, pattern string) bool {
	if pattern == "" || kind == "" {
		return false
	}

	// Match all
	if pattern == "*" {
		return true
	}

	// Exact match
	if pattern == kind {
		return true
	}

	// Wildcard at end (session.*)
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(kind, prefix+".")
	}

	// Wildcard at start (*.respond)
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(kind, "."+suffix)
	}

	return false
}

// Compile wraps a pattern so subscribers can match kinds without
// re-passing the pattern string.
func (pm *PatternMatcher) Compile(pattern string) (CompiledPattern, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}

	return &compiledPattern{
		pattern: pattern,
		matcher: pm,
	}, nil
}

// CompiledPattern is a pre-compiled pattern for efficient matching.
type CompiledPattern interface {
	Match(kind string) bool
}

type compiledPattern struct {
	pattern string
	matcher *PatternMatcher
}

func (cp *compiledPattern) Match(kind string) bool {
	return cp.matcher.Match(kind, cp.pattern)
}
