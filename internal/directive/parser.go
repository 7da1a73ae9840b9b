// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package directive extracts typed control directives from orchestrator
// terminal output. The orchestrator emits marker lines followed by a JSON
// payload; output arrives as arbitrary PTY chunks, so parsing is
// incremental with a per-session carry-over buffer.
package directive

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Recognized markers. Matching is case-insensitive.
const (
	MarkerSendTask         = "FYP_SEND_TASK_JSON:"
	MarkerDispatch         = "FYP_DISPATCH_JSON:"
	MarkerAnswerQuestion   = "FYP_ANSWER_QUESTION_JSON:"
	MarkerQuestionResponse = "FYP_QUESTION_RESPONSE_JSON:"
)

var markers = []string{
	MarkerSendTask,
	MarkerDispatch,
	MarkerAnswerQuestion,
	MarkerQuestionResponse,
}

const (
	// DefaultDedupeWindow is how long a repeated identical payload is
	// swallowed. Orchestrator TUIs redraw their scrollback, so the same
	// marker line is seen many times.
	DefaultDedupeWindow = 30 * time.Second

	maxCarryIncomplete = 20000
	maxCarryTail       = 4000
	minCarryTail       = 200
	maxTaskText        = 24000
	maxRecentSigs      = 360
	gcWindowFactor     = 8
)

// placeholderPattern matches template placeholders that leak out of
// bootstrap text when the orchestrator echoes its instructions.
var placeholderPattern = regexp.MustCompile(`(?i)<\s*(prompt|task prompt|message|text|objective|question|answer)\s*>`)

// wholePlaceholderPattern matches a task that is nothing but one
// angle-bracket token.
var wholePlaceholderPattern = regexp.MustCompile(`^\s*<[^>]*>\s*$`)

// Dispatch is a parsed worker dispatch directive.
type Dispatch struct {
	Target                    string `json:"target"`
	Text                      string `json:"text"`
	Interrupt                 bool   `json:"interrupt,omitempty"`
	ForceInterrupt            bool   `json:"forceInterrupt,omitempty"`
	IncludeBootstrapIfPresent bool   `json:"includeBootstrapIfPresent,omitempty"`
	Source                    string `json:"source"`
}

// QuestionAnswer is a parsed orchestrator answer to an inbox question.
type QuestionAnswer struct {
	AttentionID int64          `json:"attentionId"`
	OptionID    string         `json:"optionId"`
	Source      string         `json:"source"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Result holds the directives extracted from one chunk, in output order.
type Result struct {
	Dispatches      []Dispatch
	QuestionAnswers []QuestionAnswer
}

// Empty reports whether the chunk produced no directives.
func (r Result) Empty() bool {
	return len(r.Dispatches) == 0 && len(r.QuestionAnswers) == 0
}

type sessionState struct {
	carry  string
	recent map[string]int64 // payload signature -> last seen unix ms
}

// Parser is the incremental directive extractor. Safe for concurrent use.
type Parser struct {
	mu       sync.Mutex
	window   time.Duration
	sessions map[string]*sessionState
	now      func() time.Time
}

// NewParser creates a parser with the given dedupe window.
func NewParser(window time.Duration) *Parser {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Parser{
		window:   window,
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

// Feed consumes one output chunk for a session and returns any directives
// it completes.
func (p *Parser) Feed(sessionID, chunk string) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		state = &sessionState{recent: make(map[string]int64)}
		p.sessions[sessionID] = state
	}

	carry := state.carry
	if len(carry) > maxCarryIncomplete {
		carry = carry[len(carry)-maxCarryIncomplete:]
	}
	buf := carry + strings.ReplaceAll(chunk, "\r\n", "\n")

	found, earliestIncomplete := scanDirectives(buf)

	nowMs := p.now().UnixMilli()

	var result Result
	for _, raw := range found {
		sig := payloadSignature(raw.marker, raw.payloadRaw)
		if last, seen := state.recent[sig]; seen && nowMs-last < p.window.Milliseconds() {
			state.recent[sig] = nowMs
			continue
		}
		state.recent[sig] = nowMs

		switch raw.marker {
		case MarkerSendTask, MarkerDispatch:
			if d, ok := parseDispatch(raw); ok {
				result.Dispatches = append(result.Dispatches, d)
			}
		case MarkerAnswerQuestion, MarkerQuestionResponse:
			if a, ok := parseQuestionAnswer(raw); ok {
				result.QuestionAnswers = append(result.QuestionAnswers, a)
			}
		}
	}

	p.gcRecent(state, nowMs)
	state.carry = nextCarry(buf, earliestIncomplete)
	return result
}

// Forget drops all state for a session.
func (p *Parser) Forget(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, sessionID)
}

// gcRecent drops stale signatures and enforces the hard cap.
func (p *Parser) gcRecent(state *sessionState, nowMs int64) {
	horizon := gcWindowFactor * p.window.Milliseconds()
	for sig, last := range state.recent {
		if nowMs-last > horizon {
			delete(state.recent, sig)
		}
	}
	if len(state.recent) <= maxRecentSigs {
		return
	}
	type entry struct {
		sig  string
		last int64
	}
	entries := make([]entry, 0, len(state.recent))
	for sig, last := range state.recent {
		entries = append(entries, entry{sig, last})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].last < entries[j].last })
	for _, e := range entries[:len(entries)-maxRecentSigs] {
		delete(state.recent, e.sig)
	}
}

type rawDirective struct {
	marker     string
	offset     int
	payloadRaw string
}

// scanDirectives finds every marker occurrence with a complete JSON payload.
// Markers whose payload has not fully arrived report the earliest incomplete
// offset, or -1 if none.
func scanDirectives(buf string) ([]rawDirective, int) {
	lower := strings.ToLower(buf)
	earliestIncomplete := -1

	var found []rawDirective
	for _, marker := range markers {
		needle := strings.ToLower(marker)
		from := 0
		for {
			rel := strings.Index(lower[from:], needle)
			if rel < 0 {
				break
			}
			offset := from + rel
			payloadStart := strings.IndexByte(buf[offset+len(marker):], '{')
			if payloadStart < 0 {
				if earliestIncomplete < 0 || offset < earliestIncomplete {
					earliestIncomplete = offset
				}
				break
			}
			start := offset + len(marker) + payloadStart
			end, ok := jsonSpan(buf, start)
			if !ok {
				if earliestIncomplete < 0 || offset < earliestIncomplete {
					earliestIncomplete = offset
				}
				break
			}
			found = append(found, rawDirective{
				marker:     marker,
				offset:     offset,
				payloadRaw: buf[start:end],
			})
			from = end
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].offset < found[j].offset })
	return found, earliestIncomplete
}

// jsonSpan walks a JSON object from the opening brace at start, tracking
// string and escape state, and returns the index just past the matching
// close brace.
func jsonSpan(s string, start int) (int, bool) {
	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// nextCarry computes the buffer retained for the next chunk: everything
// from the earliest incomplete marker, or a bounded tail big enough to
// catch a marker split across chunks.
func nextCarry(buf string, earliestIncomplete int) string {
	if earliestIncomplete >= 0 {
		carry := buf[earliestIncomplete:]
		if len(carry) > maxCarryIncomplete {
			carry = carry[len(carry)-maxCarryIncomplete:]
		}
		return carry
	}

	keep := minCarryTail
	if l := 2 * longestMarkerLen(); l > keep {
		keep = l
	}
	if keep > maxCarryTail {
		keep = maxCarryTail
	}
	if len(buf) <= keep {
		return buf
	}
	return buf[len(buf)-keep:]
}

func longestMarkerLen() int {
	longest := 0
	for _, m := range markers {
		if len(m) > longest {
			longest = len(m)
		}
	}
	return longest
}

// payloadSignature identifies a directive for deduplication.
func payloadSignature(marker, payloadRaw string) string {
	sum := sha1.Sum([]byte(marker + "|" + payloadRaw))
	return hex.EncodeToString(sum[:])[:24]
}

type dispatchPayload struct {
	Target           string `json:"target"`
	Worker           string `json:"worker"`
	Session          string `json:"session"`
	Text             string `json:"text"`
	Task             string `json:"task"`
	Prompt           string `json:"prompt"`
	Message          string `json:"message"`
	Interrupt        bool   `json:"interrupt"`
	ForceInterrupt   bool   `json:"forceInterrupt"`
	InterruptMode    string `json:"interruptMode"`
	Initialize       bool   `json:"initialize"`
	Init             bool   `json:"init"`
	IncludeBootstrap bool   `json:"includeBootstrap"`
	First            bool   `json:"first"`
}

func parseDispatch(raw rawDirective) (Dispatch, bool) {
	var payload dispatchPayload
	if err := json.Unmarshal([]byte(raw.payloadRaw), &payload); err != nil {
		return Dispatch{}, false
	}

	text := strings.TrimSpace(firstNonEmpty(payload.Text, payload.Task, payload.Prompt, payload.Message))
	if isPlaceholderText(text) {
		return Dispatch{}, false
	}
	if len(text) > maxTaskText {
		text = text[:maxTaskText]
	}

	target := firstNonEmpty(payload.Target, payload.Worker)
	if target == "" && payload.Session != "" {
		target = "session:" + payload.Session
	}

	force := payload.ForceInterrupt ||
		payload.InterruptMode == "force" || payload.InterruptMode == "FORCE"

	return Dispatch{
		Target:                    target,
		Text:                      text,
		Interrupt:                 payload.Interrupt || force,
		ForceInterrupt:            force,
		IncludeBootstrapIfPresent: payload.Initialize || payload.Init || payload.IncludeBootstrap || payload.First,
		Source:                    raw.marker,
	}, true
}

// isPlaceholderText rejects empty tasks and template echoes.
func isPlaceholderText(text string) bool {
	if text == "" {
		return true
	}
	if wholePlaceholderPattern.MatchString(text) {
		return true
	}
	return placeholderPattern.MatchString(text)
}

func parseQuestionAnswer(raw rawDirective) (QuestionAnswer, bool) {
	var payload struct {
		AttentionID int64          `json:"attentionId"`
		OptionID    string         `json:"optionId"`
		Meta        map[string]any `json:"meta"`
	}
	if err := json.Unmarshal([]byte(raw.payloadRaw), &payload); err != nil {
		return QuestionAnswer{}, false
	}
	if payload.AttentionID <= 0 || strings.TrimSpace(payload.OptionID) == "" {
		return QuestionAnswer{}, false
	}
	return QuestionAnswer{
		AttentionID: payload.AttentionID,
		OptionID:    strings.TrimSpace(payload.OptionID),
		Source:      raw.marker,
		Meta:        payload.Meta,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
