// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package directive

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(window time.Duration) (*Parser, *time.Time) {
	p := NewParser(window)
	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestFeedSimpleDispatch(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("orch", `some output FYP_DISPATCH_JSON: {"target":"worker:alice","text":"run the tests"} trailing`)
	require.Len(t, res.Dispatches, 1)
	d := res.Dispatches[0]
	assert.Equal(t, "worker:alice", d.Target)
	assert.Equal(t, "run the tests", d.Text)
	assert.Equal(t, MarkerDispatch, d.Source)
	assert.False(t, d.Interrupt)
	assert.Empty(t, res.QuestionAnswers)
}

func TestFeedCaseInsensitiveMarker(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("orch", `fyp_send_task_json: {"target":"all","task":"build it"}`)
	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, "build it", res.Dispatches[0].Text)
	assert.Equal(t, MarkerSendTask, res.Dispatches[0].Source)
}

func TestFeedCRLFNormalized(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("orch", "FYP_DISPATCH_JSON:\r\n{\"target\":\"all\",\"text\":\"go\"}\r\n")
	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, "go", res.Dispatches[0].Text)
}

func TestFeedSplitAcrossChunks(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("orch", `FYP_DISPATCH_JSON: {"target":"worker:bob","text":"first ha`)
	assert.True(t, res.Empty())

	res = p.Feed("orch", `lf of the task"}`)
	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, "first half of the task", res.Dispatches[0].Text)
}

func TestFeedSplitMidMarker(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("orch", "noise noise FYP_DISPA")
	assert.True(t, res.Empty())

	res = p.Feed("orch", `TCH_JSON: {"target":"all","text":"joined"}`)
	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, "joined", res.Dispatches[0].Text)
}

func TestFeedBracesInsideStrings(t *testing.T) {
	p, _ := newTestParser(time.Second)

	payload := `{"target":"all","text":"use {curly} braces, a \"quote\", and a backslash \\"}`
	res := p.Feed("orch", "FYP_DISPATCH_JSON: "+payload)
	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, `use {curly} braces, a "quote", and a backslash \`, res.Dispatches[0].Text)
}

func TestFeedDedupeWindow(t *testing.T) {
	p, now := newTestParser(10 * time.Second)
	line := `FYP_DISPATCH_JSON: {"target":"all","text":"once"}`

	res := p.Feed("orch", line)
	require.Len(t, res.Dispatches, 1)

	// TUI redraw replays the same line inside the window.
	res = p.Feed("orch", line)
	assert.Empty(t, res.Dispatches)

	// Repeats keep refreshing lastSeen, so it stays suppressed.
	*now = now.Add(8 * time.Second)
	res = p.Feed("orch", line)
	assert.Empty(t, res.Dispatches)

	// Past the window since the last sighting it is a fresh directive.
	*now = now.Add(11 * time.Second)
	res = p.Feed("orch", line)
	assert.Len(t, res.Dispatches, 1)
}

func TestFeedDedupeIsPerSession(t *testing.T) {
	p, _ := newTestParser(time.Minute)
	line := `FYP_DISPATCH_JSON: {"target":"all","text":"shared"}`

	assert.Len(t, p.Feed("a", line).Dispatches, 1)
	assert.Len(t, p.Feed("b", line).Dispatches, 1)
}

func TestFeedPlaceholderFiltered(t *testing.T) {
	p, _ := newTestParser(time.Second)

	tests := []string{
		`{"target":"all","text":""}`,
		`{"target":"all","text":"<prompt>"}`,
		`{"target":"all","text":"  <the whole thing>  "}`,
		`{"target":"all","text":"please do <task prompt> now"}`,
		`{"target":"all","text":"answer with <question>"}`,
		`{"target":"all","text":"fill in <OBJECTIVE>"}`,
	}
	for i, payload := range tests {
		res := p.Feed(fmt.Sprintf("s%d", i), "FYP_DISPATCH_JSON: "+payload)
		assert.Empty(t, res.Dispatches, "payload %s", payload)
	}

	// Angle brackets that are not placeholders survive.
	res := p.Feed("ok", `FYP_DISPATCH_JSON: {"target":"all","text":"compare a < b and b > c"}`)
	assert.Len(t, res.Dispatches, 1)
}

func TestFeedInterruptFlags(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("a", `FYP_DISPATCH_JSON: {"target":"all","text":"t1","interrupt":true}`)
	require.Len(t, res.Dispatches, 1)
	assert.True(t, res.Dispatches[0].Interrupt)
	assert.False(t, res.Dispatches[0].ForceInterrupt)

	res = p.Feed("b", `FYP_DISPATCH_JSON: {"target":"all","text":"t2","forceInterrupt":true}`)
	require.Len(t, res.Dispatches, 1)
	assert.True(t, res.Dispatches[0].ForceInterrupt)
	assert.True(t, res.Dispatches[0].Interrupt)

	res = p.Feed("c", `FYP_DISPATCH_JSON: {"target":"all","text":"t3","interruptMode":"force"}`)
	require.Len(t, res.Dispatches, 1)
	assert.True(t, res.Dispatches[0].ForceInterrupt)

	res = p.Feed("d", `FYP_DISPATCH_JSON: {"target":"all","text":"t4","interruptMode":"FORCE"}`)
	require.Len(t, res.Dispatches, 1)
	assert.True(t, res.Dispatches[0].ForceInterrupt)

	res = p.Feed("e", `FYP_DISPATCH_JSON: {"target":"all","text":"t5","interruptMode":"soft"}`)
	require.Len(t, res.Dispatches, 1)
	assert.False(t, res.Dispatches[0].ForceInterrupt)
}

func TestFeedBootstrapFlags(t *testing.T) {
	p, _ := newTestParser(time.Second)

	for i, key := range []string{"initialize", "init", "includeBootstrap", "first"} {
		payload := fmt.Sprintf(`{"target":"all","text":"t%d","%s":true}`, i, key)
		res := p.Feed(fmt.Sprintf("s%d", i), "FYP_SEND_TASK_JSON: "+payload)
		require.Len(t, res.Dispatches, 1, key)
		assert.True(t, res.Dispatches[0].IncludeBootstrapIfPresent, key)
	}

	res := p.Feed("plain", `FYP_SEND_TASK_JSON: {"target":"all","text":"plain"}`)
	require.Len(t, res.Dispatches, 1)
	assert.False(t, res.Dispatches[0].IncludeBootstrapIfPresent)
}

func TestFeedTextCapped(t *testing.T) {
	p, _ := newTestParser(time.Second)

	long := strings.Repeat("a", maxTaskText+500)
	res := p.Feed("orch", `FYP_DISPATCH_JSON: {"target":"all","text":"`+long+`"}`)
	require.Len(t, res.Dispatches, 1)
	assert.Len(t, res.Dispatches[0].Text, maxTaskText)
}

func TestFeedQuestionAnswers(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("orch", `FYP_ANSWER_QUESTION_JSON: {"attentionId":42,"optionId":"approve","meta":{"note":"fine"}}`)
	require.Len(t, res.QuestionAnswers, 1)
	a := res.QuestionAnswers[0]
	assert.Equal(t, int64(42), a.AttentionID)
	assert.Equal(t, "approve", a.OptionID)
	assert.Equal(t, MarkerAnswerQuestion, a.Source)
	assert.Equal(t, "fine", a.Meta["note"])

	res = p.Feed("orch2", `FYP_QUESTION_RESPONSE_JSON: {"attentionId":7,"optionId":"deny"}`)
	require.Len(t, res.QuestionAnswers, 1)
	assert.Equal(t, MarkerQuestionResponse, res.QuestionAnswers[0].Source)
}

func TestFeedQuestionAnswerValidation(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("a", `FYP_ANSWER_QUESTION_JSON: {"attentionId":0,"optionId":"x"}`)
	assert.Empty(t, res.QuestionAnswers)

	res = p.Feed("b", `FYP_ANSWER_QUESTION_JSON: {"attentionId":-3,"optionId":"x"}`)
	assert.Empty(t, res.QuestionAnswers)

	res = p.Feed("c", `FYP_ANSWER_QUESTION_JSON: {"attentionId":5,"optionId":"  "}`)
	assert.Empty(t, res.QuestionAnswers)
}

func TestFeedMalformedJSONSkipped(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("orch", `FYP_DISPATCH_JSON: {"target":"all","text":} FYP_DISPATCH_JSON: {"target":"all","text":"good"}`)
	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, "good", res.Dispatches[0].Text)
}

func TestFeedOrderedByOffset(t *testing.T) {
	p, _ := newTestParser(time.Second)

	chunk := `FYP_SEND_TASK_JSON: {"target":"worker:a","text":"one"}` +
		` FYP_ANSWER_QUESTION_JSON: {"attentionId":1,"optionId":"yes"}` +
		` FYP_DISPATCH_JSON: {"target":"worker:b","text":"two"}`
	res := p.Feed("orch", chunk)
	require.Len(t, res.Dispatches, 2)
	require.Len(t, res.QuestionAnswers, 1)
	assert.Equal(t, "one", res.Dispatches[0].Text)
	assert.Equal(t, "two", res.Dispatches[1].Text)
}

func TestFeedSessionTargetAlias(t *testing.T) {
	p, _ := newTestParser(time.Second)

	res := p.Feed("orch", `FYP_DISPATCH_JSON: {"session":"abc123","text":"direct"}`)
	require.Len(t, res.Dispatches, 1)
	assert.Equal(t, "session:abc123", res.Dispatches[0].Target)
}

func TestRecentSignatureCap(t *testing.T) {
	p, _ := newTestParser(time.Hour)

	for i := 0; i < maxRecentSigs+40; i++ {
		p.Feed("orch", fmt.Sprintf(`FYP_DISPATCH_JSON: {"target":"all","text":"task %d"}`, i))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.LessOrEqual(t, len(p.sessions["orch"].recent), maxRecentSigs)
}

func TestRecentSignatureGC(t *testing.T) {
	p, now := newTestParser(time.Second)

	p.Feed("orch", `FYP_DISPATCH_JSON: {"target":"all","text":"old"}`)
	*now = now.Add(10 * time.Second) // past 8x the window
	p.Feed("orch", `FYP_DISPATCH_JSON: {"target":"all","text":"new"}`)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Len(t, p.sessions["orch"].recent, 1)
}

func TestForgetClearsState(t *testing.T) {
	p, _ := newTestParser(time.Minute)
	line := `FYP_DISPATCH_JSON: {"target":"all","text":"again"}`

	assert.Len(t, p.Feed("orch", line).Dispatches, 1)
	assert.Empty(t, p.Feed("orch", line).Dispatches)

	p.Forget("orch")
	assert.Len(t, p.Feed("orch", line).Dispatches, 1)
}

func TestJSONSpan(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		start int
		end   int
		ok    bool
	}{
		{"flat", `{"a":1}`, 0, 7, true},
		{"nested", `{"a":{"b":{}}}x`, 0, 14, true},
		{"string braces", `{"a":"}{"}`, 0, 10, true},
		{"escaped quote", `{"a":"\"}"}`, 0, 11, true},
		{"incomplete", `{"a":1`, 0, 0, false},
		{"incomplete nested", `{"a":{"b":1}`, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end, ok := jsonSpan(tt.in, tt.start)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.end, end)
			}
		})
	}
}

func TestCarryOverTailBounded(t *testing.T) {
	p, _ := newTestParser(time.Second)

	p.Feed("orch", strings.Repeat("x", 10000))
	p.mu.Lock()
	carry := p.sessions["orch"].carry
	p.mu.Unlock()

	assert.LessOrEqual(t, len(carry), maxCarryTail)
	assert.GreaterOrEqual(t, len(carry), minCarryTail)
}

func TestCarryOverIncompleteKeepsPayload(t *testing.T) {
	p, _ := newTestParser(time.Second)

	head := `FYP_DISPATCH_JSON: {"target":"all","text":"` + strings.Repeat("y", 6000)
	p.Feed("orch", head)

	p.mu.Lock()
	carry := p.sessions["orch"].carry
	p.mu.Unlock()
	assert.True(t, strings.HasPrefix(carry, "FYP_DISPATCH_JSON:"))
	assert.Greater(t, len(carry), maxCarryTail)

	res := p.Feed("orch", `"}`)
	require.Len(t, res.Dispatches, 1)
	assert.Len(t, res.Dispatches[0].Text, 6000)
}
