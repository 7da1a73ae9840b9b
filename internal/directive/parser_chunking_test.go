// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package directive

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestFeedChunkingInvariance checks that splitting a PTY stream into
// arbitrary chunks yields the same directives as feeding it whole. The
// noise alphabet has no underscores or colons so it cannot form a marker,
// and each payload carries its index so dedupe never collapses two
// distinct directives.
func TestFeedChunkingInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		noise := rapid.StringMatching(`[a-z .\n]{0,40}`)

		var stream strings.Builder
		count := rapid.IntRange(1, 6).Draw(t, "count")
		for i := 0; i < count; i++ {
			stream.WriteString(noise.Draw(t, "noise"))
			if rapid.Bool().Draw(t, "isAnswer") {
				fmt.Fprintf(&stream, `FYP_ANSWER_QUESTION_JSON: {"attentionId":%d,"optionId":"opt-%d"}`, i+1, i)
			} else {
				text := rapid.StringMatching(`[a-zA-Z0-9 ]{1,40}`).Draw(t, "text")
				fmt.Fprintf(&stream, `FYP_DISPATCH_JSON: {"target":"worker:w%d","text":"%s %d"}`, i, text, i)
			}
		}
		stream.WriteString(noise.Draw(t, "tail"))
		full := stream.String()

		single := NewParser(time.Hour)
		want := single.Feed("s", full)

		chunked := NewParser(time.Hour)
		var got Result
		rest := full
		for len(rest) > 0 {
			n := rapid.IntRange(1, len(rest)).Draw(t, "chunkLen")
			res := chunked.Feed("s", rest[:n])
			got.Dispatches = append(got.Dispatches, res.Dispatches...)
			got.QuestionAnswers = append(got.QuestionAnswers, res.QuestionAnswers...)
			rest = rest[n:]
		}

		require.Equal(t, want.Dispatches, got.Dispatches)
		require.Equal(t, want.QuestionAnswers, got.QuestionAnswers)
	})
}
