// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := backoffDelay(0)
		assert.GreaterOrEqual(t, d, 250*time.Millisecond)
		assert.Less(t, d, 391*time.Millisecond)
	}

	for i := 0; i < 50; i++ {
		d := backoffDelay(1)
		assert.GreaterOrEqual(t, d, 425*time.Millisecond)
		assert.Less(t, d, 566*time.Millisecond)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	// 250*1.7^7 already exceeds the cap, so high attempts all land on it.
	for _, attempt := range []int{7, 9, 15, 100} {
		assert.Equal(t, 6*time.Second, backoffDelay(attempt), "attempt %d", attempt)
	}
}

func TestBackoffDelayMonotonicExponent(t *testing.T) {
	// Lower bounds (without jitter) grow with the attempt number.
	prev := time.Duration(0)
	for attempt := 0; attempt <= 6; attempt++ {
		d := backoffDelay(attempt)
		assert.Greater(t, d, prev)
		prev = d - 141*time.Millisecond // discount worst-case jitter
	}
}
