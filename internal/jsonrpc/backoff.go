// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBaseMs   = 250
	backoffFactor   = 1.7
	backoffMaxExp   = 9
	backoffJitterMs = 140
	backoffCapMs    = 6000
)

// backoffDelay computes the reconnect delay for the given attempt number
// (0-based): exponential growth with jitter, capped at six seconds.
func backoffDelay(attempt int) time.Duration {
	exp := attempt
	if exp > backoffMaxExp {
		exp = backoffMaxExp
	}
	ms := math.Floor(backoffBaseMs*math.Pow(backoffFactor, float64(exp)) + rand.Float64()*backoffJitterMs)
	if ms > backoffCapMs {
		ms = backoffCapMs
	}
	return time.Duration(ms) * time.Millisecond
}
