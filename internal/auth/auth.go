// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth holds the API token check and one-shot pairing codes. The
// token is configured once; pairing codes are short-lived, in-memory, and
// redeemable exactly once for that token.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// EnvAllowQueryToken enables ?token= authentication when set to "1".
// Off by default: query strings end up in logs.
const EnvAllowQueryToken = "FYP_ALLOW_QUERY_TOKEN_AUTH"

// TokenCookie is the cookie the browser UI stores the token in.
const TokenCookie = "fyp_token"

// Redeem failure reasons.
const (
	ReasonInvalidCode = "invalid_code"
	ReasonExpired     = "expired"
	ReasonLocked      = "locked"
)

// Codes avoid 0/O and 1/I/L lookalikes; they are read off a terminal.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const codeLength = 8

// RedeemError reports why a pairing code was rejected.
type RedeemError struct {
	Reason string
}

func (e *RedeemError) Error() string { return "pairing: " + e.Reason }

type pairingEntry struct {
	expiresAt time.Time
}

// Authenticator checks request tokens and issues pairing codes.
type Authenticator struct {
	token string

	// codes live twice their redeemable TTL so an expired code can be told
	// apart from one that never existed.
	codes       *cache.Cache
	ttl         time.Duration
	maxAttempts int

	mu          sync.Mutex
	failures    int
	lockedUntil time.Time

	now func() time.Time
}

// New creates an authenticator. An empty token disables auth entirely
// (loopback-only development), matching the config validator's warning.
func New(token string, ttl time.Duration, maxAttempts int) *Authenticator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Authenticator{
		token:       token,
		codes:       cache.New(2*ttl, ttl),
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Enabled reports whether a token is configured.
func (a *Authenticator) Enabled() bool { return a.token != "" }

// CheckToken compares a presented token in constant time.
func (a *Authenticator) CheckToken(presented string) bool {
	if a.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(a.token), []byte(presented)) == 1
}

// CheckRequest extracts and checks the token from a request: Authorization
// bearer, then cookie, then (if enabled by env) the token query parameter.
func (a *Authenticator) CheckRequest(r *http.Request) bool {
	if a.token == "" {
		return true
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return a.CheckToken(tok)
		}
	}
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return a.CheckToken(c.Value)
	}
	if os.Getenv(EnvAllowQueryToken) == "1" {
		if tok := r.URL.Query().Get("token"); tok != "" {
			return a.CheckToken(tok)
		}
	}
	return false
}

// NewCode mints a pairing code that can be redeemed once for the API token
// within the authenticator's TTL.
func (a *Authenticator) NewCode() (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", err
	}
	a.codes.Set(code, &pairingEntry{expiresAt: a.now().Add(a.ttl)}, cache.DefaultExpiration)
	return code, nil
}

// Redeem exchanges a pairing code for the API token. Codes are one-shot.
// Wrong guesses count against a shared budget; exhausting it locks pairing
// for one TTL, so a brute force cannot walk the code space.
func (a *Authenticator) Redeem(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	now := a.now()

	a.mu.Lock()
	if now.Before(a.lockedUntil) {
		a.mu.Unlock()
		return "", &RedeemError{Reason: ReasonLocked}
	}
	a.mu.Unlock()

	v, found := a.codes.Get(code)
	if found {
		entry := v.(*pairingEntry)
		a.codes.Delete(code)
		if now.After(entry.expiresAt) {
			return "", &RedeemError{Reason: ReasonExpired}
		}
		a.mu.Lock()
		a.failures = 0
		a.mu.Unlock()
		return a.token, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures++
	if a.failures >= a.maxAttempts {
		a.lockedUntil = now.Add(a.ttl)
		a.failures = 0
		return "", &RedeemError{Reason: ReasonLocked}
	}
	return "", &RedeemError{Reason: ReasonInvalidCode}
}

// PendingCodes reports how many codes are held (including recently expired
// ones awaiting eviction).
func (a *Authenticator) PendingCodes() int { return a.codes.ItemCount() }

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("pairing code entropy: %w", err)
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
