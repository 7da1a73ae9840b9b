// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"strings"

	"github.com/wingedpig/fyp/internal/auth"
)

// Auth rejects requests that do not carry the API token. Pairing is exempt:
// it is how a client without a token obtains one.
func Auth(a *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil || !a.Enabled() || authExempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !a.CheckRequest(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"code":"unauthorized","message":"missing or invalid token"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authExempt(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	return strings.HasSuffix(r.URL.Path, "/pair")
}
