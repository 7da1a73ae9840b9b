// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/wingedpig/fyp/internal/auth"
)

// PairHandler redeems pairing codes for the API token. Redemption is the one
// unauthenticated endpoint; minting a new code requires the token.
type PairHandler struct {
	auth *auth.Authenticator
}

// NewPairHandler creates a pairing handler.
func NewPairHandler(a *auth.Authenticator) *PairHandler {
	return &PairHandler{auth: a}
}

// Redeem exchanges a one-shot pairing code for the token.
func (h *PairHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if req.Code == "" {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "code is required")
		return
	}

	token, err := h.auth.Redeem(req.Code)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

// NewCode mints a pairing code. Sits behind the auth middleware, so only an
// already-paired client (or the CLI on the same machine) can mint codes.
func (h *PairHandler) NewCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.auth.NewCode()
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"code": code})
}
