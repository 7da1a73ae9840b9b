// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/wingedpig/fyp/internal/command"
)

// CommandHandler exposes the command gate and its catalog.
type CommandHandler struct {
	gate *command.Gate
}

// NewCommandHandler creates a command handler.
func NewCommandHandler(gate *command.Gate) *CommandHandler {
	return &CommandHandler{gate: gate}
}

// Execute runs a catalog command. The Idempotency-Key header makes the call
// replay-safe: a repeated key returns the stored body with replayed:true.
func (h *CommandHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req command.ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if req.Command == "" {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "command is required")
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	body, err := h.gate.Execute(&req)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteRaw(w, http.StatusOK, body)
}

// catalogEntry is the listing view of one command.
type catalogEntry struct {
	ID               string   `json:"id"`
	Mode             string   `json:"mode"`
	Tier             string   `json:"tier"`
	Summary          string   `json:"summary,omitempty"`
	RequiredNonEmpty []string `json:"requiredNonEmpty,omitempty"`
	RequiredAnyOf    []string `json:"requiredAnyOf,omitempty"`
}

// Catalog lists every command with its mode and risk tier.
func (h *CommandHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	cmds := h.gate.Catalog().List()
	entries := make([]catalogEntry, 0, len(cmds))
	for _, c := range cmds {
		entries = append(entries, catalogEntry{
			ID:               c.ID,
			Mode:             c.Mode,
			Tier:             c.Tier,
			Summary:          c.Summary,
			RequiredNonEmpty: c.RequiredNonEmpty,
			RequiredAnyOf:    c.RequiredAnyOf,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"commands": entries})
}
