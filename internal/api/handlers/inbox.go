// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wingedpig/fyp/internal/attention"
)

// InboxHandler serves the attention inbox.
type InboxHandler struct {
	router *attention.Router
}

// NewInboxHandler creates an inbox handler.
func NewInboxHandler(router *attention.Router) *InboxHandler {
	return &InboxHandler{router: router}
}

// List returns attention items plus per-session open counts.
func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := attention.ListFilter{
		SessionID:    query.Get("sessionId"),
		WorkspaceKey: query.Get("workspaceKey"),
		Cwd:          query.Get("cwd"),
		Status:       query.Get("status"),
		Limit:        queryInt(r, "limit", 0),
	}

	items, err := h.router.List(filter)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	counts, err := h.router.Counts()
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"counts": counts,
	})
}

// Create inserts an attention item, deduping by signature.
func (h *InboxHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in attention.CreateInput
	if err := decodeBody(r, &in); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if in.SessionID == "" || in.Title == "" {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "sessionId and title are required")
		return
	}
	res, err := h.router.Create(in)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	status := http.StatusCreated
	if !res.OK {
		// Duplicate signature touched the existing row.
		status = http.StatusOK
	}
	WriteJSON(w, status, res)
}

// Get returns one attention item.
func (h *InboxHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	item, err := h.router.Get(id)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// Respond resolves an item by sending the chosen option to its session.
func (h *InboxHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req struct {
		OptionID string         `json:"optionId"`
		Meta     map[string]any `json:"meta,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if req.OptionID == "" {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "optionId is required")
		return
	}

	item, err := h.router.Respond(id, req.OptionID, req.Meta, attention.SourceHuman)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// Dismiss closes an item without responding.
func (h *InboxHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	item, err := h.router.Dismiss(id, attention.SourceHuman)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

func (h *InboxHandler) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "attention id must be numeric")
		return 0, false
	}
	return id, true
}
