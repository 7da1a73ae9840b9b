// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

// SessionHandler serves the session CRUD and control surface.
type SessionHandler struct {
	st  *store.Store
	sup session.Supervisor
	eng *orchestrate.Engine
	bus events.EventBus
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(st *store.Store, sup session.Supervisor, eng *orchestrate.Engine, bus events.EventBus) *SessionHandler {
	return &SessionHandler{st: st, sup: sup, eng: eng, bus: bus}
}

// sessionView is a persisted session row plus its live process state.
type sessionView struct {
	*store.Session
	Status session.Status `json:"status"`
}

func (h *SessionHandler) view(row *store.Session) sessionView {
	status, err := h.sup.Status(row.ID)
	if err != nil {
		// Not under supervision (restarted server); the row's exit fields
		// are all we know.
		status = session.Status{Running: false, ExitCode: row.ExitCode, Signal: row.ExitSignal}
	}
	return sessionView{Session: row, Status: status}
}

// List returns all sessions, newest first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.st.ListSessions()
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	views := make([]sessionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, h.view(row))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

// Create spawns a standalone session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in orchestrate.CreateSessionInput
	if err := decodeBody(r, &in); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	row, err := h.eng.CreateSession(in)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, h.view(row))
}

// Get returns one session with live status.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	row, err := h.st.GetSession(mux.Vars(r)["id"])
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.view(row))
}

// Delete removes a session. Running sessions are refused unless ?force.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	force := queryBool(r, "force")
	if err := h.eng.DeleteSession(id, force); err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id})
}

// Input writes text to the session's PTY.
func (h *SessionHandler) Input(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if req.Text == "" {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "text is required")
		return
	}
	if err := h.sup.Write(id, req.Text); err != nil {
		WriteCoreError(w, err)
		return
	}
	h.emit(id, events.KindInput, map[string]interface{}{"bytes": len(req.Text)})
	WriteJSON(w, http.StatusOK, map[string]interface{}{"sent": true})
}

// Interrupt sends Ctrl-C / SIGINT.
func (h *SessionHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sup.Interrupt(id); err != nil {
		WriteCoreError(w, err)
		return
	}
	h.emit(id, events.KindInterrupt, nil)
	WriteJSON(w, http.StatusOK, map[string]interface{}{"interrupted": true})
}

// Kill sends SIGKILL.
func (h *SessionHandler) Kill(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sup.Kill(id); err != nil {
		WriteCoreError(w, err)
		return
	}
	h.emit(id, events.KindKill, nil)
	WriteJSON(w, http.StatusOK, map[string]interface{}{"killed": true})
}

// Resize changes the PTY geometry.
func (h *SessionHandler) Resize(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "cols and rows must be positive")
		return
	}
	if err := h.sup.Resize(id, req.Cols, req.Rows); err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"resized": true})
}

// Output returns the transcript tail as text.
func (h *SessionHandler) Output(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.st.GetSession(id); err != nil {
		WriteCoreError(w, err)
		return
	}
	maxBytes := queryInt(r, "maxBytes", 16384)
	text, err := h.st.TranscriptText(id, maxBytes)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"text": text})
}

// Events returns persisted event rows for the session.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.st.GetSession(id); err != nil {
		WriteCoreError(w, err)
		return
	}
	after := int64(queryInt(r, "after", 0))
	limit := queryInt(r, "limit", 200)
	rows, err := h.st.ListEvents(id, after, limit)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"events": rows})
}

// Pin claims a pinned slot (1-6) for the session; slot 0 unpins.
func (h *SessionHandler) Pin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Slot int `json:"slot"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if err := h.st.PinSession(id, req.Slot); err != nil {
		WriteCoreError(w, err)
		return
	}
	row, err := h.st.GetSession(id)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.view(row))
}

func (h *SessionHandler) emit(sessionID, kind string, data map[string]interface{}) {
	storeID, err := h.st.AppendEvent(sessionID, kind, data)
	if err != nil {
		log.Printf("api: persist %s event for %s: %v", kind, sessionID, err)
	}
	ev := events.Event{
		Kind:      kind,
		SessionID: sessionID,
		Data:      data,
		StoreID:   storeID,
	}
	if err := h.bus.Publish(context.Background(), ev); err != nil {
		log.Printf("api: publish %s event for %s: %v", kind, sessionID, err)
	}
}

func queryBool(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	return v == "1" || v == "true"
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
