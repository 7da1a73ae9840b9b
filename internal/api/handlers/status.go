// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/wingedpig/fyp/internal/attention"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

// StatusHandler reports server health and counts.
type StatusHandler struct {
	st        *store.Store
	sup       session.Supervisor
	eng       *orchestrate.Engine
	inbox     *attention.Router
	version   string
	startedAt time.Time
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(st *store.Store, sup session.Supervisor, eng *orchestrate.Engine, inbox *attention.Router, version string) *StatusHandler {
	return &StatusHandler{
		st:        st,
		sup:       sup,
		eng:       eng,
		inbox:     inbox,
		version:   version,
		startedAt: time.Now(),
	}
}

// Get returns server info plus session/orchestration/inbox counts.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.st.ListSessions()
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	running := 0
	for _, s := range sessions {
		if status, err := h.sup.Status(s.ID); err == nil && status.Running {
			running++
		}
	}

	active := 0
	for _, o := range h.eng.List() {
		if o.Status == orchestrate.StatusActive {
			active++
		}
	}

	inboxCounts, err := h.inbox.Counts()
	if err != nil {
		WriteCoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":   h.version,
		"pid":       os.Getpid(),
		"startedAt": h.startedAt,
		"uptimeMs":  time.Since(h.startedAt).Milliseconds(),
		"sessions": map[string]int{
			"total":   len(sessions),
			"running": running,
		},
		"orchestrations": map[string]int{
			"active": active,
		},
		"inbox":            inboxCounts,
		"pendingQuestions": h.inbox.PendingCount(),
	})
}
