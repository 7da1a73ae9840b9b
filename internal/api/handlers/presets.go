// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/wingedpig/fyp/internal/store"
)

// PresetHandler remembers per-workspace tool settings.
type PresetHandler struct {
	st *store.Store
}

// NewPresetHandler creates a preset handler.
func NewPresetHandler(st *store.Store) *PresetHandler {
	return &PresetHandler{st: st}
}

// Get returns the preset for ?path=&tool=, or all presets for the path when
// tool is omitted.
func (h *PresetHandler) Get(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "path is required")
		return
	}
	tool := r.URL.Query().Get("tool")

	if tool == "" {
		presets, err := h.st.ListPresets(path)
		if err != nil {
			WriteCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"presets": presets})
		return
	}

	preset, err := h.st.GetPreset(path, tool)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, preset)
}

// Put upserts the preset for (path, tool).
func (h *PresetHandler) Put(w http.ResponseWriter, r *http.Request) {
	var p store.WorkspacePreset
	if err := decodeBody(r, &p); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if p.Path == "" || p.Tool == "" {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "path and tool are required")
		return
	}
	if err := h.st.UpsertPreset(&p); err != nil {
		WriteCoreError(w, err)
		return
	}
	saved, err := h.st.GetPreset(p.Path, p.Tool)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, saved)
}
