// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wingedpig/fyp/internal/digest"
	"github.com/wingedpig/fyp/internal/orchestrate"
)

// OrchestrationHandler serves the orchestration lifecycle.
type OrchestrationHandler struct {
	eng   *orchestrate.Engine
	sched *digest.Scheduler
}

// NewOrchestrationHandler creates an orchestration handler.
func NewOrchestrationHandler(eng *orchestrate.Engine, sched *digest.Scheduler) *OrchestrationHandler {
	return &OrchestrationHandler{eng: eng, sched: sched}
}

// List returns all orchestrations.
func (h *OrchestrationHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orchestrations": h.eng.List(),
	})
}

// Create starts a new orchestration.
func (h *OrchestrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in orchestrate.CreateInput
	if err := decodeBody(r, &in); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	doc, err := h.eng.Create(r.Context(), in)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, doc)
}

// Get returns one orchestration including startup, sync, and automation
// state.
func (h *OrchestrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.eng.Get(mux.Vars(r)["id"])
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

// Dispatch writes text to one or more workers.
func (h *OrchestrationHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var in orchestrate.DispatchInput
	if err := decodeBody(r, &in); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	out, err := h.eng.Dispatch(mux.Vars(r)["id"], in)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	if !out.OK {
		WriteErrorWithDetails(w, http.StatusBadRequest, out.Reason, "dispatch failed",
			map[string]interface{}{"availableTargets": out.AvailableTargets})
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Sync runs a manual digest.
func (h *OrchestrationHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force   bool  `json:"force,omitempty"`
		Deliver *bool `json:"deliver,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	deliver := true
	if req.Deliver != nil {
		deliver = *req.Deliver
	}
	out, err := h.sched.Sync(mux.Vars(r)["id"], req.Force, deliver, digest.TriggerManual)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// PatchAutomation updates the automation policy. Only fields present in the
// body change; counters are read-only.
func (h *OrchestrationHandler) PatchAutomation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionMode      *string `json:"questionMode,omitempty"`
		SteeringMode      *string `json:"steeringMode,omitempty"`
		YoloMode          *bool   `json:"yoloMode,omitempty"`
		QuestionTimeoutMs *int    `json:"questionTimeoutMs,omitempty"`
		ReviewIntervalMs  *int    `json:"reviewIntervalMs,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	if req.QuestionMode != nil &&
		*req.QuestionMode != orchestrate.QuestionInline && *req.QuestionMode != orchestrate.QuestionOrchestrator {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "questionMode must be inline or orchestrator")
		return
	}
	if req.SteeringMode != nil &&
		*req.SteeringMode != orchestrate.SteeringOff && *req.SteeringMode != orchestrate.SteeringPassiveReview {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "steeringMode must be off or passive_review")
		return
	}

	doc, err := h.eng.UpdateAutomation(mux.Vars(r)["id"], func(a *orchestrate.AutomationState) {
		if req.QuestionMode != nil {
			a.Policy.QuestionMode = *req.QuestionMode
		}
		if req.SteeringMode != nil {
			a.Policy.SteeringMode = *req.SteeringMode
		}
		if req.YoloMode != nil {
			a.Policy.YoloMode = *req.YoloMode
		}
		if req.QuestionTimeoutMs != nil {
			a.Policy.QuestionTimeoutMs = *req.QuestionTimeoutMs
		}
		if req.ReviewIntervalMs != nil {
			a.Policy.ReviewIntervalMs = *req.ReviewIntervalMs
		}
	})
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc.Automation)
}

// Cleanup stops sessions and removes worktrees. Holds the orchestration
// lock for its entire run; a concurrent cleanup gets orchestration_locked.
func (h *OrchestrationHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var in orchestrate.CleanupInput
	if err := decodeBody(r, &in); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadInput, "invalid JSON body")
		return
	}
	summary, err := h.eng.Cleanup(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		WriteCoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}
