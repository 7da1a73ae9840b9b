// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/wingedpig/fyp/internal/attention"
	"github.com/wingedpig/fyp/internal/auth"
	"github.com/wingedpig/fyp/internal/command"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

// Response is the standard API response wrapper.
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
	Meta  *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo carries a stable reason code plus a human message.
type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MetaInfo contains response metadata.
type MetaInfo struct {
	Timestamp time.Time `json:"timestamp"`
}

// Reason codes the handlers surface directly. Core packages carry their own
// codes (GateError, InputError, RedeemError); these cover the gaps.
const (
	CodeBadInput             = "bad_input"
	CodeUnauthorized         = "unauthorized"
	CodeNotFound             = "not_found"
	CodeUnknownSession       = "unknown_session"
	CodeSessionExists        = "session_already_exists"
	CodeSessionRunning       = "session_running"
	CodeOrchestrationLocked  = "orchestration_locked"
	CodeOrchestrationCleaned = "orchestration_cleaned"
	CodeInternal             = "internal"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	resp := Response{
		Data: data,
		Meta: &MetaInfo{Timestamp: time.Now()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// WriteRaw writes pre-marshaled JSON as the data field. Used by the command
// gate, whose replayed responses must stay byte-identical.
func WriteRaw(w http.ResponseWriter, status int, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"data":`))
	w.Write(data)
	w.Write([]byte(`}`))
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, nil)
}

// WriteErrorWithDetails writes an error response with details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	resp := Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: &MetaInfo{Timestamp: time.Now()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// WriteCoreError maps core package errors onto HTTP status + reason code.
func WriteCoreError(w http.ResponseWriter, err error) {
	var ie *orchestrate.InputError
	if errors.As(err, &ie) {
		WriteError(w, http.StatusBadRequest, ie.Code, ie.Message)
		return
	}

	var ge *command.GateError
	if errors.As(err, &ge) {
		status := http.StatusBadRequest
		switch ge.Code {
		case command.CodeUnknownCommand:
			status = http.StatusNotFound
		case command.CodePolicyBlocked:
			status = http.StatusForbidden
		}
		WriteErrorWithDetails(w, status, ge.Code, ge.Message, ge.Details)
		return
	}

	var re *auth.RedeemError
	if errors.As(err, &re) {
		status := http.StatusUnauthorized
		if re.Reason == auth.ReasonLocked {
			status = http.StatusTooManyRequests
		}
		WriteError(w, status, re.Reason, "pairing code rejected")
		return
	}

	switch {
	case errors.Is(err, attention.ErrAlreadyClosed):
		WriteError(w, http.StatusConflict, "already_closed", err.Error())
	case errors.Is(err, attention.ErrUnknownOption):
		WriteError(w, http.StatusBadRequest, CodeBadInput, err.Error())
	case errors.Is(err, orchestrate.ErrNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, orchestrate.ErrLocked):
		WriteError(w, http.StatusConflict, CodeOrchestrationLocked, err.Error())
	case errors.Is(err, orchestrate.ErrCleaned):
		WriteError(w, http.StatusConflict, CodeOrchestrationCleaned, err.Error())
	case errors.Is(err, orchestrate.ErrRunning):
		WriteError(w, http.StatusConflict, CodeSessionRunning, err.Error())
	case errors.Is(err, session.ErrUnknownSession):
		WriteError(w, http.StatusNotFound, CodeUnknownSession, err.Error())
	case errors.Is(err, session.ErrAlreadyExists):
		WriteError(w, http.StatusConflict, CodeSessionExists, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst
// untouched so POST endpoints with all-optional fields accept no payload.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
