// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/fyp/internal/attention"
	"github.com/wingedpig/fyp/internal/auth"
	"github.com/wingedpig/fyp/internal/command"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWriteJSON_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	require.NotNil(t, resp.Meta)
	assert.False(t, resp.Meta.Timestamp.IsZero())
}

func TestWriteRaw_PreservesBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRaw(rec, http.StatusOK, json.RawMessage(`{"ok":true,"command":"diag-evidence"}`))

	assert.Equal(t, `{"data":{"ok":true,"command":"diag-evidence"}}`, rec.Body.String())
}

func TestWriteCoreError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"input error", &orchestrate.InputError{Code: "bad_branch", Message: "nope"}, http.StatusBadRequest, "bad_branch"},
		{"orchestration not found", orchestrate.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"locked", orchestrate.ErrLocked, http.StatusConflict, CodeOrchestrationLocked},
		{"cleaned", orchestrate.ErrCleaned, http.StatusConflict, CodeOrchestrationCleaned},
		{"running", orchestrate.ErrRunning, http.StatusConflict, CodeSessionRunning},
		{"unknown session", session.ErrUnknownSession, http.StatusNotFound, CodeUnknownSession},
		{"session exists", session.ErrAlreadyExists, http.StatusConflict, CodeSessionExists},
		{"attention closed", fmt.Errorf("attention 3 is resolved: %w", attention.ErrAlreadyClosed), http.StatusConflict, "already_closed"},
		{"attention option", fmt.Errorf("no option: %w", attention.ErrUnknownOption), http.StatusBadRequest, CodeBadInput},
		{"wrapped", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteCoreError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeEnvelope(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestWriteCoreError_GateError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteCoreError(rec, &command.GateError{
		Code:    command.CodePolicyBlocked,
		Message: "security-vuln-repro is high tier",
		Details: map[string]any{"tier": "high"},
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, command.CodePolicyBlocked, resp.Error.Code)
	assert.Equal(t, "high", resp.Error.Details["tier"])

	rec = httptest.NewRecorder()
	WriteCoreError(rec, &command.GateError{Code: command.CodeUnknownCommand, Message: "unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteCoreError_RedeemError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteCoreError(rec, &auth.RedeemError{Reason: auth.ReasonInvalidCode})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	WriteCoreError(rec, &auth.RedeemError{Reason: auth.ReasonLocked})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, auth.ReasonLocked, resp.Error.Code)
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?force=1&limit=25&bad=zzz", nil)
	assert.True(t, queryBool(r, "force"))
	assert.False(t, queryBool(r, "missing"))
	assert.Equal(t, 25, queryInt(r, "limit", 10))
	assert.Equal(t, 10, queryInt(r, "missing", 10))
	assert.Equal(t, 10, queryInt(r, "bad", 10))
}

func TestDecodeBody_EmptyBodyOK(t *testing.T) {
	var dst struct {
		Force bool `json:"force"`
	}
	r := httptest.NewRequest("POST", "/x", nil)
	require.NoError(t, decodeBody(r, &dst))
	assert.False(t, dst.Force)
}
