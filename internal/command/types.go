// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package command is the execution gate for named orchestration commands.
// Every command is declared in an embedded catalog with a schema envelope
// and a risk tier; execution validates, applies the risk policy, then runs
// one of five modes against the orchestration engine.
package command

import "encoding/json"

// Execution modes.
const (
	ModeWorkerDispatch    = "worker.dispatch"
	ModeWorkerSendTask    = "worker.send_task"
	ModeOrchestratorInput = "orchestrator.input"
	ModeSystemSync        = "system.sync"
	ModeSystemReview      = "system.review"
)

// Risk tiers.
const (
	TierLow    = "low"
	TierMedium = "medium"
	TierHigh   = "high"
)

// Command is one catalog entry.
type Command struct {
	ID               string   `yaml:"id" json:"id"`
	Mode             string   `yaml:"mode" json:"mode"`
	Tier             string   `yaml:"tier" json:"tier"`
	Summary          string   `yaml:"summary" json:"summary"`
	Schema           *Schema  `yaml:"schema" json:"schema"`
	RequiredNonEmpty []string `yaml:"requiredNonEmpty,omitempty" json:"requiredNonEmpty,omitempty"`
	RequiredAnyOf    []string `yaml:"requiredAnyOf,omitempty" json:"requiredAnyOf,omitempty"`
}

// ExecuteRequest is one gate invocation. Policy fields ride alongside the
// payload so the risk evaluation does not depend on payload schemas.
type ExecuteRequest struct {
	Command         string         `json:"command"`
	OrchestrationID string         `json:"orchestrationId"`
	Payload         map[string]any `json:"payload"`

	Force                 bool   `json:"force,omitempty"`
	PolicyAck             bool   `json:"policyAck,omitempty"`
	PolicyReason          string `json:"policyReason,omitempty"`
	PolicyApprovedBy      string `json:"policyApprovedBy,omitempty"`
	RollbackPlan          string `json:"rollbackPlan,omitempty"`
	PolicyAuthorizedScope string `json:"policyAuthorizedScope,omitempty"`
	PolicyOverride        bool   `json:"policyOverride,omitempty"`

	// IdempotencyKey comes from the idempotency-key request header, scoped
	// by orchestration id.
	IdempotencyKey string `json:"-"`
}

// PolicyInfo reports the risk evaluation on a response.
type PolicyInfo struct {
	Tier     string `json:"tier"`
	Forced   bool   `json:"forced,omitempty"`
	Override bool   `json:"override,omitempty"`
}

// ExecuteResponse is the gate's success payload.
type ExecuteResponse struct {
	OK       bool            `json:"ok"`
	Command  string          `json:"command"`
	Mode     string          `json:"mode"`
	Policy   PolicyInfo      `json:"policy"`
	Replayed bool            `json:"replayed"`
	Dispatch json.RawMessage `json:"dispatch,omitempty"`
	Sync     json.RawMessage `json:"sync,omitempty"`
	Packet   string          `json:"packet,omitempty"`
}

// GateError is a structured refusal with a stable reason code.
type GateError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *GateError) Error() string { return e.Code + ": " + e.Message }

// Gate error codes.
const (
	CodeUnknownCommand = "unknown_command"
	CodeInvalidPayload = "command_invalid_payload"
	CodePolicyBlocked  = "command_policy_blocked"
)
