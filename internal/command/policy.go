// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"os"
	"strings"
)

// EnvAllowHighRisk must be "1" or "true" for policyOverride to bypass the
// high-tier requirements. Read at evaluation time, not at startup.
const EnvAllowHighRisk = "FYP_HARNESS_POLICY_ALLOW_HIGH_RISK"

const (
	minReasonMedium  = 8
	minReasonHigh    = 12
	minApprover      = 2
	minRollbackPlan  = 12
	minAuthorizedLen = 6
)

// PolicyResult is the outcome of the risk evaluation.
type PolicyResult struct {
	OK       bool       `json:"ok"`
	Info     PolicyInfo `json:"policy"`
	Errors   []string   `json:"errors,omitempty"`
	Bypassed bool       `json:"bypassed,omitempty"`
}

// evaluatePolicy applies the tiered risk policy. Low commands pass. Medium
// commands pass, but forcing one requires a reason. High commands require
// the full acknowledgment set; security-vuln-repro additionally requires an
// authorized scope statement.
func evaluatePolicy(cmd *Command, req *ExecuteRequest) PolicyResult {
	res := PolicyResult{Info: PolicyInfo{Tier: cmd.Tier, Forced: req.Force}}

	switch cmd.Tier {
	case TierLow:
		res.OK = true
		return res

	case TierMedium:
		if req.Force && len(strings.TrimSpace(req.PolicyReason)) < minReasonMedium {
			res.Errors = append(res.Errors,
				"force on a medium-tier command requires policyReason of at least 8 characters")
		}
		res.OK = len(res.Errors) == 0
		return res
	}

	// High tier.
	if req.PolicyOverride && overrideAllowed() {
		res.OK = true
		res.Bypassed = true
		res.Info.Override = true
		return res
	}

	if !req.PolicyAck {
		res.Errors = append(res.Errors, "policyAck must be true")
	}
	if len(strings.TrimSpace(req.PolicyReason)) < minReasonHigh {
		res.Errors = append(res.Errors, "policyReason must be at least 12 characters")
	}
	if len(strings.TrimSpace(req.PolicyApprovedBy)) < minApprover {
		res.Errors = append(res.Errors, "policyApprovedBy must be at least 2 characters")
	}
	if len(strings.TrimSpace(req.RollbackPlan)) < minRollbackPlan {
		res.Errors = append(res.Errors, "rollbackPlan must be at least 12 characters")
	}
	if cmd.ID == "security-vuln-repro" && len(strings.TrimSpace(req.PolicyAuthorizedScope)) < minAuthorizedLen {
		res.Errors = append(res.Errors, "policyAuthorizedScope must be at least 6 characters")
	}

	res.OK = len(res.Errors) == 0
	return res
}

func overrideAllowed() bool {
	switch os.Getenv(EnvAllowHighRisk) {
	case "1", "true":
		return true
	}
	return false
}
