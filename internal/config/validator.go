// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// knownTools are the tool names sessions can be created with.
var knownTools = map[string]bool{
	"codex":    true,
	"claude":   true,
	"opencode": true,
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateProfiles(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs.Add("server.port", fmt.Sprintf("must be 1-65535, got %d", cfg.Server.Port))
	}

	hasFileTLS := cfg.Server.TLSCert != "" || cfg.Server.TLSKey != ""
	if hasFileTLS && (cfg.Server.TLSCert == "" || cfg.Server.TLSKey == "") {
		errs.Add("server.tls_cert", "tls_cert and tls_key must both be set")
	}
	if hasFileTLS && cfg.Server.TailscaleTLS {
		errs.Add("server.tailscale_tls", "cannot combine tailscale_tls with tls_cert/tls_key")
	}
}

func (v *Validator) validateProfiles(cfg *Config, errs *ValidationError) {
	seen := map[string]bool{}
	for i, p := range cfg.Profiles {
		field := fmt.Sprintf("profiles[%d]", i)
		if p.ID == "" {
			errs.Add(field+".id", "is required")
		} else if seen[p.ID] {
			errs.Add(field+".id", fmt.Sprintf("duplicate profile id %q", p.ID))
		}
		seen[p.ID] = true

		if p.Tool != "" && !knownTools[p.Tool] {
			errs.Add(field+".tool", fmt.Sprintf("unknown tool %q (want codex, claude, or opencode)", p.Tool))
		}
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	checks := []struct {
		field string
		value string
	}{
		{"orchestration.dedupe_window", cfg.Orchestration.DedupeWindow},
		{"orchestration.question_timeout", cfg.Orchestration.QuestionTimeout},
		{"orchestration.sync_interval", cfg.Orchestration.SyncInterval},
		{"orchestration.min_delivery_gap", cfg.Orchestration.MinDeliveryGap},
		{"pairing.ttl", cfg.Pairing.TTL},
		{"events.history_age", cfg.Events.HistoryAge},
	}
	for _, c := range checks {
		if c.value == "" || c.value == "0" {
			continue
		}
		if _, err := time.ParseDuration(c.value); err != nil {
			errs.Add(c.field, fmt.Sprintf("invalid duration %q", c.value))
		}
	}
}
