// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the fyp.hjson configuration file.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Version string `json:"version"`

	Server        ServerConfig        `json:"server"`
	DataDir       string              `json:"data_dir"`
	Tools         ToolsConfig         `json:"tools"`
	Profiles      []ProfileConfig     `json:"profiles"`
	Orchestration OrchestrationConfig `json:"orchestration"`
	Pairing       PairingConfig       `json:"pairing"`
	Events        EventsConfig        `json:"events"`

	Debug bool `json:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"token"`

	// TLSCert/TLSKey enable TLS from files. TailscaleTLS fetches a cert for
	// the machine's tailnet name instead; the two are mutually exclusive.
	TLSCert      string `json:"tls_cert"`
	TLSKey       string `json:"tls_key"`
	TailscaleTLS bool   `json:"tailscale_tls"`

	AllowedOrigins []string `json:"allowed_origins"`
}

// ToolsConfig holds per-tool launch settings.
type ToolsConfig struct {
	Codex    ToolConfig `json:"codex"`
	Claude   ToolConfig `json:"claude"`
	Opencode ToolConfig `json:"opencode"`
}

// ToolConfig describes how to launch one CLI tool.
type ToolConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// ProfileConfig is a named launch profile layered on top of a tool.
type ProfileConfig struct {
	ID        string            `json:"id"`
	Tool      string            `json:"tool"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	Bootstrap string            `json:"bootstrap"`
}

// OrchestrationConfig tunes the orchestration runtime.
type OrchestrationConfig struct {
	DedupeWindow    string `json:"dedupe_window"`    // directive dedupe window
	QuestionTimeout string `json:"question_timeout"` // automation question timeout
	SyncInterval    string `json:"sync_interval"`    // default digest interval, "0" = manual only
	MinDeliveryGap  string `json:"min_delivery_gap"` // floor between digest deliveries
	WorktreesDir    string `json:"worktrees_dir"`    // relative to project root
}

// PairingConfig tunes one-shot pairing codes.
type PairingConfig struct {
	TTL         string `json:"ttl"`
	MaxAttempts int    `json:"max_attempts"`
}

// EventsConfig tunes the in-memory event history used for WS replay.
type EventsConfig struct {
	HistorySize int    `json:"history_size"`
	HistoryAge  string `json:"history_age"`
}

// ToolFor returns the launch config for a tool name, falling back to the
// bare command when nothing is configured.
func (c *Config) ToolFor(tool string) ToolConfig {
	var tc ToolConfig
	switch tool {
	case "codex":
		tc = c.Tools.Codex
	case "claude":
		tc = c.Tools.Claude
	case "opencode":
		tc = c.Tools.Opencode
	}
	if tc.Command == "" {
		tc.Command = tool
	}
	return tc
}

// ProfileFor returns the profile with the given id, if any.
func (c *Config) ProfileFor(id string) (ProfileConfig, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return ProfileConfig{}, false
}

// ResolvedDataDir expands ~ and returns an absolute data directory.
func (c *Config) ResolvedDataDir() string {
	dir := c.DataDir
	if dir == "" {
		dir = "~/.local/share/fyp"
	}
	if len(dir) > 0 && dir[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home + dir[1:]
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

// Duration parses a config duration string, returning fallback when the
// field is empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
