// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand ${VAR} references before parsing so secrets can live in the
	// environment instead of the file.
	data = ExpandEnv(data)

	// Parse HJSON to intermediate map
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches for a config file. It looks for fyp.hjson and fyp.json
// in the current directory, then under ~/.config/fyp/.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"fyp.hjson",
		"fyp.json",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "fyp", "fyp.hjson"),
			filepath.Join(home, ".config", "fyp", "fyp.json"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for fyp.hjson, fyp.json, ~/.config/fyp/)")
}

// Default returns a config with all defaults applied, used when no config
// file exists yet.
func Default() *Config {
	cfg := &Config{Version: "1"}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4112
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "~/.local/share/fyp"
	}

	// Orchestration defaults
	if cfg.Orchestration.DedupeWindow == "" {
		cfg.Orchestration.DedupeWindow = "30s"
	}
	if cfg.Orchestration.QuestionTimeout == "" {
		cfg.Orchestration.QuestionTimeout = "2m"
	}
	if cfg.Orchestration.SyncInterval == "" {
		cfg.Orchestration.SyncInterval = "0"
	}
	if cfg.Orchestration.MinDeliveryGap == "" {
		cfg.Orchestration.MinDeliveryGap = "20s"
	}
	if cfg.Orchestration.WorktreesDir == "" {
		cfg.Orchestration.WorktreesDir = ".worktrees"
	}

	// Pairing defaults
	if cfg.Pairing.TTL == "" {
		cfg.Pairing.TTL = "5m"
	}
	if cfg.Pairing.MaxAttempts == 0 {
		cfg.Pairing.MaxAttempts = 5
	}

	// Events defaults
	if cfg.Events.HistorySize == 0 {
		cfg.Events.HistorySize = 10000
	}
	if cfg.Events.HistoryAge == "" {
		cfg.Events.HistoryAge = "1h"
	}
}
