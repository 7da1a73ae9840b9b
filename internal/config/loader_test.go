// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fyp.hjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Load(t *testing.T) {
	path := writeConfig(t, `{
		// comments are fine in hjson
		version: "1"
		server: {
			host: 0.0.0.0
			port: 5555
			token: secret
		}
		tools: {
			codex: { command: /usr/local/bin/codex, args: ["--sandbox", "workspace-write"] }
		}
		profiles: [
			{ id: default-codex, tool: codex }
		]
	}`)

	cfg, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5555, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.Token)
	assert.Equal(t, "/usr/local/bin/codex", cfg.Tools.Codex.Command)
	assert.Equal(t, []string{"--sandbox", "workspace-write"}, cfg.Tools.Codex.Args)
	require.Len(t, cfg.Profiles, 1)
	assert.Equal(t, "default-codex", cfg.Profiles[0].ID)
}

func TestLoader_LoadWithDefaults(t *testing.T) {
	path := writeConfig(t, `{ version: "1" }`)

	cfg, err := NewLoader().LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 4112, cfg.Server.Port)
	assert.Equal(t, "30s", cfg.Orchestration.DedupeWindow)
	assert.Equal(t, ".worktrees", cfg.Orchestration.WorktreesDir)
	assert.Equal(t, 5, cfg.Pairing.MaxAttempts)
	assert.Equal(t, 10000, cfg.Events.HistorySize)
}

func TestLoader_ExpandEnv(t *testing.T) {
	t.Setenv("FYP_TEST_TOKEN", "from-env")
	path := writeConfig(t, `{
		version: "1"
		server: { token: "${FYP_TEST_TOKEN}" }
	}`)

	cfg, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.Token)
}

func TestLoader_BareDollarUntouched(t *testing.T) {
	path := writeConfig(t, `{
		version: "1"
		tools: { claude: { args: ["-c", "echo $HOME"] } }
	}`)

	cfg, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "echo $HOME"}, cfg.Tools.Claude.Args)
}

func TestLoader_FindConfig_NotFound(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	// Point HOME somewhere empty so ~/.config/fyp lookups miss too.
	t.Setenv("HOME", dir)

	_, err = NewLoader().FindConfig()
	assert.Error(t, err)
}

func TestConfig_ToolFor(t *testing.T) {
	cfg := Default()
	cfg.Tools.Codex.Command = "/opt/codex"

	assert.Equal(t, "/opt/codex", cfg.ToolFor("codex").Command)
	assert.Equal(t, "claude", cfg.ToolFor("claude").Command)
	assert.Equal(t, "opencode", cfg.ToolFor("opencode").Command)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, Duration("30s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("garbage", time.Minute))
}
