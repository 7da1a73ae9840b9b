// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package e2e boots a real daemon against a stub tool binary and exercises
// the API through the public client.
package e2e

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/fyp/internal/app"
	"github.com/wingedpig/fyp/pkg/client"
)

const testToken = "e2e-test-token"

// stubTool is a fake coding CLI: it announces itself and echoes every line
// it reads from the PTY.
const stubTool = `#!/bin/sh
echo "stub tool ready"
while IFS= read -r line; do
  echo "echo: $line"
done
`

// bootDaemon starts a daemon on a free port with a temp data dir and the
// stub tool wired in as "codex". It returns a paired client.
func bootDaemon(t *testing.T) (*client.Client, *app.App) {
	t.Helper()

	dir := t.TempDir()
	toolPath := filepath.Join(dir, "stubtool")
	require.NoError(t, os.WriteFile(toolPath, []byte(stubTool), 0o755))

	port := freePort(t)
	configPath := filepath.Join(dir, "fyp.hjson")
	config := fmt.Sprintf(`{
  version: "1"
  server: {
    host: "127.0.0.1"
    port: %d
    token: "%s"
  }
  data_dir: "%s"
  tools: {
    codex: { command: "%s" }
  }
  pairing: { ttl: "1m", max_attempts: 3 }
}`, port, testToken, filepath.Join(dir, "data"), toolPath)
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	application, err := app.New(app.Options{ConfigPath: configPath, Version: "e2e"})
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() {
		runErr <- application.Run(context.Background())
	}()
	t.Cleanup(func() {
		application.Stop()
		select {
		case err := <-runErr:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("daemon did not shut down")
		}
	})

	c := client.New(fmt.Sprintf("http://127.0.0.1:%d", port), client.WithToken(testToken))
	waitForServer(t, c)
	return c, application
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitForServer(t *testing.T, c *client.Client) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.Status(context.Background()); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("daemon did not become ready")
}

func TestDaemon_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	c, _ := bootDaemon(t)
	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		st, err := c.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, "e2e", st.Version)
		assert.NotZero(t, st.PID)
	})

	t.Run("auth", func(t *testing.T) {
		anon := client.New(c.BaseURL())
		_, err := anon.Status(ctx)
		require.Error(t, err)
		apiErr, ok := err.(*client.APIError)
		require.True(t, ok)
		assert.Equal(t, "unauthorized", apiErr.Code)
	})

	t.Run("pairing", func(t *testing.T) {
		code, err := c.NewPairingCode(ctx)
		require.NoError(t, err)

		token, err := client.New(c.BaseURL()).Pair(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, testToken, token)

		// Codes are single-use.
		_, err = client.New(c.BaseURL()).Pair(ctx, code)
		require.Error(t, err)
	})

	t.Run("session lifecycle", func(t *testing.T) {
		work := t.TempDir()
		s, err := c.Sessions.Create(ctx, &client.CreateSessionRequest{Tool: "codex", Cwd: work})
		require.NoError(t, err)
		require.True(t, s.Status.Running)

		require.NoError(t, c.Sessions.Input(ctx, s.ID, "hello agent\r"))

		// The stub echoes the line back into the transcript.
		require.Eventually(t, func() bool {
			text, err := c.Sessions.Output(ctx, s.ID, 0)
			return err == nil && strings.Contains(text, "echo: hello agent")
		}, 10*time.Second, 100*time.Millisecond)

		listed, err := c.Sessions.List(ctx)
		require.NoError(t, err)
		found := false
		for _, row := range listed {
			if row.ID == s.ID {
				found = true
			}
		}
		assert.True(t, found)

		// Running sessions refuse a plain delete.
		err = c.Sessions.Delete(ctx, s.ID, false)
		require.Error(t, err)
		apiErr, ok := err.(*client.APIError)
		require.True(t, ok)
		assert.Equal(t, "session_running", apiErr.Code)

		require.NoError(t, c.Sessions.Delete(ctx, s.ID, true))
		_, err = c.Sessions.Get(ctx, s.ID)
		require.Error(t, err)
	})

	t.Run("inbox round trip", func(t *testing.T) {
		work := t.TempDir()
		s, err := c.Sessions.Create(ctx, &client.CreateSessionRequest{Tool: "codex", Cwd: work})
		require.NoError(t, err)
		defer c.Sessions.Delete(ctx, s.ID, true)

		res, err := c.Inbox.Create(ctx, &client.CreateAttentionRequest{
			SessionID: s.ID,
			Kind:      "question",
			Title:     "Proceed with the plan?",
			Options: []client.AttentionOption{
				{ID: "y", Label: "Yes", Send: "yes\r"},
				{ID: "n", Label: "No", Send: "no\r"},
			},
		})
		require.NoError(t, err)
		require.True(t, res.OK)

		item, err := c.Inbox.Respond(ctx, res.ID, "y")
		require.NoError(t, err)
		assert.Equal(t, "resolved", item.Status)

		// The chosen option's send text went into the session's PTY.
		require.Eventually(t, func() bool {
			text, err := c.Sessions.Output(ctx, s.ID, 0)
			return err == nil && strings.Contains(text, "echo: yes")
		}, 10*time.Second, 100*time.Millisecond)
	})

	t.Run("events stream", func(t *testing.T) {
		sub, err := c.Events.Subscribe(ctx, "session.*", 0)
		require.NoError(t, err)
		defer sub.Close()

		work := t.TempDir()
		s, err := c.Sessions.Create(ctx, &client.CreateSessionRequest{Tool: "codex", Cwd: work})
		require.NoError(t, err)
		defer c.Sessions.Delete(ctx, s.ID, true)

		select {
		case ev := <-sub.Events:
			assert.Equal(t, "session.created", ev.Kind)
			assert.Equal(t, s.ID, ev.SessionID)
		case <-time.After(10 * time.Second):
			t.Fatal("no session.created event arrived")
		}

		history, err := c.Events.History(ctx, &client.EventFilter{SessionID: s.ID})
		require.NoError(t, err)
		assert.NotEmpty(t, history)
	})

	t.Run("command catalog", func(t *testing.T) {
		cmds, err := c.Commands.Catalog(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(cmds), 40)
	})
}
