// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"os"
	"time"
)

// Supported tools.
const (
	ToolCodex    = "codex"
	ToolClaude   = "claude"
	ToolOpencode = "opencode"
)

// Claude auth modes. Subscription mode launches the CLI without an API key
// so it uses the logged-in account.
const (
	AuthModeAPI          = "api"
	AuthModeSubscription = "subscription"
)

// Default PTY geometry.
const (
	DefaultCols = 100
	DefaultRows = 30
)

var (
	// ErrAlreadyExists is returned by Create when the session id is taken.
	ErrAlreadyExists = errors.New("session already exists")
	// ErrUnknownSession is returned when the session id is not managed.
	ErrUnknownSession = errors.New("unknown session")
	// ErrDisposed is returned after the supervisor has shut down.
	ErrDisposed = errors.New("supervisor disposed")
)

// Status is the lifecycle state reported for a session.
type Status struct {
	Running  bool    `json:"running"`
	PID      int     `json:"pid,omitempty"`
	ExitCode *int    `json:"exitCode,omitempty"`
	Signal   *string `json:"signal,omitempty"`
}

// CreateOptions describes a session to spawn.
type CreateOptions struct {
	ID        string
	Tool      string
	Command   string
	Args      []string
	Env       map[string]string
	Cwd       string
	Cols      int
	Rows      int
	AuthMode  string // claude only: api or subscription
	TypeDelay time.Duration
	Enter     time.Duration
}

// OutputFn receives every raw PTY chunk. Implementations must not block.
type OutputFn func(chunk []byte)

// ExitFn receives the final status, exactly once, after the child exits.
type ExitFn func(status Status)

// Supervisor manages interactive tool sessions.
type Supervisor interface {
	// Create spawns a PTY session. Fails if the id is taken.
	Create(opts CreateOptions) (*Session, error)
	// Get returns a managed session.
	Get(id string) (*Session, error)
	// Status returns the lifecycle state without exposing the session.
	Status(id string) (Status, error)
	// List returns all managed sessions.
	List() []*Session
	// Write sends input to the session. Codex input is paced.
	Write(id, data string) error
	// Resize changes the PTY geometry.
	Resize(id string, cols, rows int) error
	// Interrupt sends Ctrl-C and follows up with SIGINT shortly after.
	Interrupt(id string) error
	// Stop is an alias for Interrupt.
	Stop(id string) error
	// Kill sends SIGKILL to the child.
	Kill(id string) error
	// Forget drops a session: clears listeners, kills the PTY, removes it.
	Forget(id string) error
	// OnOutput registers an output listener. Returns an unsubscribe func.
	OnOutput(id string, fn OutputFn) (func(), error)
	// OnExit registers an exit listener. Returns an unsubscribe func.
	OnExit(id string, fn ExitFn) (func(), error)
	// Dispose kills everything and clears all state.
	Dispose()
}

// ClaudeAuthMode resolves the configured claude auth mode. Unset defaults to
// subscription, which strips ANTHROPIC_API_KEY from the child env.
func ClaudeAuthMode() string {
	if os.Getenv("FYP_CLAUDE_AUTH_MODE") == AuthModeAPI {
		return AuthModeAPI
	}
	return AuthModeSubscription
}
