// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package execx runs short-lived external commands with bounded output and
// timeouts. It backs the git worktree executor and the Codex rollout probes.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// DefaultTimeout bounds a capture when the caller does not supply one.
	DefaultTimeout = 2500 * time.Millisecond

	// maxCaptureBytes truncates runaway stdout/stderr of a captured command.
	maxCaptureBytes = 1024 * 1024
)

// Spec describes a single command invocation.
type Spec struct {
	Name    string
	Args    []string
	Dir     string
	Env     map[string]string // merged over os.Environ()
	Stdin   string
	Timeout time.Duration // 0 means DefaultTimeout
}

// Result holds the outcome of a captured command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Capture runs the command and waits for it to finish, returning the captured
// output. A non-zero exit is not an error; callers inspect ExitCode. The
// returned error covers spawn failures and context cancellation only.
func Capture(ctx context.Context, spec Spec) (Result, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir

	// New process group so a timeout kill reaps grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	cmd.Env = MergeEnv(os.Environ(), spec.Env)
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: truncate(stdout.String()),
		Stderr: truncate(stderr.String()),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, fmt.Errorf("%s timed out after %s", spec.Name, timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run %s: %w", spec.Name, err)
	}

	res.ExitCode = 0
	return res, nil
}

// MergeEnv overlays extra on top of base ("K=V" form), replacing existing
// keys. A nil extra returns base unchanged.
func MergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}

	merged := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, ok := extra[key]; ok {
			continue
		}
		merged = append(merged, kv)
	}
	for k, v := range extra {
		merged = append(merged, k+"="+v)
	}
	return merged
}

// ScrubEnv returns base ("K=V" form) without the named keys.
func ScrubEnv(base []string, keys ...string) []string {
	if len(keys) == 0 {
		return base
	}

	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	out := make([]string, 0, len(base))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, ok := drop[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func truncate(s string) string {
	if len(s) > maxCaptureBytes {
		return s[:maxCaptureBytes] + "... [truncated]"
	}
	return s
}
