// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wingedpig/fyp/internal/execx"
)

const (
	resolveTimeout = 2500 * time.Millisecond
	listTimeout    = 10 * time.Second
	addTimeout     = 12 * time.Second
	removeTimeout  = 12 * time.Second
	unlockTimeout  = 10 * time.Second

	maxSlugLen = 40
)

// RealExecutor executes real git commands.
type RealExecutor struct{}

// NewRealExecutor creates a new git executor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Resolve maps dir to its repository workspace via
// `git rev-parse --show-toplevel --absolute-git-dir`.
func (e *RealExecutor) Resolve(ctx context.Context, dir string) (Workspace, error) {
	res, err := execx.Capture(ctx, execx.Spec{
		Name:    "git",
		Args:    []string{"-C", dir, "rev-parse", "--show-toplevel", "--absolute-git-dir"},
		Timeout: resolveTimeout,
	})
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve workspace: %w", err)
	}
	if res.ExitCode != 0 {
		return Workspace{}, &Error{Code: CodeNotARepo, Message: gitMessage(res.Stderr)}
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) < 2 {
		return Workspace{}, &Error{Code: CodeBadGitDir, Message: "unexpected rev-parse output"}
	}
	root := strings.TrimSpace(lines[0])
	gitDir := strings.TrimSpace(lines[1])
	if root == "" || gitDir == "" {
		return Workspace{}, &Error{Code: CodeBadGitDir, Message: "unexpected rev-parse output"}
	}

	return Workspace{Root: root, GitDir: gitDir, Key: gitDir}, nil
}

// Add creates a worktree at path with a new branch from HEAD.
func (e *RealExecutor) Add(ctx context.Context, repoDir, path, branch string, lock bool) error {
	args := []string{"-C", repoDir, "worktree", "add"}
	if lock {
		args = append(args, "--lock")
	}
	args = append(args, "-b", branch, path, "HEAD")

	res, err := execx.Capture(ctx, execx.Spec{Name: "git", Args: args, Timeout: addTimeout})
	if err != nil {
		return fmt.Errorf("worktree add: %w", err)
	}
	if res.ExitCode != 0 {
		return classifyAddErr(res.Stderr)
	}
	return nil
}

// Unlock removes the lock on a worktree. Cleanup treats failures as
// best-effort, so the error is not coded.
func (e *RealExecutor) Unlock(ctx context.Context, repoDir, path string) error {
	res, err := execx.Capture(ctx, execx.Spec{
		Name:    "git",
		Args:    []string{"-C", repoDir, "worktree", "unlock", path},
		Timeout: unlockTimeout,
	})
	if err != nil {
		return fmt.Errorf("worktree unlock: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("worktree unlock: %s", gitMessage(res.Stderr))
	}
	return nil
}

// Remove deletes a worktree directory and its administrative files.
func (e *RealExecutor) Remove(ctx context.Context, repoDir, path string, force bool) error {
	args := []string{"-C", repoDir, "worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	res, err := execx.Capture(ctx, execx.Spec{Name: "git", Args: args, Timeout: removeTimeout})
	if err != nil {
		return fmt.Errorf("worktree remove: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("worktree remove: %s", gitMessage(res.Stderr))
	}
	return nil
}

// List returns the worktrees of the repository at repoDir.
func (e *RealExecutor) List(ctx context.Context, repoDir string) ([]Info, error) {
	res, err := execx.Capture(ctx, execx.Spec{
		Name:    "git",
		Args:    []string{"-C", repoDir, "worktree", "list", "--porcelain"},
		Timeout: listTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("worktree list: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, &Error{Code: CodeListFailed, Message: gitMessage(res.Stderr)}
	}
	return ParseWorktreeListPorcelain(res.Stdout), nil
}

// CurrentBranch returns the checked-out branch for dir, or the short commit
// SHA when HEAD is detached.
func (e *RealExecutor) CurrentBranch(ctx context.Context, dir string) (string, error) {
	res, err := execx.Capture(ctx, execx.Spec{
		Name:    "git",
		Args:    []string{"-C", dir, "branch", "--show-current"},
		Timeout: resolveTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if res.ExitCode == 0 {
		if branch := strings.TrimSpace(res.Stdout); branch != "" {
			return branch, nil
		}
	}

	// Detached HEAD reports no branch; fall back to the commit.
	res, err = execx.Capture(ctx, execx.Spec{
		Name:    "git",
		Args:    []string{"-C", dir, "rev-parse", "--short", "HEAD"},
		Timeout: resolveTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("current branch: %s", gitMessage(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ParseWorktreeListPorcelain parses the output of `git worktree list
// --porcelain`. The format handles paths with spaces correctly:
//
//	worktree /path/to/worktree
//	HEAD abc1234...
//	branch refs/heads/main
//	locked reason
//
//	worktree /path/to/bare
//	bare
func ParseWorktreeListPorcelain(output string) []Info {
	result := []Info{}

	blocks := strings.Split(output, "\n\n")
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		info := parseWorktreeBlock(block)
		if info.Path != "" {
			result = append(result, info)
		}
	}

	return result
}

func parseWorktreeBlock(block string) Info {
	var info Info

	lines := strings.Split(block, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "worktree "):
			info.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			info.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			info.Branch = strings.TrimPrefix(ref, "refs/heads/")
		case line == "bare":
			info.IsBare = true
		case line == "detached":
			info.Detached = true
		case line == "locked" || strings.HasPrefix(line, "locked "):
			info.Locked = true
		}
	}

	return info
}

// classifyAddErr maps `git worktree add` stderr to a reason code.
func classifyAddErr(stderr string) error {
	msg := gitMessage(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "already checked out"),
		strings.Contains(lower, "already used by worktree"):
		return &Error{Code: CodeBranchCheckedOut, Message: msg}
	case strings.Contains(lower, "already exists"):
		return &Error{Code: CodePathExists, Message: msg}
	case strings.Contains(lower, "not a git repository"):
		return &Error{Code: CodeNotARepo, Message: msg}
	default:
		return &Error{Code: CodeCreateFailed, Message: msg}
	}
}

// gitMessage extracts the most useful line from git stderr, dropping the
// "fatal: " prefix and hint lines.
func gitMessage(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "hint:") {
			continue
		}
		line = strings.TrimPrefix(line, "fatal: ")
		line = strings.TrimPrefix(line, "error: ")
		return line
	}
	return strings.TrimSpace(stderr)
}

// Slug normalizes a worker name for use in branch names and directory
// names: lowercase alphanumerics with single dashes between runs.
func Slug(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			if b.Len() > 0 {
				pendingDash = true
			}
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}

	s := b.String()
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "worker"
	}
	return s
}
