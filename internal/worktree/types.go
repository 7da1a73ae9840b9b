// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"errors"
	"path/filepath"
)

// Reason codes surfaced to API clients when a git operation fails.
const (
	CodeNotARepo         = "not_a_git_repo"
	CodeBadGitDir        = "bad_git_dir"
	CodeBranchCheckedOut = "branch_checked_out"
	CodePathExists       = "path_exists"
	CodeCreateFailed     = "create_failed"
	CodeListFailed       = "worktree_list_failed"
)

// Error is a git failure classified to a stable reason code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// CodeOf returns the reason code carried by err, or "" if err has none.
func CodeOf(err error) string {
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// Workspace identifies the repository a path belongs to. Key is stable for
// the life of the checkout and groups sessions in the same repository.
type Workspace struct {
	Root   string // top-level working tree
	GitDir string // absolute .git directory
	Key    string // workspace key (the git dir)
}

// Info describes one entry of `git worktree list`.
type Info struct {
	Path     string
	Commit   string
	Branch   string
	Detached bool
	IsBare   bool
	Locked   bool
}

// Name returns the directory name of the worktree.
func (w *Info) Name() string {
	return filepath.Base(w.Path)
}

// Executor is the interface for git worktree operations.
type Executor interface {
	Resolve(ctx context.Context, dir string) (Workspace, error)
	Add(ctx context.Context, repoDir, path, branch string, lock bool) error
	Unlock(ctx context.Context, repoDir, path string) error
	Remove(ctx context.Context, repoDir, path string, force bool) error
	List(ctx context.Context, repoDir string) ([]Info, error)
	CurrentBranch(ctx context.Context, dir string) (string, error)
}
