// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorktreeListPorcelain(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected []Info
	}{
		{
			name: "single worktree",
			output: `worktree /home/user/project
HEAD abc1234def
branch refs/heads/main
`,
			expected: []Info{
				{Path: "/home/user/project", Commit: "abc1234def", Branch: "main"},
			},
		},
		{
			name: "locked worktree with reason",
			output: `worktree /home/user/project
HEAD abc1234def
branch refs/heads/main

worktree /home/user/project/.worktrees/alpha
HEAD abc1234def
branch refs/heads/orch/o1/alpha
locked created by orchestration o1
`,
			expected: []Info{
				{Path: "/home/user/project", Commit: "abc1234def", Branch: "main"},
				{Path: "/home/user/project/.worktrees/alpha", Commit: "abc1234def", Branch: "orch/o1/alpha", Locked: true},
			},
		},
		{
			name: "locked without reason",
			output: `worktree /w/a
HEAD 123abc
branch refs/heads/x
locked
`,
			expected: []Info{
				{Path: "/w/a", Commit: "123abc", Branch: "x", Locked: true},
			},
		},
		{
			name: "bare and detached",
			output: `worktree /home/user/project.git
bare

worktree /home/user/scratch
HEAD def5678
detached
`,
			expected: []Info{
				{Path: "/home/user/project.git", IsBare: true},
				{Path: "/home/user/scratch", Commit: "def5678", Detached: true},
			},
		},
		{
			name: "path with spaces",
			output: `worktree /home/user/my project/tree one
HEAD abc1234
branch refs/heads/main
`,
			expected: []Info{
				{Path: "/home/user/my project/tree one", Commit: "abc1234", Branch: "main"},
			},
		},
		{
			name:     "empty output",
			output:   "",
			expected: []Info{},
		},
		{
			name:     "whitespace only",
			output:   "   \n\t\n  ",
			expected: []Info{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseWorktreeListPorcelain(tt.output)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestClassifyAddErr(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		code   string
	}{
		{
			name:   "branch checked out",
			stderr: "fatal: 'orch/o1/alpha' is already checked out at '/w/alpha'\n",
			code:   CodeBranchCheckedOut,
		},
		{
			name:   "branch used by worktree",
			stderr: "fatal: 'alpha' is already used by worktree at '/w/alpha'\n",
			code:   CodeBranchCheckedOut,
		},
		{
			name:   "path exists",
			stderr: "fatal: '/w/alpha' already exists\n",
			code:   CodePathExists,
		},
		{
			name:   "not a repo",
			stderr: "fatal: not a git repository (or any of the parent directories): .git\n",
			code:   CodeNotARepo,
		},
		{
			name:   "anything else",
			stderr: "fatal: could not create leading directories of '/w/alpha'\n",
			code:   CodeCreateFailed,
		},
		{
			name:   "hint lines skipped",
			stderr: "hint: use --force\nfatal: '/w/alpha' already exists\n",
			code:   CodePathExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyAddErr(tt.stderr)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.NotContains(t, err.Error(), "fatal:")
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodePathExists, CodeOf(&Error{Code: CodePathExists, Message: "x"}))
	assert.Equal(t, "", CodeOf(assert.AnError))
	assert.Equal(t, "", CodeOf(nil))
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Backend", "backend"},
		{"api worker", "api-worker"},
		{"Front/End UI", "front-end-ui"},
		{"worker_2", "worker-2"},
		{"--weird--", "weird"},
		{"émile", "mile"},
		{"", "worker"},
		{"!!!", "worker"},
		{"a very long worker name that should get truncated somewhere", "a-very-long-worker-name-that-should-get"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slug(tt.in))
			assert.LessOrEqual(t, len(Slug(tt.in)), maxSlugLen)
		})
	}
}

func TestInfoName(t *testing.T) {
	info := Info{Path: "/home/user/project/.worktrees/alpha"}
	assert.Equal(t, "alpha", info.Name())
}

// MockExecutor returns canned responses.
type MockExecutor struct {
	worktrees []Info
	err       error
}

func (m *MockExecutor) Resolve(ctx context.Context, dir string) (Workspace, error) {
	if m.err != nil {
		return Workspace{}, m.err
	}
	return Workspace{Root: dir, GitDir: dir + "/.git", Key: dir + "/.git"}, nil
}

func (m *MockExecutor) Add(ctx context.Context, repoDir, path, branch string, lock bool) error {
	return m.err
}

func (m *MockExecutor) Unlock(ctx context.Context, repoDir, path string) error { return m.err }

func (m *MockExecutor) Remove(ctx context.Context, repoDir, path string, force bool) error {
	return m.err
}

func (m *MockExecutor) List(ctx context.Context, repoDir string) ([]Info, error) {
	if m.err != nil {
		return nil, m.err
	}
	result := make([]Info, len(m.worktrees))
	copy(result, m.worktrees)
	return result, nil
}

func (m *MockExecutor) CurrentBranch(ctx context.Context, dir string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "main", nil
}

func TestExecutorInterface(t *testing.T) {
	var _ Executor = (*MockExecutor)(nil)
	var _ Executor = (*RealExecutor)(nil)
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")
	runGit(t, dir, "commit", "--allow-empty", "-q", "-m", "init")
	return dir
}

func TestRealExecutorResolveIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := initTestRepo(t)
	ex := NewRealExecutor()

	ws, err := ex.Resolve(context.Background(), repo)
	require.NoError(t, err)
	assert.NotEmpty(t, ws.Root)
	assert.NotEmpty(t, ws.GitDir)
	assert.Equal(t, ws.GitDir, ws.Key)

	_, err = ex.Resolve(context.Background(), t.TempDir())
	assert.Equal(t, CodeNotARepo, CodeOf(err))
}

func TestRealExecutorWorktreeFlowIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := initTestRepo(t)
	ex := NewRealExecutor()
	ctx := context.Background()

	wtPath := filepath.Join(repo, ".worktrees", "alpha")
	require.NoError(t, ex.Add(ctx, repo, wtPath, "orch/o1/alpha", true))

	list, err := ex.List(ctx, repo)
	require.NoError(t, err)
	require.Len(t, list, 2)

	var found *Info
	for i := range list {
		if list[i].Branch == "orch/o1/alpha" {
			found = &list[i]
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.Locked)

	branch, err := ex.CurrentBranch(ctx, wtPath)
	require.NoError(t, err)
	assert.Equal(t, "orch/o1/alpha", branch)

	// Same branch elsewhere is refused.
	err = ex.Add(ctx, repo, filepath.Join(repo, ".worktrees", "beta"), "orch/o1/alpha", false)
	assert.Equal(t, CodeBranchCheckedOut, CodeOf(err))

	// Existing path is refused.
	err = ex.Add(ctx, repo, wtPath, "orch/o1/other", false)
	assert.Equal(t, CodePathExists, CodeOf(err))

	require.NoError(t, ex.Unlock(ctx, repo, wtPath))
	require.NoError(t, ex.Remove(ctx, repo, wtPath, true))

	list, err = ex.List(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRealExecutorCurrentBranchDetachedIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := initTestRepo(t)
	runGit(t, repo, "checkout", "-q", "--detach")

	branch, err := NewRealExecutor().CurrentBranch(context.Background(), repo)
	require.NoError(t, err)
	assert.NotEmpty(t, branch)
}
