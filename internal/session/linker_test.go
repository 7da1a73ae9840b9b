// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRolloutUUID = "0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9"

func writeRollout(t *testing.T, dir, uuid, cwd string) string {
	t.Helper()
	day := filepath.Join(dir, "2026", "08", "24")
	require.NoError(t, os.MkdirAll(day, 0755))
	path := filepath.Join(day, "rollout-2026-08-24T10-30-00-"+uuid+".jsonl")
	line := fmt.Sprintf(`{"type":"session_meta","payload":{"id":"%s","cwd":"%s"}}`+"\n", uuid, cwd)
	require.NoError(t, os.WriteFile(path, []byte(line), 0644))
	return path
}

func TestWaitForLinkMatches(t *testing.T) {
	dir := t.TempDir()
	linker := NewLinkerAt(dir, 3*time.Second)

	spawnedAt := time.Now().Add(-time.Second)
	writeRollout(t, dir, testRolloutUUID, "/home/user/project")

	id, err := linker.WaitForLink(context.Background(), "/home/user/project", spawnedAt)
	require.NoError(t, err)
	assert.Equal(t, testRolloutUUID, id)
}

func TestWaitForLinkFileAppearsLater(t *testing.T) {
	dir := t.TempDir()
	linker := NewLinkerAt(dir, 4*time.Second)

	spawnedAt := time.Now()
	go func() {
		time.Sleep(600 * time.Millisecond)
		writeRollout(t, dir, testRolloutUUID, "/work")
	}()

	id, err := linker.WaitForLink(context.Background(), "/work", spawnedAt)
	require.NoError(t, err)
	assert.Equal(t, testRolloutUUID, id)
}

func TestWaitForLinkRejectsWrongCwd(t *testing.T) {
	dir := t.TempDir()
	linker := NewLinkerAt(dir, 900*time.Millisecond)

	writeRollout(t, dir, testRolloutUUID, "/other/place")

	_, err := linker.WaitForLink(context.Background(), "/work", time.Now().Add(-time.Second))
	assert.ErrorIs(t, err, ErrLinkTimeout)
}

func TestWaitForLinkRejectsPreExisting(t *testing.T) {
	dir := t.TempDir()
	linker := NewLinkerAt(dir, 900*time.Millisecond)

	path := writeRollout(t, dir, testRolloutUUID, "/work")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	_, err := linker.WaitForLink(context.Background(), "/work", time.Now())
	assert.ErrorIs(t, err, ErrLinkTimeout)
}

func TestWaitForLinkContextCancel(t *testing.T) {
	dir := t.TempDir()
	linker := NewLinkerAt(dir, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := linker.WaitForLink(ctx, "/work", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRolloutSessionID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{
			"standard name",
			"rollout-2026-08-24T10-30-00-" + testRolloutUUID + ".jsonl",
			testRolloutUUID, true,
		},
		{"no uuid", "rollout-notes.jsonl", "", false},
		{"too short", "r.jsonl", "", false},
		{
			"uuid only",
			"rollout-" + testRolloutUUID + ".jsonl",
			testRolloutUUID, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rolloutSessionID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadRolloutMetaSkipsGarbage(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "rollout-bad.jsonl")
	require.NoError(t, os.WriteFile(garbage, []byte("not json\n"), 0644))
	_, ok := readRolloutMeta(garbage)
	assert.False(t, ok)

	empty := filepath.Join(dir, "rollout-empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, ok = readRolloutMeta(empty)
	assert.False(t, ok)
}
