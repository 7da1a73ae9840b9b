// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// ErrLinkTimeout means no rollout file matched within the link window.
var ErrLinkTimeout = errors.New("tool session link timeout")

const (
	defaultLinkWindow = 6 * time.Second
	linkPollInterval  = 400 * time.Millisecond
	rolloutLineMax    = 1024 * 1024
)

// Linker resolves the Codex-internal session id for a freshly spawned
// session. Codex writes a rollout JSONL under ~/.codex/sessions whose first
// line carries the session cwd; the file name ends in the session uuid.
type Linker struct {
	sessionsDir string
	window      time.Duration
}

// NewLinker creates a linker over the default ~/.codex/sessions directory.
func NewLinker() *Linker {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Linker{
		sessionsDir: filepath.Join(home, ".codex", "sessions"),
		window:      defaultLinkWindow,
	}
}

// NewLinkerAt creates a linker over an explicit sessions directory.
func NewLinkerAt(dir string, window time.Duration) *Linker {
	if window <= 0 {
		window = defaultLinkWindow
	}
	return &Linker{sessionsDir: dir, window: window}
}

type rolloutMeta struct {
	Type    string `json:"type"`
	Payload struct {
		ID  string `json:"id"`
		Cwd string `json:"cwd"`
	} `json:"payload"`
}

// WaitForLink blocks until a rollout file appears whose session_meta cwd
// matches and whose mtime is not older than the spawn time, or until the
// link window elapses. Returns the tool session id.
func (l *Linker) WaitForLink(ctx context.Context, cwd string, spawnedAt time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.window)
	defer cancel()

	// fsnotify wakes the scan early when codex creates the day directory or
	// the rollout file; the ticker covers missed events.
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		watcher.Add(l.sessionsDir)
	}

	// Files whose meta line parsed but did not match. Their content will not
	// change, so they are skipped on later scans.
	rejected := make(map[string]bool)

	ticker := time.NewTicker(linkPollInterval)
	defer ticker.Stop()

	for {
		if id := l.scan(cwd, spawnedAt, rejected, watcher); id != "" {
			return id, nil
		}

		var wake <-chan fsnotify.Event
		if watcher != nil {
			wake = watcher.Events
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrLinkTimeout
			}
			return "", ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}

// scan walks the sessions tree looking for a matching rollout file. New
// directories are added to the watcher as they are discovered.
func (l *Linker) scan(cwd string, spawnedAt time.Time, rejected map[string]bool, watcher *fsnotify.Watcher) string {
	// Some filesystems round mtimes to whole seconds, so compare against the
	// spawn time floored to the second.
	cutoff := spawnedAt.Truncate(time.Second)

	var match string
	filepath.WalkDir(l.sessionsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if match != "" {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if watcher != nil && path != l.sessionsDir {
				watcher.Add(path)
			}
			return nil
		}

		name := d.Name()
		if !strings.HasPrefix(name, "rollout-") || !strings.HasSuffix(name, ".jsonl") {
			return nil
		}
		if rejected[path] {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			return nil
		}

		meta, ok := readRolloutMeta(path)
		if !ok {
			// First line may still be mid-write; retry on the next scan.
			return nil
		}
		if meta.Type != "session_meta" || meta.Payload.Cwd != cwd {
			rejected[path] = true
			return nil
		}

		if id, ok := rolloutSessionID(name); ok {
			match = id
		} else if meta.Payload.ID != "" {
			match = meta.Payload.ID
		}
		return nil
	})
	return match
}

// rolloutSessionID extracts the session uuid from a rollout file name,
// e.g. rollout-2026-08-24T10-30-00-<uuid>.jsonl.
func rolloutSessionID(name string) (string, bool) {
	base := strings.TrimSuffix(name, ".jsonl")
	if len(base) < 36 {
		return "", false
	}
	candidate := base[len(base)-36:]
	if _, err := uuid.Parse(candidate); err != nil {
		return "", false
	}
	return candidate, true
}

// readRolloutMeta parses the first JSONL line of a rollout file.
func readRolloutMeta(path string) (rolloutMeta, bool) {
	var meta rolloutMeta

	f, err := os.Open(path)
	if err != nil {
		return meta, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), rolloutLineMax)
	if !scanner.Scan() {
		return meta, false
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return meta, false
	}
	if err := json.Unmarshal([]byte(line), &meta); err != nil {
		return meta, false
	}
	return meta, true
}
