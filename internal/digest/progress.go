// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// progressFiles are checked in order inside a worker's worktree. Workers are
// told (by convention, not enforcement) to keep a markdown checklist there.
var progressFiles = []string{
	filepath.Join(".fyp", "progress.md"),
	"PROGRESS.md",
}

const progressMaxBytes = 128 * 1024

type progressInfo struct {
	relPath   string
	done      int
	total     int
	updatedAt time.Time
}

// readProgress finds and parses the worker's progress checklist, counting
// markdown task boxes. Missing or oversized files report no progress.
func readProgress(worktreePath string) (progressInfo, bool) {
	if worktreePath == "" {
		return progressInfo{}, false
	}
	for _, rel := range progressFiles {
		full := filepath.Join(worktreePath, rel)
		fi, err := os.Stat(full)
		if err != nil || fi.IsDir() || fi.Size() > progressMaxBytes {
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		done, total := countChecklist(string(data))
		return progressInfo{
			relPath:   rel,
			done:      done,
			total:     total,
			updatedAt: fi.ModTime(),
		}, true
	}
	return progressInfo{}, false
}

// countChecklist counts markdown task-list items. "- [x]" is done, "- [ ]"
// is open; "*" bullets count the same way.
func countChecklist(text string) (done, total int) {
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if !strings.HasPrefix(t, "- [") && !strings.HasPrefix(t, "* [") {
			continue
		}
		rest := t[3:]
		if len(rest) < 2 || rest[1] != ']' {
			continue
		}
		total++
		if rest[0] == 'x' || rest[0] == 'X' {
			done++
		}
	}
	return done, total
}
