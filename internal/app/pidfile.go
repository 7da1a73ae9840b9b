// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	ps "github.com/mitchellh/go-ps"
)

// pidFile is the JSON record written to server.pid so fyp-ctl and a second
// fyp instance can find (or refuse to fight over) the running daemon.
type pidFile struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Bind      string    `json:"bind"`
	StartedAt time.Time `json:"startedAt"`
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "server.pid")
}

// writePIDFile claims the data directory for this process. A pid file owned
// by a live process aborts startup; one left behind by a dead process is
// replaced.
func writePIDFile(dataDir, bind string, port int) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := pidFilePath(dataDir)

	if raw, err := os.ReadFile(path); err == nil {
		var old pidFile
		if json.Unmarshal(raw, &old) == nil && old.PID > 0 && old.PID != os.Getpid() {
			proc, err := ps.FindProcess(old.PID)
			if err == nil && proc != nil {
				return fmt.Errorf("fyp is already running (pid %d, port %d); stop it or remove %s",
					old.PID, old.Port, path)
			}
			log.Printf("app: replacing stale pid file (pid %d is gone)", old.PID)
		}
	}

	raw, err := json.MarshalIndent(pidFile{
		PID:       os.Getpid(),
		Port:      port,
		Bind:      bind,
		StartedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pid file: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// removePIDFile deletes server.pid, but only when it still belongs to this
// process. A crashed-and-replaced daemon must not delete its successor's
// claim.
func removePIDFile(dataDir string) {
	path := pidFilePath(dataDir)
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var pf pidFile
	if json.Unmarshal(raw, &pf) != nil || pf.PID != os.Getpid() {
		return
	}
	if err := os.Remove(path); err != nil {
		log.Printf("app: remove pid file: %v", err)
	}
}

// ReadPIDFile reads server.pid under dataDir. Used by fyp-ctl to locate the
// daemon without configuration.
func ReadPIDFile(dataDir string) (pid, port int, bind string, err error) {
	raw, err := os.ReadFile(pidFilePath(dataDir))
	if err != nil {
		return 0, 0, "", err
	}
	var pf pidFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return 0, 0, "", fmt.Errorf("parse pid file: %w", err)
	}
	return pf.PID, pf.Port, pf.Bind, nil
}
