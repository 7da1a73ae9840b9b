// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrate

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

// ErrRunning is returned when a delete targets a session whose process is
// still alive and force was not set.
var ErrRunning = errors.New("session is running")

// CreateSessionInput describes a standalone session, outside any
// orchestration.
type CreateSessionInput struct {
	Tool      string `json:"tool,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
	Cwd       string `json:"cwd"`
	Label     string `json:"label,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
}

// CreateSession spawns and persists a standalone supervised session. The
// session gets the same output/exit persistence as orchestration workers.
func (e *Engine) CreateSession(in CreateSessionInput) (*store.Session, error) {
	if in.Cwd == "" {
		return nil, badInput("cwd is required")
	}
	tool, _, err := e.resolveTool(in.Tool, in.ProfileID, "")
	if err != nil {
		return nil, err
	}

	sid := uuid.NewString()
	if _, err := e.spawnSized(sid, tool, in.ProfileID, in.Cwd, in.Cols, in.Rows); err != nil {
		return nil, fmt.Errorf("spawn session: %w", err)
	}

	row := &store.Session{
		ID:        sid,
		Tool:      tool,
		ProfileID: in.ProfileID,
		Cwd:       in.Cwd,
		Label:     in.Label,
	}
	if err := e.st.CreateSession(row); err != nil {
		// The PTY is already up; kill it rather than leak an unpersisted child.
		_ = e.sup.Kill(sid)
		_ = e.sup.Forget(sid)
		return nil, fmt.Errorf("persist session: %w", err)
	}

	e.attachSession("", sid)
	e.emit(sid, "", events.KindSessionCreated, map[string]interface{}{
		"tool": tool,
		"cwd":  in.Cwd,
	}, true)
	if tool == session.ToolCodex && e.linker != nil {
		go e.linkCodexSession("", sid, in.Cwd, e.now())
	}
	return row, nil
}

// DeleteSession removes a session row and its dependents. A running session
// is refused unless force, which kills it first.
func (e *Engine) DeleteSession(sid string, force bool) error {
	if _, err := e.st.GetSession(sid); err != nil {
		return err
	}

	status, err := e.sup.Status(sid)
	if err == nil && status.Running {
		if !force {
			return ErrRunning
		}
		if err := e.sup.Kill(sid); err != nil && !errors.Is(err, session.ErrUnknownSession) {
			return fmt.Errorf("kill session: %w", err)
		}
	}
	if err := e.sup.Forget(sid); err != nil && !errors.Is(err, session.ErrUnknownSession) {
		log.Printf("orchestrate: forget %s: %v", sid, err)
	}

	if err := e.st.DeleteSession(sid); err != nil {
		return err
	}
	e.emit(sid, "", events.KindKill, map[string]interface{}{"deleted": true}, false)
	return nil
}

// attachSession persists a live session's output stream and final exit
// status. Subscriptions die with the session, so there is nothing to
// unsubscribe on delete.
func (e *Engine) attachSession(orchID, sid string) {
	if _, err := e.sup.OnOutput(sid, func(chunk []byte) {
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		if err := e.st.AppendOutput(sid, buf); err != nil {
			log.Printf("orchestrate: persist output for %s: %v", sid, err)
		}
	}); err != nil {
		log.Printf("orchestrate: watch output for %s: %v", sid, err)
	}

	if _, err := e.sup.OnExit(sid, func(status session.Status) {
		if err := e.st.SetSessionExit(sid, status.ExitCode, status.Signal); err != nil {
			log.Printf("orchestrate: persist exit for %s: %v", sid, err)
		}
		data := map[string]interface{}{}
		if status.ExitCode != nil {
			data["exitCode"] = *status.ExitCode
		}
		if status.Signal != nil {
			data["signal"] = *status.Signal
		}
		e.emit(sid, orchID, events.KindSessionExit, data, true)
	}); err != nil {
		log.Printf("orchestrate: watch exit for %s: %v", sid, err)
	}
}

// spawnSized is spawn with an explicit initial PTY size.
func (e *Engine) spawnSized(sid, tool, profileID, cwd string, cols, rows int) (*session.Session, error) {
	toolCfg := e.cfg.ToolFor(tool)
	args := append([]string(nil), toolCfg.Args...)
	env := make(map[string]string, len(toolCfg.Env))
	for k, v := range toolCfg.Env {
		env[k] = v
	}
	if profileID != "" {
		if prof, ok := e.cfg.ProfileFor(profileID); ok {
			args = append(args, prof.Args...)
			for k, v := range prof.Env {
				env[k] = v
			}
		}
	}
	return e.sup.Create(session.CreateOptions{
		ID:       sid,
		Tool:     tool,
		Command:  toolCfg.Command,
		Args:     args,
		Env:      env,
		Cwd:      cwd,
		Cols:     cols,
		Rows:     rows,
		AuthMode: session.ClaudeAuthMode(),
	})
}
