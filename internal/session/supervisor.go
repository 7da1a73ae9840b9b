// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/wingedpig/fyp/internal/execx"
)

// Codex submits reliably only when CR and LF arrive as separate writes with
// a beat between typing and enter. These are the default pacing delays.
const (
	codexTypeDelay  = 15 * time.Millisecond
	codexEnterDelay = 25 * time.Millisecond

	interruptFollowUp = 80 * time.Millisecond
	maxQueuedWrites   = 256
	scrollbackBytes   = 256 * 1024
)

// Session is one running tool under a PTY.
type Session struct {
	ID        string
	Tool      string
	Cwd       string
	SpawnedAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File
	out  io.Writer // PTY write side; swappable in tests

	mu         sync.Mutex
	status     Status
	outputSubs map[int]OutputFn
	exitSubs   map[int]ExitFn
	nextSubID  int
	exitOnce   sync.Once

	scroll *ScrollBuffer

	// Codex write pacing queue. One drain goroutine at a time.
	writeMu    sync.Mutex
	queue      []string
	draining   bool
	typeDelay  time.Duration
	enterDelay time.Duration
}

// Status returns a snapshot of the session's lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Running reports whether the child is still alive.
func (s *Session) Running() bool {
	return s.Status().Running
}

// PID returns the child pid, or 0.
func (s *Session) PID() int {
	return s.Status().PID
}

// Scrollback returns the retained recent output.
func (s *Session) Scrollback() []byte {
	if s.scroll == nil {
		return nil
	}
	return s.scroll.Bytes()
}

// RealSupervisor implements the Supervisor interface over creack/pty.
type RealSupervisor struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	disposed bool
}

// NewSupervisor creates a supervisor with no sessions.
func NewSupervisor() *RealSupervisor {
	return &RealSupervisor{
		sessions: make(map[string]*Session),
	}
}

// buildEnv computes the child environment: the base env with per-tool keys
// scrubbed, the profile env merged over it, and TERM forced last.
func buildEnv(base []string, tool, authMode string, extra map[string]string) []string {
	switch tool {
	case ToolCodex:
		base = execx.ScrubEnv(base, "CODEX_THREAD_ID", "CODEX_SESSION_ID", "CODEX_CI")
	case ToolClaude:
		if authMode != AuthModeAPI {
			base = execx.ScrubEnv(base, "ANTHROPIC_API_KEY")
		}
	}
	env := execx.MergeEnv(base, extra)
	return execx.MergeEnv(env, map[string]string{"TERM": "xterm-256color"})
}

// Create spawns a new PTY session.
func (m *RealSupervisor) Create(opts CreateOptions) (*Session, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	if _, ok := m.sessions[opts.ID]; ok {
		m.mu.Unlock()
		return nil, ErrAlreadyExists
	}
	// Reserve the id before the spawn so concurrent creates collide here.
	m.sessions[opts.ID] = nil
	m.mu.Unlock()

	cols := opts.Cols
	if cols <= 0 {
		cols = DefaultCols
	}
	rows := opts.Rows
	if rows <= 0 {
		rows = DefaultRows
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Cwd
	cmd.Env = buildEnv(os.Environ(), opts.Tool, opts.AuthMode, opts.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, opts.ID)
		m.mu.Unlock()
		return nil, err
	}

	typeDelay := opts.TypeDelay
	if typeDelay <= 0 {
		typeDelay = codexTypeDelay
	}
	enterDelay := opts.Enter
	if enterDelay <= 0 {
		enterDelay = codexEnterDelay
	}

	sess := &Session{
		ID:         opts.ID,
		Tool:       opts.Tool,
		Cwd:        opts.Cwd,
		SpawnedAt:  time.Now(),
		cmd:        cmd,
		ptmx:       ptmx,
		out:        ptmx,
		outputSubs: make(map[int]OutputFn),
		exitSubs:   make(map[int]ExitFn),
		scroll:     NewScrollBuffer(scrollbackBytes),
		typeDelay:  typeDelay,
		enterDelay: enterDelay,
	}
	sess.status = Status{Running: true, PID: cmd.Process.Pid}

	m.mu.Lock()
	m.sessions[opts.ID] = sess
	m.mu.Unlock()

	go sess.readPump()
	go sess.waitForExit()

	return sess, nil
}

// Get returns a managed session.
func (m *RealSupervisor) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok || sess == nil {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// Status returns the lifecycle state for a session.
func (m *RealSupervisor) Status(id string) (Status, error) {
	sess, err := m.Get(id)
	if err != nil {
		return Status{}, err
	}
	return sess.Status(), nil
}

// List returns all managed sessions.
func (m *RealSupervisor) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess != nil {
			result = append(result, sess)
		}
	}
	return result
}

// Write sends input to a session. Codex input goes through the pacing queue
// so CR and LF land as separate writes. PTY write errors are swallowed.
func (m *RealSupervisor) Write(id, data string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	if sess.Tool == ToolCodex {
		sess.enqueueWrite(data)
		return nil
	}
	if _, err := io.WriteString(sess.out, data); err != nil {
		log.Printf("session %s: write failed: %v", id, err)
	}
	return nil
}

// Resize changes the PTY geometry. Errors are swallowed.
func (m *RealSupervisor) Resize(id string, cols, rows int) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	if sess.ptmx == nil || cols <= 0 || rows <= 0 {
		return nil
	}
	if err := pty.Setsize(sess.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		log.Printf("session %s: resize failed: %v", id, err)
	}
	return nil
}

// Interrupt writes Ctrl-C to the PTY and schedules one SIGINT to the child
// shortly after, in case the tool swallows the control character.
func (m *RealSupervisor) Interrupt(id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	// 0x03 is ETX, what the terminal driver turns Ctrl-C into.
	if _, err := io.WriteString(sess.out, "\x03"); err != nil {
		log.Printf("session %s: interrupt write failed: %v", id, err)
	}
	pid := sess.PID()
	if pid > 0 {
		time.AfterFunc(interruptFollowUp, func() {
			if !sess.Running() {
				return
			}
			if err := syscall.Kill(pid, syscall.SIGINT); err != nil {
				log.Printf("session %s: sigint failed: %v", id, err)
			}
		})
	}
	return nil
}

// Stop is an alias for Interrupt.
func (m *RealSupervisor) Stop(id string) error {
	return m.Interrupt(id)
}

// Kill sends SIGKILL to the child's process group. Non-fatal on error.
func (m *RealSupervisor) Kill(id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.kill()
	return nil
}

// Forget clears listeners, kills the PTY, and removes the session.
func (m *RealSupervisor) Forget(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok || sess == nil {
		return ErrUnknownSession
	}

	sess.mu.Lock()
	sess.outputSubs = make(map[int]OutputFn)
	sess.exitSubs = make(map[int]ExitFn)
	sess.mu.Unlock()

	sess.kill()
	return nil
}

// OnOutput registers an output listener invoked on every raw PTY chunk.
func (m *RealSupervisor) OnOutput(id string, fn OutputFn) (func(), error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	subID := sess.nextSubID
	sess.nextSubID++
	sess.outputSubs[subID] = fn
	sess.mu.Unlock()

	return func() {
		sess.mu.Lock()
		delete(sess.outputSubs, subID)
		sess.mu.Unlock()
	}, nil
}

// OnExit registers an exit listener. If the session already exited, the
// listener fires immediately with the final status.
func (m *RealSupervisor) OnExit(id string, fn ExitFn) (func(), error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if !sess.status.Running {
		status := sess.status
		sess.mu.Unlock()
		fn(status)
		return func() {}, nil
	}
	subID := sess.nextSubID
	sess.nextSubID++
	sess.exitSubs[subID] = fn
	sess.mu.Unlock()

	return func() {
		sess.mu.Lock()
		delete(sess.exitSubs, subID)
		sess.mu.Unlock()
	}, nil
}

// Dispose kills all sessions and clears the map.
func (m *RealSupervisor) Dispose() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	m.sessions = make(map[string]*Session)
	m.disposed = true
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.kill()
	}
}

// readPump forwards PTY output to listeners and the scrollback buffer.
// It exits when the PTY read side returns an error (child exited).
func (s *Session) readPump() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.scroll.Write(chunk)

			s.mu.Lock()
			subs := make([]OutputFn, 0, len(s.outputSubs))
			for _, fn := range s.outputSubs {
				subs = append(subs, fn)
			}
			s.mu.Unlock()

			for _, fn := range subs {
				fn(chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// waitForExit reaps the child and fires exit listeners exactly once.
func (s *Session) waitForExit() {
	err := s.cmd.Wait()

	var exitCode *int
	var signal *string
	if state := s.cmd.ProcessState; state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			name := ws.Signal().String()
			signal = &name
		} else {
			code := state.ExitCode()
			exitCode = &code
		}
	} else if err != nil {
		code := -1
		exitCode = &code
	}

	s.fireExit(Status{Running: false, PID: s.cmd.Process.Pid, ExitCode: exitCode, Signal: signal})
}

func (s *Session) fireExit(status Status) {
	s.exitOnce.Do(func() {
		s.mu.Lock()
		s.status = status
		subs := make([]ExitFn, 0, len(s.exitSubs))
		for _, fn := range s.exitSubs {
			subs = append(subs, fn)
		}
		s.exitSubs = make(map[int]ExitFn)
		s.mu.Unlock()

		if s.ptmx != nil {
			s.ptmx.Close()
		}
		for _, fn := range subs {
			fn(status)
		}
	})
}

// kill closes the PTY and SIGKILLs the child's process group so grandchild
// processes do not survive.
func (s *Session) kill() {
	if s.ptmx != nil {
		s.ptmx.Close()
	}
	pid := s.PID()
	if pid <= 0 {
		return
	}
	// pty.Start runs the child with Setsid, so pid == pgid.
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if s.cmd != nil && s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
	}
}

// enqueueWrite adds a write to the pacing queue and starts the drain worker
// if one is not running. The queue is bounded; overflow drops the oldest.
func (s *Session) enqueueWrite(data string) {
	s.writeMu.Lock()
	s.queue = append(s.queue, data)
	if len(s.queue) > maxQueuedWrites {
		s.queue = s.queue[1:]
		log.Printf("session %s: write queue full, dropped oldest", s.ID)
	}
	if s.draining {
		s.writeMu.Unlock()
		return
	}
	s.draining = true
	s.writeMu.Unlock()
	go s.drainWrites()
}

// drainWrites processes queued writes one at a time. It re-checks the queue
// after each item, so items enqueued mid-drain are picked up before the
// worker exits.
func (s *Session) drainWrites() {
	for {
		s.writeMu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.writeMu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.writeMu.Unlock()

		s.writePaced(item)
	}
}

// writePaced types the text and submits with CR and LF as separate writes.
// Each CR in the input becomes write(text) pause write(CR) pause write(LF);
// an LF the caller placed directly after a CR is skipped so CRLF input does
// not submit twice.
func (s *Session) writePaced(data string) {
	i := 0
	for {
		j := strings.IndexByte(data[i:], '\r')
		if j < 0 {
			if i < len(data) {
				s.rawWrite(data[i:])
			}
			return
		}
		if j > 0 {
			s.rawWrite(data[i : i+j])
		}
		time.Sleep(s.typeDelay)
		s.rawWrite("\r")
		time.Sleep(s.enterDelay)
		s.rawWrite("\n")
		i += j + 1
		if i < len(data) && data[i] == '\n' {
			i++
		}
	}
}

func (s *Session) rawWrite(data string) {
	if _, err := io.WriteString(s.out, data); err != nil {
		log.Printf("session %s: write failed: %v", s.ID, err)
	}
}
