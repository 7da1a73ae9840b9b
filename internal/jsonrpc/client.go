// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package jsonrpc implements the JSON-RPC 2.0 subprocess client used to
// drive the codex app-server: JSONL frames over stdio, or a WebSocket
// endpoint the subprocess announces on stderr.
package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wingedpig/fyp/internal/execx"
)

// Client states, surfaced through Handlers.OnState.
const (
	StateStopped      = "stopped"
	StateStarting     = "starting"
	StateRunning      = "running"
	StateDisconnected = "disconnected"
)

const (
	defaultCallTimeout  = 60 * time.Second
	defaultStartTimeout = 7 * time.Second
)

// ErrStopped is returned after Stop; the client will not reconnect.
var ErrStopped = errors.New("stopped")

func disconnectedErr(reason string) error {
	return fmt.Errorf("disconnected:%s", reason)
}

func timeoutErr(method string) error {
	return fmt.Errorf("timeout:%s", method)
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ServerRequest is a server-to-client request. The embedder must answer it
// with Respond or RespondError using the same id.
type ServerRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Handlers receives transport events. All callbacks run on the read loop
// goroutine and must not block.
type Handlers struct {
	OnRequest func(req ServerRequest)
	OnNotify  func(method string, params json.RawMessage)
	OnState   func(state string)
}

// Config describes the subprocess and protocol options.
type Config struct {
	Name          string // log prefix
	Command       string
	Args          []string
	Env           map[string]string
	Dir           string
	WebSocket     bool // dial the ws:// URL announced on stderr
	ClientName    string
	ClientVersion string
	CallTimeout   time.Duration
	StartTimeout  time.Duration
}

type frame struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	method string
	done   chan callResult
	timer  *time.Timer
}

// Client is a reconnecting JSON-RPC client over a spawned subprocess.
type Client struct {
	cfg      Config
	handlers Handlers

	startMu sync.Mutex // serializes EnsureStarted

	mu        sync.Mutex
	state     string
	conn      conn
	gen       int // bumped per connection; stale read loops check it
	cmd       *exec.Cmd
	pending   map[int64]*pendingCall
	nextID    int64
	attempt   int
	reconnect *time.Timer
	stopped   bool
}

// NewClient creates a client. Nothing is spawned until EnsureStarted.
func NewClient(cfg Config, handlers Handlers) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "jsonrpc"
	}
	return &Client{
		cfg:      cfg,
		handlers: handlers,
		state:    StateStopped,
		pending:  make(map[int64]*pendingCall),
		nextID:   1,
	}
}

// State returns the current connection state.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EnsureStarted spawns the subprocess if needed and completes the
// initialize handshake. Safe to call concurrently; only one start runs.
func (c *Client) EnsureStarted(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.state == StateRunning && c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.cfg.Command == "" {
		return disconnectedErr("no transport")
	}

	c.setState(StateStarting)

	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = execx.MergeEnv(os.Environ(), c.cfg.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.cfg.Command, err)
	}

	var transport conn
	if c.cfg.WebSocket {
		url, err := c.sniffWSURL(stderr)
		if err != nil {
			killGroup(cmd)
			cmd.Wait()
			return fmt.Errorf("start %s: %w", c.cfg.Command, err)
		}
		transport, err = dialWS(url)
		if err != nil {
			killGroup(cmd)
			cmd.Wait()
			return fmt.Errorf("dial %s: %w", url, err)
		}
		go io.Copy(io.Discard, stdout)
	} else {
		transport = newStdioConn(stdout, stdin)
		go c.drainStderr(stderr)
	}

	gen := c.install(transport, cmd)

	hctx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	defer cancel()
	if err := c.handshake(hctx); err != nil {
		c.onDisconnect(gen, "initialize failed")
		killGroup(cmd)
		return fmt.Errorf("initialize: %w", err)
	}

	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
	c.setState(StateRunning)
	return nil
}

// install attaches a live transport and starts its read and wait loops.
func (c *Client) install(transport conn, cmd *exec.Cmd) int {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.conn = transport
	c.cmd = cmd
	c.mu.Unlock()

	go c.readLoop(gen, transport)
	if cmd != nil {
		go func() {
			cmd.Wait()
			c.onDisconnect(gen, "process exited")
		}()
	}
	return gen
}

func (c *Client) handshake(ctx context.Context) error {
	params := map[string]any{
		"clientInfo": map[string]any{
			"name":    c.cfg.ClientName,
			"version": c.cfg.ClientVersion,
		},
		"capabilities": map[string]any{
			"experimentalApi": true,
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.Notify("initialized", map[string]any{})
}

// Call issues a request and waits for its response. The subprocess is
// started on demand.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.EnsureStarted(ctx); err != nil {
		return nil, err
	}
	return c.call(ctx, method, params)
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	transport := c.conn
	if transport == nil {
		c.mu.Unlock()
		return nil, disconnectedErr("no transport")
	}
	id := c.nextID
	c.nextID++
	pc := &pendingCall{method: method, done: make(chan callResult, 1)}
	pc.timer = time.AfterFunc(c.cfg.CallTimeout, func() {
		c.rejectPending(id, timeoutErr(method))
	})
	c.pending[id] = pc
	c.mu.Unlock()

	raw, err := marshalParams(params)
	if err != nil {
		c.rejectPending(id, err)
		<-pc.done
		return nil, err
	}
	data, err := json.Marshal(frame{JSONRPC: "2.0", ID: &id, Method: method, Params: raw})
	if err != nil {
		c.rejectPending(id, err)
		<-pc.done
		return nil, err
	}
	if err := transport.WriteMessage(data); err != nil {
		werr := disconnectedErr("write failed")
		c.rejectPending(id, werr)
		<-pc.done
		return nil, werr
	}

	select {
	case res := <-pc.done:
		return res.result, res.err
	case <-ctx.Done():
		c.rejectPending(id, ctx.Err())
		return nil, ctx.Err()
	}
}

// Notify sends a notification (no id, no response).
func (c *Client) Notify(method string, params any) error {
	c.mu.Lock()
	transport := c.conn
	c.mu.Unlock()
	if transport == nil {
		return disconnectedErr("no transport")
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame{JSONRPC: "2.0", Method: method, Params: raw})
	if err != nil {
		return err
	}
	return transport.WriteMessage(data)
}

// Respond answers a server-to-client request.
func (c *Client) Respond(id int64, result any) error {
	c.mu.Lock()
	transport := c.conn
	c.mu.Unlock()
	if transport == nil {
		return disconnectedErr("no transport")
	}
	raw, err := marshalParams(result)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame{JSONRPC: "2.0", ID: &id, Result: raw})
	if err != nil {
		return err
	}
	return transport.WriteMessage(data)
}

// RespondError answers a server-to-client request with an error.
func (c *Client) RespondError(id int64, code int, message string) error {
	c.mu.Lock()
	transport := c.conn
	c.mu.Unlock()
	if transport == nil {
		return disconnectedErr("no transport")
	}
	data, err := json.Marshal(frame{JSONRPC: "2.0", ID: &id, Error: &RPCError{Code: code, Message: message}})
	if err != nil {
		return err
	}
	return transport.WriteMessage(data)
}

// Stop is terminal: pending calls are rejected, the subprocess is killed,
// and no reconnect is scheduled.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	transport := c.conn
	c.conn = nil
	cmd := c.cmd
	c.cmd = nil
	c.rejectAllLocked(ErrStopped)
	c.state = StateStopped
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	if cmd != nil {
		killGroup(cmd)
	}
	if c.handlers.OnState != nil {
		c.handlers.OnState(StateStopped)
	}
}

// readLoop dispatches frames until the transport fails.
func (c *Client) readLoop(gen int, transport conn) {
	for {
		data, err := transport.ReadMessage()
		if err != nil {
			c.onDisconnect(gen, "read failed")
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			// Non-JSON stdout noise is expected from some tools.
			continue
		}

		switch {
		case f.ID != nil && f.Method != "":
			if c.handlers.OnRequest != nil {
				c.handlers.OnRequest(ServerRequest{ID: *f.ID, Method: f.Method, Params: f.Params})
			}
		case f.ID != nil:
			if f.Error != nil {
				c.rejectPending(*f.ID, f.Error)
			} else {
				c.resolvePending(*f.ID, f.Result)
			}
		case f.Method != "":
			if c.handlers.OnNotify != nil {
				c.handlers.OnNotify(f.Method, f.Params)
			}
		}
	}
}

// onDisconnect tears down the current transport, rejects pending calls,
// and schedules a reconnect with backoff. Stale generations are ignored.
func (c *Client) onDisconnect(gen int, reason string) {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	transport := c.conn
	c.conn = nil
	cmd := c.cmd
	c.cmd = nil
	c.rejectAllLocked(disconnectedErr(reason))
	c.state = StateDisconnected
	if c.cfg.Command != "" {
		c.attempt++
		delay := backoffDelay(c.attempt - 1)
		c.reconnect = time.AfterFunc(delay, func() {
			if err := c.EnsureStarted(context.Background()); err != nil && !errors.Is(err, ErrStopped) {
				log.Printf("%s: reconnect failed: %v", c.cfg.Name, err)
			}
		})
		log.Printf("%s: disconnected (%s), reconnecting in %s", c.cfg.Name, reason, delay)
	}
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	if cmd != nil {
		killGroup(cmd)
	}
	if c.handlers.OnState != nil {
		c.handlers.OnState(StateDisconnected)
	}
}

func (c *Client) rejectAllLocked(err error) {
	for id, pc := range c.pending {
		pc.timer.Stop()
		pc.done <- callResult{err: err}
		delete(c.pending, id)
	}
}

func (c *Client) resolvePending(id int64, result json.RawMessage) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	pc.timer.Stop()
	pc.done <- callResult{result: result}
}

func (c *Client) rejectPending(id int64, err error) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	pc.timer.Stop()
	pc.done <- callResult{err: err}
}

func (c *Client) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	if c.handlers.OnState != nil {
		c.handlers.OnState(state)
	}
}

// sniffWSURL scans stderr until the subprocess announces its WebSocket
// endpoint. Stderr keeps draining afterwards so the child never stalls.
func (c *Client) sniffWSURL(stderr io.Reader) (string, error) {
	urlCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if url, ok := parseListenLine(scanner.Text()); ok {
				select {
				case urlCh <- url:
				default:
				}
			}
		}
	}()

	select {
	case url := <-urlCh:
		return url, nil
	case <-time.After(c.cfg.StartTimeout):
		return "", errors.New("no listen address announced on stderr")
	}
}

func (c *Client) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Printf("%s: %s", c.cfg.Name, scanner.Text())
	}
}

// parseListenLine extracts a ws:// or wss:// URL from a stderr line of the
// form "... listening on: ws://127.0.0.1:4500".
func parseListenLine(line string) (string, bool) {
	idx := strings.Index(line, "listening on: ")
	if idx < 0 {
		return "", false
	}
	url := strings.TrimSpace(line[idx+len("listening on: "):])
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return url, true
	}
	return "", false
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

func killGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}
