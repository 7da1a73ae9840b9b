// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
)

// attachMessage is one frame from the attach client.
type attachMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// AttachHandler streams a session's PTY over a WebSocket and feeds client
// input back into it.
type AttachHandler struct {
	st  *store.Store
	sup session.Supervisor

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewAttachHandler creates an attach handler.
func NewAttachHandler(st *store.Store, sup session.Supervisor) *AttachHandler {
	return &AttachHandler{
		st:    st,
		sup:   sup,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *AttachHandler) trackConn(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *AttachHandler) untrackConn(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Shutdown closes every active attach connection so the server can drain.
func (h *AttachHandler) Shutdown() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	if len(conns) > 0 {
		log.Printf("api: closing %d attach connections", len(conns))
	}
	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// WebSocket attaches to a session: replays the transcript tail, then streams
// live output while accepting input/resize/interrupt frames.
func (h *AttachHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.st.GetSession(id); err != nil {
		WriteCoreError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.trackConn(conn)
	defer func() {
		h.untrackConn(conn)
		conn.Close()
	}()

	const pongWait = 60 * time.Second
	const pingPeriod = (pongWait * 9) / 10
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// gorilla/websocket allows one concurrent writer.
	var writeMu sync.Mutex
	writeText := func(data []byte) error {
		valid := strings.ToValidUTF8(string(data), "")
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, []byte(valid))
	}

	// Scrollback before live output, same ordering the PTY produced.
	scrollbackBytes := queryInt(r, "scrollback", 65536)
	if scrollbackBytes > 0 {
		if text, err := h.st.TranscriptText(id, scrollbackBytes); err == nil && text != "" {
			if err := writeText([]byte(text)); err != nil {
				return
			}
		}
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	unsubOut, err := h.sup.OnOutput(id, func(chunk []byte) {
		if err := writeText(chunk); err != nil {
			closeDone()
		}
	})
	if err == nil {
		defer unsubOut()
	}

	unsubExit, err := h.sup.OnExit(id, func(status session.Status) {
		writeText([]byte("\r\n\x1b[33mSession ended\x1b[0m\r\n"))
		writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session exited"))
		writeMu.Unlock()
		closeDone()
	})
	if err == nil {
		defer unsubExit()
	}

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-pingTicker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
				writeMu.Unlock()
				if err != nil {
					closeDone()
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("api: attach %s: read: %v", id, err)
			}
			closeDone()
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg attachMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("api: attach %s: bad frame: %v", id, err)
			continue
		}

		switch msg.Type {
		case "input":
			if err := h.sup.Write(id, msg.Data); err != nil {
				log.Printf("api: attach %s: write: %v", id, err)
			}
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				h.sup.Resize(id, msg.Cols, msg.Rows)
			}
		case "interrupt":
			if err := h.sup.Interrupt(id); err != nil {
				log.Printf("api: attach %s: interrupt: %v", id, err)
			}
		}
	}
}
