// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxLineBytes bounds a single JSONL frame. Longer lines are discarded
// without killing the read loop.
const maxLineBytes = 8 * 1024 * 1024

const wsHandshakeTimeout = 6 * time.Second

// conn is one framed bidirectional message stream.
type conn interface {
	// ReadMessage returns the next frame. Blocks until one arrives.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one frame. Safe for concurrent use.
	WriteMessage(data []byte) error
	Close() error
}

// stdioConn frames messages as newline-terminated JSON over a subprocess's
// stdin/stdout.
type stdioConn struct {
	r *bufio.Reader

	writeMu sync.Mutex
	w       io.Writer

	closer io.Closer
}

func newStdioConn(stdout io.Reader, stdin io.WriteCloser) *stdioConn {
	return &stdioConn{
		r:      bufio.NewReaderSize(stdout, 64*1024),
		w:      stdin,
		closer: stdin,
	}
}

func (c *stdioConn) ReadMessage() ([]byte, error) {
	for {
		line, tooLong, err := readLimitedLine(c.r, maxLineBytes)
		if err != nil {
			return nil, err
		}
		if tooLong {
			continue
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

func (c *stdioConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	_, err := c.w.Write([]byte{'\n'})
	return err
}

func (c *stdioConn) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// readLimitedLine reads one newline-terminated line. Lines longer than max
// are consumed fully and reported as tooLong so the caller can skip them.
func readLimitedLine(r *bufio.Reader, max int) (line []byte, tooLong bool, err error) {
	var buf []byte
	overflow := false
	for {
		frag, err := r.ReadSlice('\n')
		if err == nil {
			if overflow {
				return nil, true, nil
			}
			buf = append(buf, frag...)
			return bytes.TrimRight(buf, "\r\n"), false, nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			if !overflow {
				buf = append(buf, frag...)
				if len(buf) > max {
					overflow = true
					buf = nil
				}
			}
			continue
		}
		if errors.Is(err, io.EOF) && len(buf)+len(frag) > 0 && !overflow {
			buf = append(buf, frag...)
			return bytes.TrimRight(buf, "\r\n"), false, nil
		}
		return nil, false, err
	}
}

// wsConn frames messages over a WebSocket. gorilla/websocket allows only
// one concurrent writer, so writes are serialized here.
type wsConn struct {
	writeMu sync.Mutex
	ws      *websocket.Conn
}

func dialWS(url string) (*wsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(maxLineBytes)
	return &wsConn{ws: ws}, nil
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
