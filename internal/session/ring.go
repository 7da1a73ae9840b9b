// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import "sync"

// ScrollBuffer is a thread-safe ring buffer over raw bytes. It retains the
// most recent output so a client attaching mid-session gets scrollback.
type ScrollBuffer struct {
	mu       sync.RWMutex
	buf      []byte
	capacity int
	size     int
	head     int // next write position
}

// NewScrollBuffer creates a buffer holding up to capacity bytes.
func NewScrollBuffer(capacity int) *ScrollBuffer {
	if capacity <= 0 {
		capacity = scrollbackBytes
	}
	return &ScrollBuffer{
		buf:      make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends a chunk. Chunks larger than the capacity keep only their
// tail.
func (b *ScrollBuffer) Write(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(chunk) >= b.capacity {
		copy(b.buf, chunk[len(chunk)-b.capacity:])
		b.head = 0
		b.size = b.capacity
		return
	}

	n := copy(b.buf[b.head:], chunk)
	if n < len(chunk) {
		copy(b.buf, chunk[n:])
	}
	b.head = (b.head + len(chunk)) % b.capacity
	b.size += len(chunk)
	if b.size > b.capacity {
		b.size = b.capacity
	}
}

// Bytes returns the retained output in chronological order.
func (b *ScrollBuffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	result := make([]byte, b.size)
	start := (b.head - b.size + b.capacity) % b.capacity
	n := copy(result, b.buf[start:])
	if n < b.size {
		copy(result[n:], b.buf)
	}
	return result
}

// Len returns the number of retained bytes.
func (b *ScrollBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
