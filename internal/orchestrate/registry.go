// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrate

import (
	"sync"
)

// Handle pairs an orchestration document with its runtime state. Every doc
// read and write happens under mu. Cleanup acquires mu with TryLock so a
// second cleanup fails fast instead of queueing behind the first.
type Handle struct {
	mu  sync.Mutex
	doc *Orchestration

	// Runtime state for the orchestrator output watcher. Nil when the
	// orchestration was restored from disk or already cleaned.
	stop  chan struct{}
	unsub func()
}

func newHandle(doc *Orchestration) *Handle {
	return &Handle{doc: doc}
}

// Snapshot returns a deep copy of the document.
func (h *Handle) Snapshot() *Orchestration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc.Clone()
}

// stopRuntimeLocked tears down the output watcher. Callers hold h.mu.
func (h *Handle) stopRuntimeLocked() {
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
	if h.unsub != nil {
		h.unsub()
		h.unsub = nil
	}
}

// Registry is the in-memory index of orchestrations. Session membership is
// fixed when an orchestration is created, so the session index is built
// once at Add and never mutated.
type Registry struct {
	mu        sync.RWMutex
	items     map[string]*Handle
	bySession map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		items:     make(map[string]*Handle),
		bySession: make(map[string]string),
	}
}

// Add indexes a handle. The handle must not be visible to other goroutines
// yet; its doc is read without the lock.
func (r *Registry) Add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[h.doc.ID] = h
	for _, sid := range h.doc.SessionIDs() {
		r.bySession[sid] = h.doc.ID
	}
}

// Get returns the handle for an orchestration id.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.items[id]
	return h, ok
}

// BySession returns the handle owning the given session id.
func (r *Registry) BySession(sessionID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, false
	}
	h, ok := r.items[id]
	return h, ok
}

// Handles returns all registered handles in no particular order.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.items))
	for _, h := range r.items {
		out = append(out, h)
	}
	return out
}
