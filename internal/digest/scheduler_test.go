// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/store"
)

// fakeOrch holds one orchestration document and records digest deliveries.
type fakeOrch struct {
	mu     sync.Mutex
	doc    *orchestrate.Orchestration
	writes []string
}

var _ Orchestrations = (*fakeOrch)(nil)

func (f *fakeOrch) Get(orchID string) (*orchestrate.Orchestration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc == nil || f.doc.ID != orchID {
		return nil, orchestrate.ErrNotFound
	}
	return f.doc.Clone(), nil
}

func (f *fakeOrch) WriteOrchestrator(orchID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, text)
	return nil
}

func (f *fakeOrch) UpdateSync(orchID string, fn func(*orchestrate.SyncState)) (*orchestrate.Orchestration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.doc.Sync)
	return f.doc.Clone(), nil
}

func (f *fakeOrch) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func newSchedulerFixture(t *testing.T) (*Scheduler, *fakeOrch, *store.Store) {
	t.Helper()
	st := testStore(t)
	sup := &statusSup{running: map[string]bool{"w1": true, "w2": true}}
	orch := &fakeOrch{doc: &orchestrate.Orchestration{
		ID:                    "orch-1",
		Name:                  "demo",
		Status:                orchestrate.StatusActive,
		OrchestratorSessionID: "orc",
		Workers: []*orchestrate.Worker{
			{Name: "A", SessionID: "w1"},
			{Name: "B", SessionID: "w2"},
		},
		Sync: orchestrate.SyncState{Policy: orchestrate.SyncPolicy{
			Mode:                  orchestrate.SyncManual,
			DeliverToOrchestrator: true,
		}},
	}}

	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	t.Cleanup(func() { bus.Close() })

	s := NewScheduler(st, sup, orch, bus, false)
	return s, orch, st
}

func TestSync_ForceSendsThenUnchangedSkips(t *testing.T) {
	s, orch, _ := newSchedulerFixture(t)

	res, err := s.Sync("orch-1", true, true, TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	hash := res.Digest.Hash
	require.Equal(t, 1, orch.writeCount())
	assert.Contains(t, orch.writes[0], "ORCHESTRATION SYNC (manual)")

	res2, err := s.Sync("orch-1", false, true, TriggerManual)
	require.NoError(t, err)
	assert.False(t, res2.Sent)
	assert.Equal(t, ReasonUnchanged, res2.Reason)
	assert.Equal(t, hash, res2.Digest.Hash)
	assert.Equal(t, 1, orch.writeCount())
}

func TestSync_CollectOnly(t *testing.T) {
	s, orch, _ := newSchedulerFixture(t)

	res, err := s.Sync("orch-1", true, false, TriggerManual)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, ReasonCollectOnly, res.Reason)
	assert.Zero(t, orch.writeCount())

	// Snapshots were still persisted.
	doc, err := orch.Get("orch-1")
	require.NoError(t, err)
	assert.Len(t, doc.Sync.Snapshots, 2)
	assert.Equal(t, res.Digest.Hash, doc.Sync.LastDigestHash)
}

func TestSync_HashChangesAfterWhitelistedEvent(t *testing.T) {
	s, _, st := newSchedulerFixture(t)

	res, err := s.Sync("orch-1", true, true, TriggerManual)
	require.NoError(t, err)
	first := res.Digest.Hash

	// Noise does not change the digest.
	_, err = st.AppendEvent("w1", events.KindInput, nil)
	require.NoError(t, err)
	res2, err := s.Sync("orch-1", false, true, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, first, res2.Digest.Hash)
	assert.False(t, res2.Sent)

	// A whitelisted event does.
	_, err = st.AppendEvent("w1", events.KindCodexApproval, nil)
	require.NoError(t, err)
	res3, err := s.Sync("orch-1", false, true, TriggerManual)
	require.NoError(t, err)
	assert.NotEqual(t, first, res3.Digest.Hash)
}

func TestSync_MinDeliveryGap(t *testing.T) {
	s, orch, st := newSchedulerFixture(t)
	orch.doc.Sync.Policy.MinDeliveryGapMs = int(time.Hour.Milliseconds())

	_, err := s.Sync("orch-1", true, true, TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, orch.writeCount())

	// State changed, but the gap has not elapsed.
	_, err = st.AppendEvent("w1", events.KindCodexApproval, nil)
	require.NoError(t, err)
	res, err := s.Sync("orch-1", false, true, TriggerManual)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, ReasonDeliveryGap, res.Reason)

	// Force bypasses the gap.
	res2, err := s.Sync("orch-1", true, true, TriggerManual)
	require.NoError(t, err)
	assert.True(t, res2.Sent)
}

func TestSync_CleanedOrchestration(t *testing.T) {
	s, orch, _ := newSchedulerFixture(t)
	orch.doc.Status = orchestrate.StatusCleaned

	_, err := s.Sync("orch-1", true, true, TriggerManual)
	assert.ErrorIs(t, err, orchestrate.ErrCleaned)
}

func TestTrackUntrack_IntervalSync(t *testing.T) {
	s, orch, _ := newSchedulerFixture(t)
	orch.doc.Sync.Policy.Mode = orchestrate.SyncInterval
	orch.doc.Sync.Policy.IntervalMs = 20

	s.Track("orch-1")
	defer s.Close()

	require.Eventually(t, func() bool { return orch.writeCount() >= 1 },
		2*time.Second, 10*time.Millisecond)

	s.Untrack("orch-1")
	n := orch.writeCount()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, n, orch.writeCount())
}
