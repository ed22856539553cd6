package swap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, rate FeeRate) (*Handler, *memStore) {
	t.Helper()
	deps, _, _, _, _ := testDeps(t, rate)
	store := newMemStore()
	h := NewHandler(store, func(Id) Deps { return deps })
	return h, store
}

func TestHandlerExecuteAppendsAndReturnsEvents(t *testing.T) {
	h, store := newTestHandler(t, 5)

	var id Id
	id[0] = 1
	cmd, _, _ := newLoopOutCmd(t, id, 250)

	events, err := h.Execute(id, cmd, Meta{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	stored, version, err := store.Load(id.StreamKey())
	require.NoError(t, err)
	require.Equal(t, 2, version)
	require.Equal(t, events, stored)
}

func TestHandlerExecuteNoopProducesNoAppend(t *testing.T) {
	h, store := newTestHandler(t, 5)

	var id Id
	id[0] = 2
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	_, err := h.Execute(id, cmd, Meta{})
	require.NoError(t, err)

	// A SwapUpdate repeating the already-current status is a no-op.
	events, err := h.Execute(id, SwapUpdate{OutStatus: LoopOutStatusInitiated}, Meta{})
	require.NoError(t, err)
	require.Nil(t, events)

	_, version, err := store.Load(id.StreamKey())
	require.NoError(t, err)
	require.Equal(t, 2, version)
}

func TestHandlerExecuteErrorAppendsNothing(t *testing.T) {
	h, store := newTestHandler(t, 5)

	var id Id
	id[0] = 3
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	cmd.OnChainAmount = 0

	events, err := h.Execute(id, cmd, Meta{})
	require.Error(t, err)
	require.Nil(t, events)

	_, version, err := store.Load(id.StreamKey())
	require.NoError(t, err)
	require.Equal(t, 0, version)
}

func TestHandlerCurrentStateReplaysStream(t *testing.T) {
	h, _ := newTestHandler(t, 5)

	var id Id
	id[0] = 4
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	_, err := h.Execute(id, cmd, Meta{})
	require.NoError(t, err)

	state, err := h.CurrentState(id)
	require.NoError(t, err)
	require.Equal(t, KindOut, state.Kind)
	require.Equal(t, id, state.Out.Id)
}

// conflictOnceStore wraps an EventStore and reports a lost optimistic-
// concurrency race on the first n Append calls, then delegates normally.
type conflictOnceStore struct {
	EventStore
	mu        sync.Mutex
	conflicts int
}

func (s *conflictOnceStore) Append(key string, expectedVersion int, events []Event) error {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return ErrConcurrencyConflict
	}
	s.mu.Unlock()
	return s.EventStore.Append(key, expectedVersion, events)
}

func TestHandlerExecuteRetriesOnConcurrencyConflict(t *testing.T) {
	deps, _, _, _, _ := testDeps(t, 5)
	inner := newMemStore()
	store := &conflictOnceStore{EventStore: inner, conflicts: 2}
	h := NewHandler(store, func(Id) Deps { return deps })

	var id Id
	id[0] = 5
	cmd, _, _ := newLoopOutCmd(t, id, 250)

	events, err := h.Execute(id, cmd, Meta{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 0, store.conflicts)

	stored, version, err := inner.Load(id.StreamKey())
	require.NoError(t, err)
	require.Equal(t, 2, version)
	require.Equal(t, events, stored)
}

func TestHandlerExecuteExhaustsRetriesAndFails(t *testing.T) {
	deps, _, _, _, _ := testDeps(t, 5)
	inner := newMemStore()
	store := &conflictOnceStore{EventStore: inner, conflicts: maxAppendRetries}
	h := NewHandler(store, func(Id) Deps { return deps })

	var id Id
	id[0] = 55
	cmd, _, _ := newLoopOutCmd(t, id, 250)

	events, err := h.Execute(id, cmd, Meta{})
	require.Error(t, err)
	require.Nil(t, events)
	require.IsType(t, UnexpectedError{}, err)
}

func TestHandlerSubscriberReceivesAppendedEvents(t *testing.T) {
	h, _ := newTestHandler(t, 5)

	var received []Event
	var mu sync.Mutex
	h.Subscribe(func(swapId Id, event Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	})

	var id Id
	id[0] = 6
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	events, err := h.Execute(id, cmd, Meta{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, events, received)
}
