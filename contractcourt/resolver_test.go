package contractcourt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nloopd/nloop/swap"
)

// memStore is a minimal in-memory swap.EventStore, local to this package's
// tests (swap's own equivalent fake is unexported to swap's test files).
type memStore struct {
	mu      sync.Mutex
	streams map[string][]swap.Event
}

func newMemStore() *memStore {
	return &memStore{streams: make(map[string][]swap.Event)}
}

func (m *memStore) Load(key string) ([]swap.Event, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.streams[key]
	return events, len(events), nil
}

func (m *memStore) Append(key string, expectedVersion int, events []swap.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.streams[key]
	if len(cur) != expectedVersion {
		return swap.ErrConcurrencyConflict
	}
	m.streams[key] = append(cur, events...)
	return nil
}

func testHandler(t *testing.T) (*swap.Handler, *memStore) {
	t.Helper()
	store := newMemStore()
	h := swap.NewHandler(store, func(swap.Id) swap.Deps { return swap.Deps{} })
	return h, store
}

func finishedOutId(t *testing.T) (swap.Id, *swap.Handler, *memStore) {
	t.Helper()
	h, store := testHandler(t)

	var id swap.Id
	id[0] = 9

	err := store.Append(id.StreamKey(), 0, []swap.Event{
		swap.NewLoopOutAdded{Height: 1, LoopOut: swap.LoopOut{Id: id}},
		swap.FinishedSuccessfully{Id: id},
	})
	require.NoError(t, err)

	return id, h, store
}

func TestSwapResolverResolverKeyMatchesStreamKey(t *testing.T) {
	h, _ := testHandler(t)
	var id swap.Id
	id[0] = 1

	r := NewSwapResolver(h, id, nil)
	require.Equal(t, []byte(id.StreamKey()), r.ResolverKey())
}

func TestSwapResolverNotResolvedForActiveSwap(t *testing.T) {
	h, store := testHandler(t)
	var id swap.Id
	id[0] = 2

	require.NoError(t, store.Append(id.StreamKey(), 0, []swap.Event{
		swap.NewLoopOutAdded{Height: 1, LoopOut: swap.LoopOut{Id: id, TimeoutBlockHeight: 1000}},
	}))

	r := NewSwapResolver(h, id, nil)
	_, err := r.Dispatch(swap.NewBlock{Height: 2, Asset: swap.AssetBTC}, swap.Meta{})
	require.NoError(t, err)
	require.False(t, r.IsResolved())
}

func TestSwapResolverResolvesOnTerminalState(t *testing.T) {
	id, h, _ := finishedOutId(t)

	var checkpointed int
	checkpoint := func(r *SwapResolver) error {
		checkpointed++
		return nil
	}

	r := NewSwapResolver(h, id, checkpoint)
	require.False(t, r.IsResolved())

	_, err := r.Dispatch(swap.NewBlock{Height: 2, Asset: swap.AssetBTC}, swap.Meta{})
	require.NoError(t, err)
	require.True(t, r.IsResolved())
	require.Equal(t, 1, checkpointed)

	// Checkpoint fires only once, even across further no-op dispatches.
	_, err = r.Dispatch(swap.NewBlock{Height: 3, Asset: swap.AssetBTC}, swap.Meta{})
	require.NoError(t, err)
	require.Equal(t, 1, checkpointed)
}

func TestResolverRegistryTracksAndForgets(t *testing.T) {
	id, h, _ := finishedOutId(t)

	reg := NewResolverRegistry(h, nil)
	_, err := reg.Dispatch(id, swap.NewBlock{Height: 2, Asset: swap.AssetBTC}, swap.Meta{})
	require.NoError(t, err)

	require.Empty(t, reg.Active())

	require.NoError(t, reg.Forget(id))

	var other swap.Id
	other[0] = 10
	require.Error(t, reg.Forget(other))
}
