package chainntnfs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nloopd/nloop/swap"
)

type fakeHeightSource struct {
	mu     sync.Mutex
	height swap.BlockHeight
	err    error
}

func (f *fakeHeightSource) BestHeight() (swap.BlockHeight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, f.err
}

func (f *fakeHeightSource) setHeight(h swap.BlockHeight) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height = h
}

func TestPollingNotifierReportsHeightIncreases(t *testing.T) {
	source := &fakeHeightSource{height: 100}
	n := NewPollingNotifier(swap.AssetBTC, source, 5*time.Millisecond)

	var mu sync.Mutex
	var seen []swap.BlockHeight
	n.RegisterBlockHandler(func(h swap.BlockHeight) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, h)
	})

	require.NoError(t, n.Start())
	defer n.Stop()

	source.setHeight(101)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 1 && seen[len(seen)-1] == 101
	}, time.Second, 5*time.Millisecond)
}

func TestPollingNotifierIgnoresNonIncreasingHeight(t *testing.T) {
	source := &fakeHeightSource{height: 200}
	n := NewPollingNotifier(swap.AssetLTC, source, 5*time.Millisecond)

	var mu sync.Mutex
	calls := 0
	n.RegisterBlockHandler(func(swap.BlockHeight) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	require.NoError(t, n.Start())
	defer n.Stop()

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, calls)
}
