package swapdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nloopd/nloop/swap"
)

func recvEvent(t *testing.T, ch <-chan swap.Event) swap.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subscription event")
		return nil
	}
}

func TestSubscribeDeliversBacklogThenLiveUpdates(t *testing.T) {
	db := openTestDB(t)

	key := "swap-sub"
	backlog := []swap.Event{
		swap.NewTipReceived{Height: 1},
		swap.NewTipReceived{Height: 2},
	}
	require.NoError(t, db.Append(key, 0, backlog))

	sub, err := db.Subscribe(key)
	require.NoError(t, err)
	defer sub.Cancel()

	require.Equal(t, backlog[0], recvEvent(t, sub.Events))
	require.Equal(t, backlog[1], recvEvent(t, sub.Events))

	live := swap.NewTipReceived{Height: 3}
	require.NoError(t, db.Append(key, 2, []swap.Event{live}))

	require.Equal(t, live, recvEvent(t, sub.Events))
}

func TestSubscribeFansOutToMultipleSubscribers(t *testing.T) {
	db := openTestDB(t)

	key := "swap-fanout"

	subA, err := db.Subscribe(key)
	require.NoError(t, err)
	defer subA.Cancel()

	subB, err := db.Subscribe(key)
	require.NoError(t, err)
	defer subB.Cancel()

	live := swap.NewTipReceived{Height: 7}
	require.NoError(t, db.Append(key, 0, []swap.Event{live}))

	require.Equal(t, live, recvEvent(t, subA.Events))
	require.Equal(t, live, recvEvent(t, subB.Events))
}
