package swapdb

import (
	"github.com/lightningnetwork/lnd/queue"

	"github.com/nloopd/nloop/swap"
)

// Subscription delivers every event recorded for a stream: its full
// backlog first, in order (the catch-up read), followed by every event
// appended to it afterward, until Cancel is called.
type Subscription struct {
	// Events yields the stream's backlog followed by its live updates.
	// It is closed once Cancel stops the subscription.
	Events <-chan swap.Event

	queue *queue.ConcurrentQueue
}

// Cancel stops the subscription and releases its queue.
func (s *Subscription) Cancel() {
	s.queue.Stop()
}

// Subscribe opens a catch-up subscription on key. The backing
// queue.ConcurrentQueue decouples Append (the writer) from a subscriber
// that reads slowly: a backlog the reader hasn't drained yet buffers in
// the queue's own unbounded list instead of blocking the next Append, the
// same role the teacher uses ConcurrentQueue for between a fast producer
// and a slow htlcswitch link.
func (d *DB) Subscribe(key string) (*Subscription, error) {
	backlog, _, err := d.Load(key)
	if err != nil {
		return nil, err
	}

	q := queue.NewConcurrentQueue(len(backlog) + 1)
	q.Start()

	out := make(chan swap.Event)
	go func() {
		defer close(out)
		for v := range q.ChanOut() {
			out <- v.(swap.Event)
		}
	}()

	for _, e := range backlog {
		q.ChanIn() <- e
	}

	d.subsMu.Lock()
	d.subs[key] = append(d.subs[key], q)
	d.subsMu.Unlock()

	return &Subscription{Events: out, queue: q}, nil
}

// notifySubscribers fans newly appended events out to every live
// subscription on key. Called after Append's write transaction commits,
// so a subscriber never observes an event before it is durable.
func (d *DB) notifySubscribers(key string, events []swap.Event) {
	d.subsMu.Lock()
	qs := append([]*queue.ConcurrentQueue(nil), d.subs[key]...)
	d.subsMu.Unlock()

	for _, q := range qs {
		for _, e := range events {
			q.ChanIn() <- e
		}
	}
}
