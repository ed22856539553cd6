package swap

import (
	"errors"
	"sync"
)

// ErrConcurrencyConflict is returned by an EventStore's Append when the
// caller's expected version no longer matches the stream -- somebody else
// appended in between Load and Append.
var ErrConcurrencyConflict = errors.New("swap: concurrency conflict appending to stream")

// maxAppendRetries bounds how many load-fold-exec-append attempts
// Handler.Execute makes in total, the first included, when it keeps losing
// an optimistic-concurrency race (§4.6 step 4).
const maxAppendRetries = 5

// EventStore is the append-only, per-stream persistence collaborator C7
// sits on top of. A stream is identified by Id.StreamKey(). Implementations
// must serialise Append calls against the same key by version, but need
// not serialise across different keys.
type EventStore interface {
	// Load returns every event recorded for key, in stream order,
	// along with the stream's current version (its length).
	Load(key string) ([]Event, int, error)

	// Append adds events to the stream at key, succeeding only if the
	// stream's current version equals expectedVersion. Returns
	// ErrConcurrencyConflict otherwise.
	Append(key string, expectedVersion int, events []Event) error
}

// DepsFactory builds the Deps a command against swapId should run with.
// Wiring collaborators per-swap (rather than handing Handler one static
// Deps) lets a daemon route, e.g., a chain client keyed by the swap's
// PairId.Base asset.
type DepsFactory func(swapId Id) Deps

// Subscriber receives every event appended to any stream Handler manages,
// tagged with the swap it belongs to. Used to feed projections and
// command waiters (§4.6 step 5).
type Subscriber func(swapId Id, event Event)

// Handler orchestrates the load-fold-exec-append cycle for every swap,
// serialising commands per swap_id through a per-key mutex so Exec is
// never re-entered concurrently for the same swap (§5, §9 "actor per
// swap"). This mirrors the per-outpoint mutual exclusion a breach
// arbiter applies to channel closes, generalised to per-swap-id command
// dispatch.
type Handler struct {
	store EventStore
	deps  DepsFactory

	locksMu sync.Mutex
	locks   map[Id]*sync.Mutex

	subsMu sync.Mutex
	subs   []Subscriber
}

// NewHandler builds a Handler backed by store, deriving per-command Deps
// via deps.
func NewHandler(store EventStore, deps DepsFactory) *Handler {
	return &Handler{
		store: store,
		deps:  deps,
		locks: make(map[Id]*sync.Mutex),
	}
}

// Subscribe registers sub to receive every event this Handler appends,
// across all swaps, from this point on.
func (h *Handler) Subscribe(sub Subscriber) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	h.subs = append(h.subs, sub)
}

func (h *Handler) notify(swapId Id, events []Event) {
	h.subsMu.Lock()
	subs := make([]Subscriber, len(h.subs))
	copy(subs, h.subs)
	h.subsMu.Unlock()

	for _, event := range events {
		for _, sub := range subs {
			sub(swapId, event)
		}
	}
}

func (h *Handler) lockFor(swapId Id) *sync.Mutex {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()

	mu, ok := h.locks[swapId]
	if !ok {
		mu = &sync.Mutex{}
		h.locks[swapId] = mu
	}
	return mu
}

// CurrentState replays the stream for swapId and returns its folded
// State, for read-only callers (status queries, projections).
func (h *Handler) CurrentState(swapId Id) (State, error) {
	events, _, err := h.store.Load(swapId.StreamKey())
	if err != nil {
		return State{}, err
	}
	return Fold(events), nil
}

// Execute runs cmd against swapId's current state (§4.6):
//
//  1. load the stream and fold it into a state;
//  2. invoke Exec, which may call external collaborators;
//  3. append the resulting events with optimistic concurrency, starting
//     over from step 1 on a lost race, for at most maxAppendRetries
//     attempts in total;
//  4. notify subscribers.
//
// Exec errors are returned unchanged and nothing is appended. A command
// against a terminal swap is accepted and produces no events, per Exec's
// own contract.
func (h *Handler) Execute(swapId Id, cmd Command, meta Meta) ([]Event, error) {
	mu := h.lockFor(swapId)
	mu.Lock()
	defer mu.Unlock()

	key := swapId.StreamKey()
	deps := h.deps(swapId)

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		events, version, err := h.store.Load(key)
		if err != nil {
			return nil, err
		}

		state := Fold(events)

		newEvents, err := Exec(state, cmd, deps, meta)
		if err != nil {
			return nil, err
		}
		if len(newEvents) == 0 {
			return nil, nil
		}

		if err := h.store.Append(key, version, newEvents); err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				continue
			}
			return nil, err
		}

		h.notify(swapId, newEvents)
		return newEvents, nil
	}

	return nil, UnexpectedError{Msg: "exhausted retries appending to stream"}
}
