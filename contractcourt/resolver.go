// Package contractcourt adapts the teacher's per-contract resolver
// lifecycle (ContractResolver: ResolverKey, Resolve, Stop, IsResolved,
// Checkpoint) onto this daemon's per-swap aggregate (swap.Handler),
// tracking which swaps are still active so a caller (cmd/nloopd's block
// dispatch, the swap-service status stream) can stop routing commands to
// one once it reaches a terminal state.
package contractcourt

import (
	"fmt"
	"sync"

	"github.com/nloopd/nloop/swap"
)

// ContractResolver is the lifecycle every per-swap resolver follows,
// trimmed to the three methods this daemon's registry actually needs; the
// teacher's own ContractResolver additionally carries Encode/Decode for
// on-disk resolver checkpoints, a concern this daemon doesn't need
// separately -- swap.Handler's event store already is the checkpoint.
type ContractResolver interface {
	// ResolverKey globally identifies the underlying contract; here,
	// the swap's event stream key.
	ResolverKey() []byte

	// IsResolved reports whether the contract has reached a terminal
	// state and can be forgotten.
	IsResolved() bool

	// Stop signals the resolver to stop tracking its swap.
	Stop()
}

// CheckpointFunc is invoked exactly once, the first time a SwapResolver
// observes its swap reach a terminal state.
type CheckpointFunc func(r *SwapResolver) error

// SwapResolver tracks one swap's progress toward a terminal state. It does
// not duplicate swap.Handler's persistence -- Dispatch simply forwards to
// Handler.Execute -- its job is purely the "is this swap still live"
// bookkeeping a daemon needs to stop dispatching chain/counterparty events
// to swaps that are already done.
type SwapResolver struct {
	handler    *swap.Handler
	swapId     swap.Id
	checkpoint CheckpointFunc

	mu       sync.Mutex
	resolved bool

	quit     chan struct{}
	quitOnce sync.Once
}

// NewSwapResolver builds a resolver for swapId, driven by handler.
// checkpoint may be nil.
func NewSwapResolver(handler *swap.Handler, swapId swap.Id,
	checkpoint CheckpointFunc) *SwapResolver {

	return &SwapResolver{
		handler:    handler,
		swapId:     swapId,
		checkpoint: checkpoint,
		quit:       make(chan struct{}),
	}
}

// ResolverKey returns the swap's event stream key, mirroring the teacher's
// outpoint-derived ResolverKey but keyed on swap_id instead (§4.6).
func (r *SwapResolver) ResolverKey() []byte {
	return []byte(r.swapId.StreamKey())
}

// IsResolved reports whether the swap has reached a terminal state.
func (r *SwapResolver) IsResolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Stop signals that this resolver should no longer be driven. Dispatch
// calls after Stop still forward to the handler -- Stop only affects
// IsResolved/registry bookkeeping, since a swap's command stream must
// remain valid even if nothing local is watching it.
func (r *SwapResolver) Stop() {
	r.quitOnce.Do(func() { close(r.quit) })
}

// Dispatch runs cmd against this resolver's swap via the handler, then
// checks whether the resulting state became terminal, invoking checkpoint
// exactly once if so -- the SwapResolver analogue of
// htlcTimeoutResolver.Resolve()'s "mark resolved, then Checkpoint" tail.
func (r *SwapResolver) Dispatch(cmd swap.Command, meta swap.Meta) ([]swap.Event, error) {
	events, err := r.handler.Execute(r.swapId, cmd, meta)
	if err != nil {
		return nil, err
	}

	if terr := r.checkTerminal(); terr != nil {
		return events, terr
	}
	return events, nil
}

func (r *SwapResolver) checkTerminal() error {
	state, err := r.handler.CurrentState(r.swapId)
	if err != nil {
		return err
	}
	if !state.IsTerminal() {
		return nil
	}

	r.mu.Lock()
	alreadyResolved := r.resolved
	r.resolved = true
	r.mu.Unlock()

	if alreadyResolved {
		return nil
	}

	log.Infof("swap %v resolved", r.swapId)

	if r.checkpoint == nil {
		return nil
	}
	return r.checkpoint(r)
}

// ResolverRegistry tracks every swap with an in-flight resolver, so a
// daemon's block/status dispatch loop only routes events to swaps that
// haven't already resolved.
type ResolverRegistry struct {
	handler    *swap.Handler
	checkpoint CheckpointFunc

	mu        sync.Mutex
	resolvers map[swap.Id]*SwapResolver
}

// NewResolverRegistry builds an empty registry driven by handler.
func NewResolverRegistry(handler *swap.Handler, checkpoint CheckpointFunc) *ResolverRegistry {
	return &ResolverRegistry{
		handler:    handler,
		checkpoint: checkpoint,
		resolvers:  make(map[swap.Id]*SwapResolver),
	}
}

// Track returns the resolver for swapId, creating one if this is the
// first time the registry has seen it.
func (reg *ResolverRegistry) Track(swapId swap.Id) *SwapResolver {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.resolvers[swapId]; ok {
		return r
	}

	r := NewSwapResolver(reg.handler, swapId, reg.checkpoint)
	reg.resolvers[swapId] = r
	return r
}

// Dispatch runs cmd against swapId, tracking it first if new.
func (reg *ResolverRegistry) Dispatch(swapId swap.Id, cmd swap.Command,
	meta swap.Meta) ([]swap.Event, error) {

	return reg.Track(swapId).Dispatch(cmd, meta)
}

// Active returns every tracked swap id that hasn't yet resolved.
func (reg *ResolverRegistry) Active() []swap.Id {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	ids := make([]swap.Id, 0, len(reg.resolvers))
	for id, r := range reg.resolvers {
		if !r.IsResolved() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Forget drops a resolved swap's resolver. Calling it on an unresolved
// or untracked swap is a programmer error and returns an error.
func (reg *ResolverRegistry) Forget(swapId swap.Id) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.resolvers[swapId]
	if !ok {
		return fmt.Errorf("contractcourt: refusing to forget untracked swap %v", swapId)
	}
	if !r.IsResolved() {
		return fmt.Errorf("contractcourt: refusing to forget unresolved swap %v", swapId)
	}

	r.Stop()
	delete(reg.resolvers, swapId)
	return nil
}

var _ ContractResolver = (*SwapResolver)(nil)
