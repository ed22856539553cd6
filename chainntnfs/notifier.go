// Package chainntnfs feeds chain-tip facts into the swap core as NewBlock
// commands. It deliberately knows nothing about swaps: it watches a height
// source per asset and reports height increases to whatever is listening.
package chainntnfs

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/nloopd/nloop/swap"
)

// HeightSource is the chain backend's minimal surface: the current best
// height for one asset's chain.
type HeightSource interface {
	BestHeight() (swap.BlockHeight, error)
}

// BlockHandler is invoked once per observed height increase.
type BlockHandler func(height swap.BlockHeight)

// PollingNotifier polls a HeightSource on a fixed interval and notifies
// every registered handler when the tip advances. Real chain backends that
// expose push notifications (ZeroMQ, btcd websockets) would implement a
// push-based Notifier instead; polling is the lowest common denominator
// this daemon can always fall back to.
type PollingNotifier struct {
	asset  swap.Asset
	source HeightSource
	ticker ticker.Ticker

	mu       sync.Mutex
	handlers []BlockHandler
	lastSeen swap.BlockHeight

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewPollingNotifier builds a notifier for asset, polling source every
// interval.
func NewPollingNotifier(asset swap.Asset, source HeightSource,
	interval time.Duration) *PollingNotifier {

	return &PollingNotifier{
		asset:  asset,
		source: source,
		ticker: ticker.New(interval),
		quit:   make(chan struct{}),
	}
}

// RegisterBlockHandler adds h to the set of handlers notified on every
// observed height increase.
func (n *PollingNotifier) RegisterBlockHandler(h BlockHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, h)
}

// Start begins polling. It must be called at most once.
func (n *PollingNotifier) Start() error {
	height, err := n.source.BestHeight()
	if err != nil {
		return err
	}
	n.lastSeen = height

	n.ticker.Resume()
	n.wg.Add(1)
	go n.pollLoop()
	return nil
}

// Stop halts polling and releases the underlying ticker.
func (n *PollingNotifier) Stop() {
	close(n.quit)
	n.ticker.Stop()
	n.wg.Wait()
}

func (n *PollingNotifier) pollLoop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ticker.Ticks():
			n.poll()
		case <-n.quit:
			return
		}
	}
}

func (n *PollingNotifier) poll() {
	height, err := n.source.BestHeight()
	if err != nil {
		log.Errorf("chainntnfs: best height poll failed for %v: %v", n.asset, err)
		return
	}

	n.mu.Lock()
	if height <= n.lastSeen {
		n.mu.Unlock()
		return
	}
	n.lastSeen = height
	handlers := make([]BlockHandler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()

	for _, h := range handlers {
		h(height)
	}
}

// DispatchToHandler returns a BlockHandler that executes a NewBlock
// command for asset against swapId on h, logging any error.
func DispatchToHandler(h *swap.Handler, swapId swap.Id, asset swap.Asset) BlockHandler {
	return func(height swap.BlockHeight) {
		if _, err := h.Execute(swapId, swap.NewBlock{
			Height: height,
			Asset:  asset,
		}, swap.Meta{}); err != nil {
			log.Errorf("chainntnfs: NewBlock dispatch for %v failed: %v", swapId, err)
		}
	}
}
