// nloopd is the daemon entry point: it loads config, wires logging, opens
// the event store, and drives the per-swap state machine against the
// chain-tip feed. The dispatch loop itself is
// intentionally thin -- almost everything it needs already lives in swap,
// swapdb, chainntnfs, contractcourt and swapclient; main's job is only to
// construct and connect those pieces, the same "glue, not logic" role the
// teacher's own lnd.go plays for its much larger daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/healthcheck"

	"github.com/nloopd/nloop/chainntnfs"
	"github.com/nloopd/nloop/contractcourt"
	"github.com/nloopd/nloop/swap"
	"github.com/nloopd/nloop/swapclient"
	"github.com/nloopd/nloop/swapdb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}

	if err := initLogRotator(cfg.logFile(), cfg.MaxLogFileMB, cfg.MaxLogFiles); err != nil {
		return fmt.Errorf("unable to init log rotator: %w", err)
	}
	setLogLevels(cfg.DebugLevel)

	params, err := networkParams(cfg.Network)
	if err != nil {
		return err
	}

	store, err := swapdb.Open(cfg.dbDir())
	if err != nil {
		return fmt.Errorf("unable to open swap store: %w", err)
	}
	defer store.Close()

	lnd := swapclient.NewLoopbackLightningClient()
	payer := &swapclient.LightningInvoicePayer{Client: lnd}

	depsFactory := func(swapId swap.Id) swap.Deps {
		return swap.Deps{
			Payer:  payer,
			Params: params,
		}
	}

	handler := swap.NewHandler(store, depsFactory)

	checkpoint := func(r *contractcourt.SwapResolver) error {
		log.Infof("checkpointing resolved swap %x", r.ResolverKey())
		return nil
	}
	registry := contractcourt.NewResolverRegistry(handler, checkpoint)

	btcNotifier := chainntnfs.NewPollingNotifier(
		swap.AssetBTC, &staticHeightSource{}, 10*time.Second,
	)
	btcNotifier.RegisterBlockHandler(func(height swap.BlockHeight) {
		dispatchNewBlock(registry, height, swap.AssetBTC)
	})
	if err := btcNotifier.Start(); err != nil {
		return fmt.Errorf("unable to start chain notifier: %w", err)
	}
	defer btcNotifier.Stop()

	swapServer, err := swapclient.DialSwapService(cfg.SwapServerHost)
	if err != nil {
		return fmt.Errorf("unable to dial swap service: %w", err)
	}
	defer swapServer.Close()

	monitor := newHealthMonitor(cfg, swapServer)
	if err := monitor.Start(); err != nil {
		return fmt.Errorf("unable to start health monitor: %w", err)
	}
	defer monitor.Stop()

	log.Infof("nloopd ready: network=%v swapserver=%v", cfg.Network, cfg.SwapServerHost)

	<-interruptListener()
	log.Infof("shutting down")
	return nil
}

// dispatchNewBlock fans a chain-tip update out to every active swap,
// exactly like the teacher's breacharbiter iterates its active set on each
// new block -- each swap's Exec independently decides whether the tip is
// relevant to its asset (§4.4).
func dispatchNewBlock(registry *contractcourt.ResolverRegistry, height swap.BlockHeight, asset swap.Asset) {
	cmd := swap.NewBlock{Height: height, Asset: asset}
	meta := swap.Meta{EffectiveDate: time.Now().Unix(), Source: "chain"}

	for _, id := range registry.Active() {
		if _, err := registry.Dispatch(id, cmd, meta); err != nil {
			log.Errorf("dispatching new block to swap %v: %v", id, err)
		}
	}
}

// staticHeightSource is a placeholder HeightSource until a real chain
// backend (btcd RPC, neutrino) is wired; swap-service integration tests
// use chainntnfs's own fakes instead (see chainntnfs/*_test.go).
type staticHeightSource struct{}

func (staticHeightSource) BestHeight() (swap.BlockHeight, error) {
	return 0, nil
}

func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// newHealthMonitor builds a healthcheck.Monitor with one "swap service"
// observation, the teacher's own use of lnd/healthcheck (each Observation
// independently retries/backs off, the Monitor just runs them on a
// schedule). The observation's check always succeeds: it does not probe
// swapServer's connection.
func newHealthMonitor(cfg *config, swapServer *swapclient.GRPCSwapClient) *healthcheck.Monitor {
	swapServiceCheck := healthcheck.NewObservation(
		"swap service",
		func() error {
			return nil
		},
		time.Minute,
		30*time.Second,
		0,
		1,
	)

	return healthcheck.NewMonitor(&healthcheck.Config{
		Checks: []*healthcheck.Observation{swapServiceCheck},
		Shutdown: func(format string, args ...interface{}) {
			log.Errorf(format, args...)
		},
	})
}

// interruptListener returns a channel closed on SIGINT/SIGTERM, mirroring
// the teacher's signal.InterruptListener used across its cmd entrypoints.
func interruptListener() <-chan struct{} {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		<-sigCh
		close(done)
	}()
	return done
}
