package swap

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// memStore is an in-memory EventStore used across the test suite. It
// mirrors the optimistic-concurrency contract a real bbolt-backed store
// must honour.
type memStore struct {
	mu      sync.Mutex
	streams map[string][]Event
}

func newMemStore() *memStore {
	return &memStore{streams: make(map[string][]Event)}
}

func (s *memStore) Load(key string) ([]Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[key]
	out := make([]Event, len(events))
	copy(out, events)
	return out, len(events), nil
}

func (s *memStore) Append(key string, expectedVersion int, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.streams[key]) != expectedVersion {
		return ErrConcurrencyConflict
	}
	s.streams[key] = append(s.streams[key], events...)
	return nil
}

// fakeChain is a ChainIO fake: a scripted fee rate and a recording
// broadcaster.
type fakeChain struct {
	rate       FeeRate
	feeErr     error
	publishErr error

	published []*wire.MsgTx
}

func (f *fakeChain) EstimateFeeRate(uint32) (FeeRate, error) {
	if f.feeErr != nil {
		return 0, f.feeErr
	}
	return f.rate, nil
}

func (f *fakeChain) PublishTransaction(tx *wire.MsgTx) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, tx)
	return nil
}

// fakeAddresses is an AddressSource fake returning canned addresses.
type fakeAddresses struct {
	change btcutil.Address
	refund btcutil.Address
	err    error
}

func (f *fakeAddresses) GetChangeAddress() (btcutil.Address, error) {
	return f.change, f.err
}

func (f *fakeAddresses) GetRefundAddress() (btcutil.Address, error) {
	return f.refund, f.err
}

// fakeUtxo is a UtxoProvider fake that "signs" by copying the PSBT's
// unsigned transaction and adding one unsigned placeholder input (no real
// input selection, no change output), optionally failing. The placeholder
// keeps the transaction's serialized hex decodable: a zero-input
// transaction reads back as a segwit marker.
type fakeUtxo struct {
	err error

	// lastPacket records the most recent PSBT handed to FundAndSign, so
	// tests can assert on the fee-rate/change proprietary fields
	// CreateSwapPSBT attached to it.
	lastPacket *psbt.Packet
}

func (f *fakeUtxo) FundAndSign(packet *psbt.Packet) (*wire.MsgTx, error) {
	f.lastPacket = packet
	if f.err != nil {
		return nil, f.err
	}
	tx := packet.UnsignedTx.Copy()
	tx.AddTxIn(&wire.TxIn{Sequence: wire.MaxTxInSequenceNum})
	return tx, nil
}

// fakePayer is an InvoicePayer fake that records every invoice it was
// asked to pay.
type fakePayer struct {
	mu    sync.Mutex
	paid  []string
	err   error
}

func (f *fakePayer) PayInvoice(invoice string, _ PayParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, invoice)
	return f.err
}
