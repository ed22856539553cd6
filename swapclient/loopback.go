package swapclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/nloopd/nloop/swap"
)

// LoopbackSwapClient is an in-memory SwapClient double, standing in for a
// real counterparty during tests. It echoes GetQuote/LoopOut/LoopIn
// requests back as fixed responses and lets a test push StatusUpdates
// onto whatever subscription is active, mirroring the teacher's own
// preference for hand-rolled loopback fakes over a mocking framework
// (see htlcswitch/mock.go's mailbox/switch doubles).
type LoopbackSwapClient struct {
	mu   sync.Mutex
	subs map[swap.Id]chan StatusUpdate

	SwapFee  btcutil.Amount
	MinerFee btcutil.Amount

	LockupAddress string
	Invoice       string
	RedeemScript  []byte
	Timeout       swap.BlockHeight

	NextId swap.Id
}

// NewLoopbackSwapClient returns a ready-to-use loopback double.
func NewLoopbackSwapClient() *LoopbackSwapClient {
	return &LoopbackSwapClient{
		subs: make(map[swap.Id]chan StatusUpdate),
	}
}

func (l *LoopbackSwapClient) LoopOut(ctx context.Context, req LoopOutRequest) (*LoopOutResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &LoopOutResponse{
		Id:                 l.NextId,
		LockupAddress:      l.LockupAddress,
		Invoice:            l.Invoice,
		TimeoutBlockHeight: l.Timeout,
		OnChainAmount:      req.InvoiceAmount,
		RedeemScript:       l.RedeemScript,
	}, nil
}

func (l *LoopbackSwapClient) LoopIn(ctx context.Context, req LoopInRequest) (*LoopInResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &LoopInResponse{
		Id:                 l.NextId,
		Address:            l.LockupAddress,
		RedeemScript:       l.RedeemScript,
		TimeoutBlockHeight: l.Timeout,
	}, nil
}

func (l *LoopbackSwapClient) GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &QuoteResponse{SwapFee: l.SwapFee, MinerFee: l.MinerFee}, nil
}

func (l *LoopbackSwapClient) SubscribeStatus(ctx context.Context, swapId swap.Id) (<-chan StatusUpdate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan StatusUpdate, 8)
	l.subs[swapId] = ch

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.subs[swapId] == ch {
			delete(l.subs, swapId)
		}
	}()

	return ch, nil
}

// Push delivers upd to swapId's active subscriber, if any. It errors if no
// test has called SubscribeStatus for swapId yet.
func (l *LoopbackSwapClient) Push(swapId swap.Id, upd StatusUpdate) error {
	l.mu.Lock()
	ch, ok := l.subs[swapId]
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("swapclient: no subscriber for %s", swapId)
	}

	ch <- upd
	return nil
}

var _ SwapClient = (*LoopbackSwapClient)(nil)

// LoopbackLightningClient is an in-memory LightningClient double. PayInvoice
// always succeeds with a fixed preimage unless FailPayment is set, letting
// tests exercise both the happy path and payment-failure handling through
// LightningInvoicePayer without a real lnd connection.
type LoopbackLightningClient struct {
	mu sync.Mutex

	Preimage    swap.PaymentPreimage
	FailPayment error

	invoices map[swap.PaymentHash]chan InvoiceState

	DepositAddr btcutil.Address
	RouteCount  int
}

// NewLoopbackLightningClient returns a ready-to-use loopback double.
func NewLoopbackLightningClient() *LoopbackLightningClient {
	return &LoopbackLightningClient{
		invoices: make(map[swap.PaymentHash]chan InvoiceState),
	}
}

func (l *LoopbackLightningClient) PayInvoice(ctx context.Context, invoice string,
	maxFee btcutil.Amount, outgoingChanId uint64) (swap.PaymentPreimage, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailPayment != nil {
		return swap.PaymentPreimage{}, l.FailPayment
	}
	return l.Preimage, nil
}

func (l *LoopbackLightningClient) GetDepositAddress(ctx context.Context) (btcutil.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.DepositAddr, nil
}

func (l *LoopbackLightningClient) GetHodlInvoice(ctx context.Context, hash swap.PaymentHash,
	amount btcutil.Amount, expiry time.Duration) (string, error) {

	return "", fmt.Errorf("swapclient: loopback does not encode invoices, " +
		"use zpay32 directly in the test")
}

func (l *LoopbackLightningClient) SubscribeSingleInvoice(ctx context.Context,
	hash swap.PaymentHash) (<-chan InvoiceState, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan InvoiceState, 1)
	l.invoices[hash] = ch
	return ch, nil
}

// SettleInvoice delivers a settled InvoiceState to hash's subscriber.
func (l *LoopbackLightningClient) SettleInvoice(hash swap.PaymentHash, preimage swap.PaymentPreimage) error {
	l.mu.Lock()
	ch, ok := l.invoices[hash]
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("swapclient: no subscriber for invoice %x", hash)
	}

	ch <- InvoiceState{Settled: true, Preimage: preimage}
	return nil
}

func (l *LoopbackLightningClient) QueryRoutes(ctx context.Context, dest *btcec.PublicKey,
	amount btcutil.Amount) (int, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.RouteCount, nil
}

var _ LightningClient = (*LoopbackLightningClient)(nil)
