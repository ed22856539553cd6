package swapclient

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/nloopd/nloop/swap"
)

// LoopOutRequest/LoopOutResponse, LoopInRequest/LoopInResponse and
// QuoteRequest/QuoteResponse mirror the request/response shapes of §6's
// LoopOut/LoopIn/GetQuote calls, trimmed to a minimal set of fields.
type LoopOutRequest struct {
	Pair          swap.PairId
	ClaimPubKey   *btcec.PublicKey
	InvoiceAmount btcutil.Amount
	PreimageHash  swap.PaymentHash
}

type LoopOutResponse struct {
	Id                 swap.Id
	LockupAddress      string
	Invoice            string
	TimeoutBlockHeight swap.BlockHeight
	OnChainAmount      btcutil.Amount
	RedeemScript       []byte
}

type LoopInRequest struct {
	Pair         swap.PairId
	RefundPubKey *btcec.PublicKey
	Invoice      string
}

type LoopInResponse struct {
	Id                 swap.Id
	Address            string
	RedeemScript       []byte
	AcceptZeroConf     bool
	ExpectedAmount     btcutil.Amount
	TimeoutBlockHeight swap.BlockHeight
}

type QuoteRequest struct {
	Pair   swap.PairId
	Amount btcutil.Amount
}

type QuoteResponse struct {
	SwapFee  btcutil.Amount
	MinerFee btcutil.Amount
}

// StatusUpdate is one entry of a swap's counterparty-reported status
// stream (§6): TxMempool, TxConfirmed, TxClaimed, InvoiceSet, InvoicePayed,
// InvoiceFailedToPay, SwapExpired, each optionally carrying the raw
// HTLC-funding transaction for a loop-out.
type StatusUpdate struct {
	SwapId swap.Id
	Status string
	TxHex  string
}

// SwapClient is the counterparty swap-service surface consumed by
// cmd/nloopd's swap-creation flow.
type SwapClient interface {
	LoopOut(ctx context.Context, req LoopOutRequest) (*LoopOutResponse, error)
	LoopIn(ctx context.Context, req LoopInRequest) (*LoopInResponse, error)
	GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error)
	SubscribeStatus(ctx context.Context, swapId swap.Id) (<-chan StatusUpdate, error)
}

// LightningClient is the lndclient-flavoured subset of the local
// Lightning node's RPC surface (§6). Only PayInvoice is consumed by
// swap/exec.go via the InvoicePayer adapter below; the rest are declared
// for cmd/nloopd wiring completeness.
type LightningClient interface {
	PayInvoice(ctx context.Context, invoice string, maxFee btcutil.Amount,
		outgoingChanId uint64) (swap.PaymentPreimage, error)

	GetDepositAddress(ctx context.Context) (btcutil.Address, error)
	GetHodlInvoice(ctx context.Context, hash swap.PaymentHash,
		amount btcutil.Amount, expiry time.Duration) (string, error)
	SubscribeSingleInvoice(ctx context.Context, hash swap.PaymentHash) (<-chan InvoiceState, error)
	QueryRoutes(ctx context.Context, dest *btcec.PublicKey, amount btcutil.Amount) (int, error)
}

// InvoiceState is the minimal single-invoice subscription payload
// cmd/nloopd needs to know when a hold invoice has been settled.
type InvoiceState struct {
	Settled  bool
	Preimage swap.PaymentPreimage
}
