package swap

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// LoopOut holds the parameters and on-chain facts of a loop-out (reverse)
// swap: we pay an off-chain invoice, the counterparty funds an on-chain
// HTLC, and we sweep it with the preimage.
type LoopOut struct {
	Id Id

	Pair   PairId
	Status LoopOutStatus

	// ClaimKey is the private key controlling the claim (preimage) path
	// of the HTLC. It is generated at swap birth and never shared.
	ClaimKey *btcec.PrivateKey

	// Preimage is known from swap creation -- we reveal it by sweeping.
	Preimage PaymentPreimage

	// RedeemScript is the HTLC script the counterparty promised to
	// fund, validated against our expectations before the swap starts.
	RedeemScript []byte

	// ClaimAddress is where swept funds are sent, in its string encoding
	// -- stored rather than as a parsed btcutil.Address so it survives
	// an event-stream replay without needing chain params at decode
	// time (§4.3). It is re-parsed against the active chain params at
	// the point a claim transaction is actually built.
	ClaimAddress string

	// Invoice is the hold-invoice we pay off-chain; counterparty pulls
	// it only by revealing the preimage via the on-chain claim.
	Invoice string

	// PrepayInvoice optionally prepays the expected miner fee, fired
	// off when the swap starts.
	PrepayInvoice string

	// OnChainAmount is the expected value of the HTLC output.
	OnChainAmount btcutil.Amount

	// TimeoutBlockHeight is the absolute height after which the
	// counterparty can refund the HTLC.
	TimeoutBlockHeight BlockHeight

	// SweepConfTarget is the desired confirmation target for the claim
	// transaction.
	SweepConfTarget uint32

	// MaxMinerFee absolutely caps the claim transaction's fee.
	MaxMinerFee btcutil.Amount

	// AcceptZeroConf allows sweeping before the lockup transaction
	// confirms.
	AcceptZeroConf bool

	// LockupTxHex is set once the HTLC-funding transaction has been
	// observed.
	LockupTxHex string

	// ClaimTransactionId is set once the sweep has been broadcast.
	ClaimTransactionId string
}

// LoopOutStatus mirrors the counterparty's reported swap status.
type LoopOutStatus uint8

const (
	LoopOutStatusInitiated LoopOutStatus = iota
	LoopOutStatusTxMempool
	LoopOutStatusTxConfirmed
	LoopOutStatusSwapExpired
)

// LoopIn holds the parameters and on-chain facts of a loop-in (forward)
// swap: the counterparty offers an off-chain payment, we fund an on-chain
// HTLC, and the counterparty claims it, revealing the preimage that
// settles our off-chain side.
type LoopIn struct {
	Id Id

	Pair   PairId
	Status LoopInStatus

	// RefundPrivateKey controls the timeout/refund path of the HTLC we
	// fund.
	RefundPrivateKey *btcec.PrivateKey

	RedeemScript   []byte
	ExpectedAmount btcutil.Amount

	TimeoutBlockHeight BlockHeight
	HtlcConfTarget      uint32

	// LockupTxHex is set after we broadcast the HTLC-funding
	// transaction.
	LockupTxHex string

	// RefundTransactionId is set after we broadcast a refund.
	RefundTransactionId string
}

// LoopInStatus mirrors the counterparty's reported swap status.
type LoopInStatus uint8

const (
	LoopInStatusInitiated LoopInStatus = iota
	LoopInStatusInvoiceSet
	LoopInStatusTxConfirmed
	LoopInStatusInvoicePayed
	LoopInStatusInvoiceFailedToPay
	LoopInStatusTxClaimed
	LoopInStatusSwapExpired
)

// Kind identifies which variant a State value holds.
type Kind uint8

const (
	KindHasNotStarted Kind = iota
	KindOut
	KindIn
	KindFinished
)

// OutcomeKind identifies one of the four terminal outcomes a swap can
// reach. These are the only user-visible outcomes (§7).
type OutcomeKind uint8

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRefunded
	OutcomeErrored
	OutcomeTimeout
)

// Outcome describes how a finished swap ended.
type Outcome struct {
	Kind OutcomeKind

	// RefundTxId is set when Kind == OutcomeRefunded.
	RefundTxId string

	// Msg carries the error message (OutcomeErrored) or the timeout
	// reason (OutcomeTimeout).
	Msg string
}

// State is the tagged union produced by folding a swap's events. It is
// always derived, never authoritative -- the event stream is the single
// source of truth (§3 Ownership/lifecycle).
type State struct {
	Kind Kind

	// BlockHeight is the most recently observed tip for this swap's
	// relevant chain. Valid when Kind is KindOut or KindIn.
	BlockHeight BlockHeight

	// Out is populated when Kind == KindOut.
	Out *LoopOut

	// In is populated when Kind == KindIn.
	In *LoopIn

	// Finished is populated when Kind == KindFinished.
	Finished *Outcome
}

// ZeroState is the initial, pre-fold state of every swap.
func ZeroState() State {
	return State{Kind: KindHasNotStarted}
}

// IsTerminal reports whether no further events may be appended to the
// stream that produced this state (invariant 2).
func (s State) IsTerminal() bool {
	return s.Kind == KindFinished
}
