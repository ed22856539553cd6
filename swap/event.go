package swap

import "github.com/btcsuite/btcd/btcutil"

// Tag identifies an event's wire type. Tags are grouped into namespaces by
// range: loop-out facts below 256, loop-in facts 256-511, chain facts
// 512-1023, terminal facts 1024 and up (§4.3).
type Tag uint16

const (
	TagNewLoopOutAdded       Tag = 0
	TagClaimTxPublished      Tag = 1
	TagOffChainOfferStarted  Tag = 2
	TagOffChainOfferResolved Tag = 3

	TagNewLoopInAdded   Tag = 256
	TagSwapTxPublished  Tag = 257
	TagRefundTxPublished Tag = 258

	TagNewTipReceived Tag = 512

	TagFinishedSuccessfully Tag = 1024
	TagFinishedByRefund     Tag = 1025
	TagFinishedByError      Tag = 1026
	TagFinishedByTimeout    Tag = 1027
)

// Event is one entry in a swap's append-only stream.
type Event interface {
	// EventTag returns the wire tag for this event, used both for
	// encoding and as the primary component of the stream sort key
	// (§4.6).
	EventTag() Tag
}

// PayParams carries the fee caps and routing hints for an off-chain
// payment the core fires off (the prepay) or that the counterparty pulls
// (the final swap payment). Kept as two distinct fee-cap fields rather
// than reusing one for both purposes -- see DESIGN.md's note on the
// MaxFee/MaxPrepayFee ambiguity in the source this spec was distilled
// from.
type PayParams struct {
	MaxPrepayRoutingFee btcutil.Amount
	MaxSwapRoutingFee   btcutil.Amount
	OutgoingChanId      uint64
}

// NewLoopOutAdded records the birth of a loop-out swap.
type NewLoopOutAdded struct {
	Height  BlockHeight
	LoopOut LoopOut
}

func (NewLoopOutAdded) EventTag() Tag { return TagNewLoopOutAdded }

// ClaimTxPublished records that a claim (sweep) transaction has been
// broadcast. Valid only while in an Out state (invariant 3).
type ClaimTxPublished struct {
	TxId string
}

func (ClaimTxPublished) EventTag() Tag { return TagClaimTxPublished }

// OffChainOfferStarted records that the off-chain offer (and, if
// applicable, its prepayment) has been initiated.
type OffChainOfferStarted struct {
	SwapId    Id
	Pair      PairId
	Invoice   string
	PayParams PayParams
}

func (OffChainOfferStarted) EventTag() Tag { return TagOffChainOfferStarted }

// OffChainOfferResolved records the preimage the counterparty revealed by
// pulling the off-chain offer.
type OffChainOfferResolved struct {
	Preimage PaymentPreimage
}

func (OffChainOfferResolved) EventTag() Tag { return TagOffChainOfferResolved }

// NewLoopInAdded records the birth of a loop-in swap.
type NewLoopInAdded struct {
	Height BlockHeight
	LoopIn LoopIn
}

func (NewLoopInAdded) EventTag() Tag { return TagNewLoopInAdded }

// SwapTxPublished records the on-chain HTLC-funding transaction: seen via
// the counterparty in loop-out, broadcast by us in loop-in.
type SwapTxPublished struct {
	TxHex string
}

func (SwapTxPublished) EventTag() Tag { return TagSwapTxPublished }

// RefundTxPublished records that a refund transaction has been broadcast.
// Valid only while in an In state (invariant 3).
type RefundTxPublished struct {
	TxId string
}

func (RefundTxPublished) EventTag() Tag { return TagRefundTxPublished }

// NewTipReceived records a new chain tip observed for this swap's
// relevant asset. Monotone non-decreasing per swap (invariant 1).
type NewTipReceived struct {
	Height BlockHeight
}

func (NewTipReceived) EventTag() Tag { return TagNewTipReceived }

// FinishedSuccessfully terminates the swap with OutcomeSuccess.
type FinishedSuccessfully struct {
	Id Id
}

func (FinishedSuccessfully) EventTag() Tag { return TagFinishedSuccessfully }

// FinishedByRefund terminates a loop-in swap with OutcomeRefunded.
type FinishedByRefund struct {
	Id Id
}

func (FinishedByRefund) EventTag() Tag { return TagFinishedByRefund }

// FinishedByError terminates the swap with OutcomeErrored.
type FinishedByError struct {
	Id  Id
	Msg string
}

func (FinishedByError) EventTag() Tag { return TagFinishedByError }

// FinishedByTimeout terminates the swap with OutcomeTimeout.
type FinishedByTimeout struct {
	Reason string
}

func (FinishedByTimeout) EventTag() Tag { return TagFinishedByTimeout }

// UnknownTag preserves an event whose tag this version of the codec
// doesn't recognise, so that replay of a stream written by a newer
// version doesn't crash (§4.3, invariant 5).
type UnknownTag struct {
	RawTag Tag
	Body   []byte
}

func (u UnknownTag) EventTag() Tag { return u.RawTag }
