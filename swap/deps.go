package swap

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// ChainIO is the subset of on-chain capability Exec needs: broadcasting a
// transaction and estimating a fee rate. The daemon wires this to its
// chain backend; tests wire it to an in-memory fake (§5, suspension
// points).
type ChainIO interface {
	FeeEstimator

	// PublishTransaction broadcasts tx. A non-nil error rejects the
	// command driving the call: Exec returns it as an UnexpectedError,
	// no events are appended, and the command can be retried (§7).
	PublishTransaction(tx *wire.MsgTx) error
}

// AddressSource hands out wallet-owned addresses needed while funding and
// unwinding a loop-in swap. A loop-out's claim address is chosen by the
// caller up front (it travels in the counterparty request), so it is part
// of the NewLoopOut command instead of a suspension point here.
type AddressSource interface {
	// GetChangeAddress returns where change from the HTLC-funding PSBT
	// should go.
	GetChangeAddress() (btcutil.Address, error)

	// GetRefundAddress returns where a timed-out HTLC should be
	// reclaimed to.
	GetRefundAddress() (btcutil.Address, error)
}

// UtxoProvider is the external collaborator that owns wallet UTXOs and
// signing keys for the loop-in funding transaction. The core builds the
// unsigned PSBT (CreateSwapPSBT), embedding the target fee rate and change
// address as proprietary fields, and hands it here; FundAndSign selects
// inputs, attaches the change output, signs, and returns the finalized
// transaction. The core never touches wallet-controlled keys directly (§5).
type UtxoProvider interface {
	FundAndSign(unsignedFundingPSBT *psbt.Packet) (*wire.MsgTx, error)
}

// InvoicePayer is the off-chain leg: paying the prepay and the swap
// invoice, each capped by its own PayParams fee bound (§9, the
// MaxFee/MaxPrepayFee split).
type InvoicePayer interface {
	PayInvoice(invoice string, params PayParams) error
}

// Deps bundles every suspension point Exec may call out to while
// processing a single command. A Handler supplies one Deps value per
// command, so nothing here needs to be safe for concurrent use across
// swaps -- only across the sequential steps of one Exec call.
type Deps struct {
	Chain     ChainIO
	Addresses AddressSource
	Utxo      UtxoProvider
	Payer     InvoicePayer

	// Params is the chain this swap's on-chain leg runs on.
	Params *chaincfg.Params
}

// Meta carries facts about the command's arrival that Exec needs but that
// aren't part of the command's own payload: when it happened, and whether
// it originated locally or was replayed from an external source.
type Meta struct {
	EffectiveDate int64
	Source        string
}

// Command is processed by Exec against a State and a Deps, producing the
// Events that get appended to the stream.
type Command interface {
	isCommand()
}

// NewLoopOut starts a loop-out (reverse) swap. ClaimKey and ClaimAddress
// are chosen by the caller before the counterparty is even contacted (the
// claim pubkey travels in the LoopOut request, §6), so they arrive here
// rather than through a suspension point.
type NewLoopOut struct {
	Id                 Id
	Height             BlockHeight
	Pair               PairId
	ClaimKey           *btcec.PrivateKey
	ClaimAddress       string
	Preimage           PaymentPreimage
	Invoice            string
	PrepayInvoice      string
	PayParams          PayParams
	RedeemScript       []byte
	CounterpartyPubKey []byte
	OnChainAmount      btcutil.Amount
	TimeoutBlockHeight BlockHeight
	SweepConfTarget    uint32
	MaxMinerFee        btcutil.Amount
	AcceptZeroConf     bool
}

func (NewLoopOut) isCommand() {}

// NewLoopIn starts a loop-in (forward) swap. RefundKey, like NewLoopOut's
// ClaimKey, is chosen by the caller before the request is sent (the refund
// pubkey travels in the LoopIn request, §6).
type NewLoopIn struct {
	Id                 Id
	Height             BlockHeight
	Pair               PairId
	RefundKey          *btcec.PrivateKey
	PaymentHash        PaymentHash
	RedeemScript       []byte
	CounterpartyPubKey []byte
	ExpectedAmount     btcutil.Amount
	TimeoutBlockHeight BlockHeight
	HtlcConfTarget     uint32
}

func (NewLoopIn) isCommand() {}

// SwapUpdate reports a counterparty-observed status change for the swap's
// on-chain leg. Only the status field matching the swap's current
// direction (OutStatus for Out, InStatus for In) is consulted.
type SwapUpdate struct {
	OutStatus LoopOutStatus
	InStatus  LoopInStatus
	TxHex     string
	Reason    string
}

func (SwapUpdate) isCommand() {}

// OffChainOfferResolve reports that the counterparty pulled the off-chain
// offer, revealing preimage.
type OffChainOfferResolve struct {
	Preimage PaymentPreimage
}

func (OffChainOfferResolve) isCommand() {}

// SetValidationError fails the swap immediately with msg -- used when a
// redeem script or invoice fails validation before any on-chain action is
// taken.
type SetValidationError struct {
	Msg string
}

func (SetValidationError) isCommand() {}

// NewBlock reports a new chain tip for Asset. Exec ignores a tip reported
// for the swap's off-chain-settled asset: a loop-out only reacts to its
// base-chain tip, a loop-in only to its quote-chain tip (§4.4).
type NewBlock struct {
	Height BlockHeight
	Asset  Asset
}

func (NewBlock) isCommand() {}
