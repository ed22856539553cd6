package swap

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/nloopd/nloop/zpay32"
)

// Exec is the command executor (C5): it inspects state and command, and
// either produces the events that record what happened or returns an
// error without producing any. It may call out to deps; those calls are
// this package's only suspension points (§5).
//
// Exec never partially commits: on error, the returned event slice is
// always nil, and the caller (the Handler, C7) must not append anything.
func Exec(state State, cmd Command, deps Deps, meta Meta) ([]Event, error) {
	switch c := cmd.(type) {

	case NewLoopOut:
		if state.Kind != KindHasNotStarted {
			return nil, UnexpectedError{Msg: "NewLoopOut against a started swap"}
		}
		return execNewLoopOut(c, deps)

	case NewLoopIn:
		if state.Kind != KindHasNotStarted {
			return nil, UnexpectedError{Msg: "NewLoopIn against a started swap"}
		}
		return execNewLoopIn(c, deps)

	case OffChainOfferResolve:
		if state.IsTerminal() {
			return nil, nil
		}
		if state.Kind != KindOut {
			return nil, UnexpectedError{Msg: "OffChainOfferResolve outside Out state"}
		}
		return []Event{
			OffChainOfferResolved{Preimage: c.Preimage},
			FinishedSuccessfully{Id: state.Out.Id},
		}, nil

	case SwapUpdate:
		if state.IsTerminal() {
			return nil, nil
		}
		switch state.Kind {
		case KindOut:
			return execSwapUpdateOut(state, c, deps)
		case KindIn:
			return execSwapUpdateIn(state, c, deps)
		default:
			return nil, UnexpectedError{Msg: "SwapUpdate outside Out/In state"}
		}

	case NewBlock:
		if state.IsTerminal() {
			return nil, nil
		}
		switch state.Kind {
		case KindOut:
			if c.Asset != state.Out.Pair.Base {
				return nil, nil
			}
			return execNewBlockOut(state, c, deps)
		case KindIn:
			if c.Asset != state.In.Pair.Quote {
				return nil, nil
			}
			return execNewBlockIn(state, c, deps)
		default:
			return nil, UnexpectedError{Msg: "NewBlock outside Out/In state"}
		}

	case SetValidationError:
		if state.IsTerminal() {
			return nil, nil
		}
		id, err := idOf(state)
		if err != nil {
			return nil, err
		}
		return []Event{FinishedByError{Id: id, Msg: c.Msg}}, nil

	default:
		return nil, UnexpectedError{Msg: "unrecognised command"}
	}
}

func idOf(s State) (Id, error) {
	switch s.Kind {
	case KindOut:
		return s.Out.Id, nil
	case KindIn:
		return s.In.Id, nil
	default:
		return Id{}, UnexpectedError{Msg: "no swap id in this state"}
	}
}

// execNewLoopOut implements §4.4 NewLoopOut@HasNotStarted.
func execNewLoopOut(c NewLoopOut, deps Deps) ([]Event, error) {
	if c.OnChainAmount <= 0 {
		return nil, InputError{Msg: "on-chain amount must be positive"}
	}
	if c.ClaimKey == nil {
		return nil, InputError{Msg: "missing claim key"}
	}
	if c.Invoice == "" {
		return nil, InputError{Msg: "missing invoice"}
	}

	claimPub := c.ClaimKey.PubKey()
	counterpartyPub, err := parsePubKey(c.CounterpartyPubKey)
	if err != nil {
		return nil, InputError{Msg: err.Error()}
	}

	paymentHash := c.Preimage.Hash()
	if err := ValidateRedeemScript(
		c.RedeemScript, claimPub, counterpartyPub, paymentHash,
		uint32(c.TimeoutBlockHeight),
	); err != nil {
		return nil, err
	}

	decodedInvoice, err := zpay32.Decode(c.Invoice)
	if err != nil {
		return nil, InputError{Msg: "invalid invoice: " + err.Error()}
	}
	if decodedInvoice.PaymentHash == nil ||
		*decodedInvoice.PaymentHash != [32]byte(paymentHash) {

		return nil, InputError{Msg: "invoice payment hash does not match swap preimage"}
	}

	if c.PrepayInvoice != "" {
		// Fire-and-forget, per §4.4 step 2: we do not await settlement.
		payer, prepayInvoice := deps.Payer, c.PrepayInvoice
		prepayParams := PayParams{
			MaxPrepayRoutingFee: c.PayParams.MaxPrepayRoutingFee,
			OutgoingChanId:      c.PayParams.OutgoingChanId,
		}
		go func() {
			_ = payer.PayInvoice(prepayInvoice, prepayParams)
		}()
	}

	loopOut := LoopOut{
		Id:                 c.Id,
		Pair:               c.Pair,
		Status:             LoopOutStatusInitiated,
		ClaimKey:           c.ClaimKey,
		Preimage:           c.Preimage,
		RedeemScript:       c.RedeemScript,
		ClaimAddress:       c.ClaimAddress,
		Invoice:            c.Invoice,
		PrepayInvoice:      c.PrepayInvoice,
		OnChainAmount:      c.OnChainAmount,
		TimeoutBlockHeight: c.TimeoutBlockHeight,
		SweepConfTarget:    c.SweepConfTarget,
		MaxMinerFee:        c.MaxMinerFee,
		AcceptZeroConf:     c.AcceptZeroConf,
	}

	return []Event{
		NewLoopOutAdded{Height: c.Height, LoopOut: loopOut},
		OffChainOfferStarted{
			SwapId:    c.Id,
			Pair:      c.Pair,
			Invoice:   c.Invoice,
			PayParams: c.PayParams,
		},
	}, nil
}

// execNewLoopIn implements §4.4 NewLoopIn@HasNotStarted.
func execNewLoopIn(c NewLoopIn, deps Deps) ([]Event, error) {
	if c.ExpectedAmount <= 0 {
		return nil, InputError{Msg: "expected amount must be positive"}
	}
	if c.RefundKey == nil {
		return nil, InputError{Msg: "missing refund key"}
	}

	refundPub := c.RefundKey.PubKey()
	counterpartyPub, err := parsePubKey(c.CounterpartyPubKey)
	if err != nil {
		return nil, InputError{Msg: err.Error()}
	}

	if err := ValidateRedeemScript(
		c.RedeemScript, counterpartyPub, refundPub, c.PaymentHash,
		uint32(c.TimeoutBlockHeight),
	); err != nil {
		return nil, err
	}

	loopIn := LoopIn{
		Id:                 c.Id,
		Pair:               c.Pair,
		Status:             LoopInStatusInitiated,
		RefundPrivateKey:   c.RefundKey,
		RedeemScript:       c.RedeemScript,
		ExpectedAmount:     c.ExpectedAmount,
		TimeoutBlockHeight: c.TimeoutBlockHeight,
		HtlcConfTarget:     c.HtlcConfTarget,
	}

	return []Event{
		NewLoopInAdded{Height: c.Height, LoopIn: loopIn},
	}, nil
}

// execSwapUpdateOut implements §4.4 SwapUpdate@Out.
func execSwapUpdateOut(state State, c SwapUpdate, deps Deps) ([]Event, error) {
	out := state.Out

	if c.OutStatus == out.Status {
		return nil, nil
	}

	switch c.OutStatus {
	case LoopOutStatusTxMempool:
		if !out.AcceptZeroConf {
			return nil, nil
		}
		return sweepOrBump(state, c, deps)

	case LoopOutStatusTxConfirmed:
		return sweepOrBump(state, c, deps)

	case LoopOutStatusSwapExpired:
		reason := c.Reason
		if reason == "" {
			reason = "swap expired"
		}
		return []Event{FinishedByTimeout{Reason: reason}}, nil

	default:
		return nil, nil
	}
}

// sweepOrBump implements the on-chain half of §4.4's SwapUpdate@Out rule
// and §4.4 NewBlock@Out step 3 / §4.2's cap policy: given a seen lockup
// tx, it locates the HTLC output, decides whether to publish or bump a
// claim transaction, and emits the resulting events.
func sweepOrBump(state State, c SwapUpdate, deps Deps) ([]Event, error) {
	out := state.Out

	if c.TxHex == "" {
		return nil, InputError{Msg: "swap update missing lockup transaction"}
	}

	lockupTx, err := decodeTxHex(c.TxHex)
	if err != nil {
		return nil, TransactionError{Msg: err.Error()}
	}

	events := []Event{SwapTxPublished{TxHex: c.TxHex}}

	claimEvent, err := maybeClaim(state.BlockHeight, out, lockupTx, deps)
	if err != nil {
		return nil, err
	}
	if claimEvent != nil {
		events = append(events, *claimEvent)
	}

	return events, nil
}

// maybeClaim applies the fee-cap policy (§4.2) and, if it decides to
// proceed, builds and publishes a claim transaction.
func maybeClaim(currentHeight BlockHeight, out *LoopOut, lockupTx *wire.MsgTx,
	deps Deps) (*Event, error) {

	idx, value, err := FindHTLCOutput(lockupTx, out.RedeemScript)
	if err != nil {
		return nil, err
	}

	target := sweepConfTarget(currentHeight, out.TimeoutBlockHeight, out.SweepConfTarget)
	rate, err := deps.Chain.EstimateFeeRate(target)
	if err != nil {
		return nil, UnexpectedError{Msg: "fee estimate failed", Err: err}
	}

	vsize := ClaimVSize()
	preimageRevealed := out.ClaimTransactionId != ""

	decision, effectiveRate := decideClaimFee(rate, vsize, out.MaxMinerFee, preimageRevealed)
	if decision == claimFeeHold {
		return nil, nil
	}

	fee := effectiveRate.FeeForVSize(vsize)

	outpoint := wire.OutPoint{Hash: lockupTx.TxHash(), Index: uint32(idx)}
	claimTx, err := CreateClaimTx(
		outpoint, value, out.RedeemScript, out.Preimage, out.ClaimKey,
		out.ClaimAddress, deps.Params, fee, currentHeight,
	)
	if err != nil {
		return nil, err
	}

	if err := deps.Chain.PublishTransaction(claimTx); err != nil {
		return nil, UnexpectedError{Msg: "claim tx broadcast failed", Err: err}
	}

	log.Infof("Published claim tx %v for htlc %v at %v/vbyte",
		claimTx.TxHash(), outpoint, effectiveRate)

	ev := Event(ClaimTxPublished{TxId: claimTx.TxHash().String()})
	return &ev, nil
}

// execSwapUpdateIn implements §4.4 SwapUpdate@In.
func execSwapUpdateIn(state State, c SwapUpdate, deps Deps) ([]Event, error) {
	in := state.In

	if c.InStatus == in.Status {
		return nil, nil
	}

	switch c.InStatus {
	case LoopInStatusInvoiceSet:
		return fundAndBroadcastSwap(in, deps)

	case LoopInStatusTxClaimed:
		return []Event{FinishedSuccessfully{Id: in.Id}}, nil

	default:
		return nil, nil
	}
}

// fundAndBroadcastSwap implements §4.4 SwapUpdate@In's InvoiceSet step:
// get a change address, estimate the fee at htlc_conf_target, build the
// swap PSBT carrying both, have the utxo_provider select UTXOs against it
// and sign, then broadcast.
func fundAndBroadcastSwap(in *LoopIn, deps Deps) ([]Event, error) {
	changeAddr, err := deps.Addresses.GetChangeAddress()
	if err != nil {
		return nil, FailedToGetAddress{Msg: err.Error()}
	}

	feeRate, err := deps.Chain.EstimateFeeRate(in.HtlcConfTarget)
	if err != nil {
		return nil, UnexpectedError{Msg: "fee estimate failed", Err: err}
	}

	unsignedPSBT, _, err := CreateSwapPSBT(
		in.RedeemScript, in.ExpectedAmount, feeRate, changeAddr, deps.Params,
	)
	if err != nil {
		return nil, err
	}

	signedTx, err := deps.Utxo.FundAndSign(unsignedPSBT)
	if err != nil {
		return nil, UTXOProviderError{Msg: err.Error()}
	}

	if err := deps.Chain.PublishTransaction(signedTx); err != nil {
		return nil, UnexpectedError{Msg: "swap tx broadcast failed", Err: err}
	}

	return []Event{SwapTxPublished{TxHex: encodeTxHex(signedTx)}}, nil
}

// execNewBlockOut implements §4.4 NewBlock@Out.
func execNewBlockOut(state State, c NewBlock, deps Deps) ([]Event, error) {
	out := state.Out
	var events []Event

	if c.Height > state.BlockHeight {
		events = append(events, NewTipReceived{Height: c.Height})
	}

	remaining := int64(out.TimeoutBlockHeight) - int64(c.Height)
	if remaining <= int64(MinPreimageRevealDelta) && out.ClaimTransactionId == "" {
		events = append(events, FinishedByTimeout{
			Reason: "cannot safely reveal preimage",
		})
		return events, nil
	}

	if out.LockupTxHex == "" {
		return events, nil
	}

	lockupTx, err := decodeTxHex(out.LockupTxHex)
	if err != nil {
		return nil, TransactionError{Msg: err.Error()}
	}

	claimEvent, err := maybeClaim(c.Height, out, lockupTx, deps)
	if err != nil {
		return nil, err
	}
	if claimEvent != nil {
		events = append(events, *claimEvent)
	}

	return events, nil
}

// execNewBlockIn implements §4.4 NewBlock@In.
func execNewBlockIn(state State, c NewBlock, deps Deps) ([]Event, error) {
	in := state.In
	var events []Event

	if c.Height > state.BlockHeight {
		events = append(events, NewTipReceived{Height: c.Height})
	}

	if c.Height < in.TimeoutBlockHeight || in.LockupTxHex == "" {
		return events, nil
	}

	lockupTx, err := decodeTxHex(in.LockupTxHex)
	if err != nil {
		return nil, TransactionError{Msg: err.Error()}
	}

	idx, value, err := FindHTLCOutput(lockupTx, in.RedeemScript)
	if err != nil {
		return nil, err
	}

	refundAddr, err := deps.Addresses.GetRefundAddress()
	if err != nil {
		return nil, FailedToGetAddress{Msg: err.Error()}
	}

	target := in.HtlcConfTarget
	rate, err := deps.Chain.EstimateFeeRate(target)
	if err != nil {
		return nil, UnexpectedError{Msg: "fee estimate failed", Err: err}
	}
	fee := rate.FeeForVSize(RefundVSize())

	outpoint := wire.OutPoint{Hash: lockupTx.TxHash(), Index: uint32(idx)}
	refundTx, err := CreateRefundTx(
		outpoint, value, in.RedeemScript, in.RefundPrivateKey, refundAddr,
		fee, in.TimeoutBlockHeight,
	)
	if err != nil {
		return nil, err
	}

	if err := deps.Chain.PublishTransaction(refundTx); err != nil {
		return nil, UnexpectedError{Msg: "refund tx broadcast failed", Err: err}
	}

	events = append(events,
		RefundTxPublished{TxId: refundTx.TxHash().String()},
		FinishedByRefund{Id: in.Id},
	)
	return events, nil
}

func parsePubKey(raw []byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(raw)
}

func decodeTxHex(h string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}

func encodeTxHex(tx *wire.MsgTx) string {
	var buf bytes.Buffer
	_ = tx.Serialize(&buf)
	return hex.EncodeToString(buf.Bytes())
}
