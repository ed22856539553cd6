package swap

import (
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/nloopd/nloop/zpay32"
)

// testInvoice builds a decodable BOLT-11 invoice committing to hash, signed
// by a throwaway node key -- exec.go now validates every loop-out invoice
// against its swap's payment hash, so tests need a real one rather than a
// placeholder string.
func testInvoice(t *testing.T, hash PaymentHash, amount btcutil.Amount) string {
	t.Helper()

	nodeKey := genKey(t)
	mSat := zpay32.MilliSatoshi(amount * 1000)
	inv, err := zpay32.NewInvoice(
		&chaincfg.RegressionNetParams, [32]byte(hash), time.Unix(1700000000, 0),
		zpay32.Amount(mSat), zpay32.Description("swap"),
	)
	require.NoError(t, err)

	encoded, err := inv.Encode(zpay32.MessageSigner{
		SignCompact: func(h []byte) ([]byte, error) {
			return ecdsa.SignCompact(nodeKey, h, true), nil
		},
	})
	require.NoError(t, err)
	return encoded
}

func testDeps(t *testing.T, rate FeeRate) (Deps, *fakeChain, *fakeAddresses, *fakeUtxo, *fakePayer) {
	t.Helper()

	destKey := genKey(t)
	destHash := btcutil.Hash160(destKey.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(destHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	chain := &fakeChain{rate: rate}
	addrs := &fakeAddresses{change: addr, refund: addr}
	utxo := &fakeUtxo{}
	payer := &fakePayer{}

	deps := Deps{
		Chain:     chain,
		Addresses: addrs,
		Utxo:      utxo,
		Payer:     payer,
		Params:    &chaincfg.RegressionNetParams,
	}
	return deps, chain, addrs, utxo, payer
}

// lockupTxFor builds a transaction funding redeemScript's P2WSH with value,
// the shape a counterparty-broadcast (loop-out) or self-broadcast (loop-in)
// lockup transaction takes.
func lockupTxFor(t *testing.T, redeemScript []byte, value btcutil.Amount) *wire.MsgTx {
	t.Helper()
	pkScript, err := witnessScriptHash(redeemScript)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	tx.AddTxOut(wire.NewTxOut(int64(value), pkScript))
	return tx
}

func newLoopOutCmd(t *testing.T, id Id, timeout BlockHeight) (NewLoopOut, *btcec.PrivateKey, PaymentPreimage) {
	t.Helper()

	claimKey := genKey(t)
	counterpartyKey := genKey(t)
	var preimage PaymentPreimage
	preimage[0] = 0x7

	script, err := BuildLoopOutRedeemScript(
		claimKey.PubKey(), counterpartyKey.PubKey(), preimage.Hash(), uint32(timeout),
	)
	require.NoError(t, err)

	destHash := btcutil.Hash160(claimKey.PubKey().SerializeCompressed())
	claimAddr, err := btcutil.NewAddressWitnessPubKeyHash(destHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	cmd := NewLoopOut{
		Id:                 id,
		Height:             100,
		Pair:               PairId{Base: AssetBTC, Quote: AssetBTC},
		ClaimKey:           claimKey,
		ClaimAddress:       claimAddr.EncodeAddress(),
		Preimage:           preimage,
		Invoice:            testInvoice(t, preimage.Hash(), 100_000),
		RedeemScript:       script,
		CounterpartyPubKey: counterpartyKey.PubKey().SerializeCompressed(),
		OnChainAmount:      100_000,
		TimeoutBlockHeight: timeout,
		SweepConfTarget:    30,
		MaxMinerFee:        20_000,
	}
	return cmd, counterpartyKey, preimage
}

func newLoopInCmd(t *testing.T, id Id, timeout BlockHeight) (NewLoopIn, *btcec.PrivateKey) {
	t.Helper()

	refundKey := genKey(t)
	counterpartyKey := genKey(t)
	var preimage PaymentPreimage
	preimage[1] = 0x9

	script, err := BuildLoopInRedeemScript(
		refundKey.PubKey(), counterpartyKey.PubKey(), preimage.Hash(), uint32(timeout),
	)
	require.NoError(t, err)

	cmd := NewLoopIn{
		Id:                 id,
		Height:             100,
		Pair:               PairId{Base: AssetBTC, Quote: AssetBTC},
		RefundKey:          refundKey,
		PaymentHash:        preimage.Hash(),
		RedeemScript:       script,
		CounterpartyPubKey: counterpartyKey.PubKey().SerializeCompressed(),
		ExpectedAmount:     100_000,
		TimeoutBlockHeight: timeout,
		HtlcConfTarget:     6,
	}
	return cmd, refundKey
}

// TestScenarioS1LoopOutHappyPath walks the zero-conf-off happy path of a
// loop-out swap to FinishedSuccessfully.
func TestScenarioS1LoopOutHappyPath(t *testing.T) {
	var id Id
	id[0] = 1
	cmd, _, preimage := newLoopOutCmd(t, id, 250)
	deps, chain, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.IsType(t, NewLoopOutAdded{}, events[0])
	require.IsType(t, OffChainOfferStarted{}, events[1])

	state := Fold(events)
	require.Equal(t, KindOut, state.Kind)

	lockupTx := lockupTxFor(t, state.Out.RedeemScript, 100_000)

	// TxMempool with accept_zero_conf=false produces no events.
	mempoolEvents, err := Exec(state, SwapUpdate{
		OutStatus: LoopOutStatusTxMempool,
		TxHex:     encodeTxHex(lockupTx),
	}, deps, Meta{})
	require.NoError(t, err)
	require.Empty(t, mempoolEvents)

	confirmedEvents, err := Exec(state, SwapUpdate{
		OutStatus: LoopOutStatusTxConfirmed,
		TxHex:     encodeTxHex(lockupTx),
	}, deps, Meta{})
	require.NoError(t, err)
	require.Len(t, confirmedEvents, 2)
	require.IsType(t, SwapTxPublished{}, confirmedEvents[0])
	require.IsType(t, ClaimTxPublished{}, confirmedEvents[1])
	require.Len(t, chain.published, 1)

	state = Fold(append(events, confirmedEvents...))
	require.Equal(t, KindOut, state.Kind)
	require.NotEmpty(t, state.Out.ClaimTransactionId)

	resolveEvents, err := Exec(state, OffChainOfferResolve{Preimage: preimage}, deps, Meta{})
	require.NoError(t, err)
	require.Equal(t, []Event{
		OffChainOfferResolved{Preimage: preimage},
		FinishedSuccessfully{Id: id},
	}, resolveEvents)

	final := Fold(append(append(events, confirmedEvents...), resolveEvents...))
	require.True(t, final.IsTerminal())
	require.Equal(t, OutcomeSuccess, final.Finished.Kind)
}

// TestScenarioS2LoopOutTimeoutBeforeLockup covers the safety-cutoff path:
// remaining blocks drop to the margin before any lockup tx is seen.
func TestScenarioS2LoopOutTimeoutBeforeLockup(t *testing.T) {
	var id Id
	id[0] = 2
	cmd, _, _ := newLoopOutCmd(t, id, 150)
	deps, _, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	state := Fold(events)

	blockEvents, err := Exec(state, NewBlock{Height: 131, Asset: AssetBTC}, deps, Meta{})
	require.NoError(t, err)
	require.Equal(t, []Event{
		NewTipReceived{Height: 131},
		FinishedByTimeout{Reason: "cannot safely reveal preimage"},
	}, blockEvents)

	final := Fold(append(events, blockEvents...))
	require.True(t, final.IsTerminal())
	require.Equal(t, OutcomeTimeout, final.Finished.Kind)
}

// TestScenarioS3LoopOutBumpUnderCapAfterReveal covers a fee-rate spike after
// the preimage is already on-chain: the second claim tx must be capped at
// max_miner_fee instead of following the spiked estimator rate.
func TestScenarioS3LoopOutBumpUnderCapAfterReveal(t *testing.T) {
	var id Id
	id[0] = 3
	cmd, _, _ := newLoopOutCmd(t, id, 1000)
	cmd.MaxMinerFee = 20_000
	deps, chain, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	state := Fold(events)

	lockupTx := lockupTxFor(t, state.Out.RedeemScript, 100_000)

	firstEvents, err := Exec(state, SwapUpdate{
		OutStatus: LoopOutStatusTxConfirmed,
		TxHex:     encodeTxHex(lockupTx),
	}, deps, Meta{})
	require.NoError(t, err)
	require.Len(t, firstEvents, 2)
	require.Len(t, chain.published, 1)
	firstFee := chain.published[0].TxOut[0]
	vsize := ClaimVSize()
	require.EqualValues(t, int64(100_000)-int64(FeeRate(5).FeeForVSize(vsize)), firstFee.Value)

	state = Fold(append(events, firstEvents...))
	require.NotEmpty(t, state.Out.ClaimTransactionId)

	// Fee spikes well past the cap; preimage is already revealed via the
	// first claim tx, so this tick must bump rather than hold.
	chain.rate = 200

	bumpEvents, err := Exec(state, NewBlock{Height: 105, Asset: AssetBTC}, deps, Meta{})
	require.NoError(t, err)
	require.Len(t, bumpEvents, 2)
	require.IsType(t, NewTipReceived{}, bumpEvents[0])
	require.IsType(t, ClaimTxPublished{}, bumpEvents[1])
	require.Len(t, chain.published, 2)

	secondTx := chain.published[1]
	expectedFee := int64(cmd.MaxMinerFee) / vsize * vsize
	gotFee := int64(100_000) - secondTx.TxOut[0].Value
	require.Equal(t, expectedFee, gotFee)
	require.LessOrEqual(t, gotFee, int64(cmd.MaxMinerFee))
	require.Equal(t, lockupTx.TxHash(), secondTx.TxIn[0].PreviousOutPoint.Hash)
	require.True(t, secondTx.TxIn[0].Sequence < wire.MaxTxInSequenceNum,
		"claim tx must signal replaceability via a non-final sequence")
}

// TestScenarioS4LoopInRefund walks a loop-in past its timeout with no claim
// observed, producing a refund at the exact timeout height.
func TestScenarioS4LoopInRefund(t *testing.T) {
	var id Id
	id[0] = 4
	cmd, _ := newLoopInCmd(t, id, 200)
	deps, chain, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.IsType(t, NewLoopInAdded{}, events[0])
	state := Fold(events)

	invoiceEvents, err := Exec(state, SwapUpdate{InStatus: LoopInStatusInvoiceSet}, deps, Meta{})
	require.NoError(t, err)
	require.Len(t, invoiceEvents, 1)
	require.IsType(t, SwapTxPublished{}, invoiceEvents[0])
	require.Len(t, chain.published, 1)

	state = Fold(append(events, invoiceEvents...))

	blockEvents, err := Exec(state, NewBlock{Height: 200, Asset: AssetBTC}, deps, Meta{})
	require.NoError(t, err)
	require.Len(t, blockEvents, 3)
	require.IsType(t, NewTipReceived{}, blockEvents[0])
	require.IsType(t, RefundTxPublished{}, blockEvents[1])
	require.IsType(t, FinishedByRefund{}, blockEvents[2])

	refundTx := chain.published[1]
	require.Equal(t, uint32(200), refundTx.LockTime)

	final := Fold(append(append(events, invoiceEvents...), blockEvents...))
	require.True(t, final.IsTerminal())
	require.Equal(t, OutcomeRefunded, final.Finished.Kind)
}

// TestScenarioS5LoopInSuccess walks a loop-in through to the counterparty
// claiming the HTLC.
func TestScenarioS5LoopInSuccess(t *testing.T) {
	var id Id
	id[0] = 5
	cmd, _ := newLoopInCmd(t, id, 200)
	deps, _, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	state := Fold(events)

	invoiceEvents, err := Exec(state, SwapUpdate{InStatus: LoopInStatusInvoiceSet}, deps, Meta{})
	require.NoError(t, err)
	state = Fold(append(events, invoiceEvents...))

	confirmedEvents, err := Exec(state, SwapUpdate{InStatus: LoopInStatusTxConfirmed}, deps, Meta{})
	require.NoError(t, err)
	require.Empty(t, confirmedEvents)
	state = Fold(append(append(events, invoiceEvents...), confirmedEvents...))

	claimedEvents, err := Exec(state, SwapUpdate{InStatus: LoopInStatusTxClaimed}, deps, Meta{})
	require.NoError(t, err)
	require.Equal(t, []Event{FinishedSuccessfully{Id: id}}, claimedEvents)

	all := append(events, invoiceEvents...)
	all = append(all, confirmedEvents...)
	all = append(all, claimedEvents...)
	final := Fold(all)
	require.True(t, final.IsTerminal())
	require.Equal(t, OutcomeSuccess, final.Finished.Kind)
}

// TestScenarioS6SetValidationErrorAfterStart covers the post-start half of
// S6: a redeem-script mismatch discovered after the swap has already begun
// is reported via SetValidationError and ends the swap in error.
func TestScenarioS6SetValidationErrorAfterStart(t *testing.T) {
	var id Id
	id[0] = 6
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	deps, _, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	state := Fold(events)

	errEvents, err := Exec(state, SetValidationError{Msg: "lockup mismatch"}, deps, Meta{})
	require.NoError(t, err)
	require.Equal(t, []Event{FinishedByError{Id: id, Msg: "lockup mismatch"}}, errEvents)

	final := Fold(append(events, errEvents...))
	require.True(t, final.IsTerminal())
	require.Equal(t, OutcomeErrored, final.Finished.Kind)
	require.Equal(t, "lockup mismatch", final.Finished.Msg)
}

// TestScenarioS6RedeemScriptMismatchRejectsAtCreation covers the
// pre-start half of S6.
func TestScenarioS6RedeemScriptMismatchRejectsAtCreation(t *testing.T) {
	var id Id
	id[0] = 66
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	// Corrupt the redeem script so it no longer matches the claim/
	// counterparty keys baked into the command.
	cmd.RedeemScript = append([]byte{}, cmd.RedeemScript...)
	cmd.RedeemScript[len(cmd.RedeemScript)-1] ^= 0xff

	deps, _, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.Error(t, err)
	require.Nil(t, events)
	require.IsType(t, RedeemScriptMismatch{}, err)
}

func TestExecNewLoopOutRejectsAgainstStartedSwap(t *testing.T) {
	var id Id
	id[0] = 9
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	deps, _, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	state := Fold(events)

	_, err = Exec(state, cmd, deps, Meta{})
	require.Error(t, err)
	require.IsType(t, UnexpectedError{}, err)
}

func TestExecCommandsAgainstTerminalStateAreNoops(t *testing.T) {
	finished := State{Kind: KindFinished, Finished: &Outcome{Kind: OutcomeSuccess}}
	deps, _, _, _, _ := testDeps(t, 5)

	events, err := Exec(finished, NewBlock{Height: 10, Asset: AssetBTC}, deps, Meta{})
	require.NoError(t, err)
	require.Nil(t, events)

	events, err = Exec(finished, SwapUpdate{}, deps, Meta{})
	require.NoError(t, err)
	require.Nil(t, events)
}

func TestExecNewLoopOutRejectsZeroAmount(t *testing.T) {
	var id Id
	id[0] = 10
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	cmd.OnChainAmount = 0
	deps, _, _, _, _ := testDeps(t, 5)

	_, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.Error(t, err)
	require.IsType(t, InputError{}, err)
}

func TestExecNewBlockIgnoredForWrongAsset(t *testing.T) {
	var id Id
	id[0] = 11
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	deps, _, _, _, _ := testDeps(t, 5)

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	state := Fold(events)

	got, err := Exec(state, NewBlock{Height: 120, Asset: AssetLTC}, deps, Meta{})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestExecFeeEstimatorFailureSurfaces(t *testing.T) {
	var id Id
	id[0] = 12
	cmd, _, _ := newLoopOutCmd(t, id, 250)
	deps, chain, _, _, _ := testDeps(t, 5)
	chain.feeErr = errors.New("fee estimator unavailable")

	events, err := Exec(ZeroState(), cmd, deps, Meta{})
	require.NoError(t, err)
	state := Fold(events)

	lockupTx := lockupTxFor(t, state.Out.RedeemScript, 100_000)
	_, err = Exec(state, SwapUpdate{
		OutStatus: LoopOutStatusTxConfirmed,
		TxHex:     encodeTxHex(lockupTx),
	}, deps, Meta{})
	require.Error(t, err)
	require.IsType(t, UnexpectedError{}, err)
}
