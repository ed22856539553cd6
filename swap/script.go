package swap

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/nloopd/nloop/lnwallet"
	"github.com/nloopd/nloop/sweep"
)

// htlcScript builds the redeem script shared by both swap directions: a
// hash-lock branch spendable by claimKey given the preimage, and a
// CLTV-gated timeout branch spendable by timeoutKey once the chain tip
// reaches timeout.
//
// Possible witnesses:
//
//	Claim:  <sig> <preimage> <redeem_script>
//	Refund: <sig> <empty_push> <redeem_script>
//
// OP_SIZE 32 OP_EQUAL
// OP_IF
//	OP_SHA256 <paymentHash> OP_EQUALVERIFY
//	<claimKey> OP_CHECKSIG
// OP_ELSE
//	OP_DROP
//	<timeout> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	<timeoutKey> OP_CHECKSIG
// OP_ENDIF
//
// The size check on the top witness item doubles as the branch selector:
// a 32-byte preimage takes the claim branch, any other push (conventionally
// empty) takes the timeout branch.
func htlcScript(claimKey, timeoutKey *btcec.PublicKey, paymentHash PaymentHash,
	timeout uint32) ([]byte, error) {

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)

	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(paymentHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(claimKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ELSE)

	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(int64(timeout))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(timeoutKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// BuildLoopOutRedeemScript builds the HTLC redeem script for a loop-out
// swap: we hold the claim path (preimage + claimKey), the counterparty
// holds the refund path (counterpartyKey, after timeout).
func BuildLoopOutRedeemScript(claimKey, counterpartyKey *btcec.PublicKey,
	paymentHash PaymentHash, timeout uint32) ([]byte, error) {

	return htlcScript(claimKey, counterpartyKey, paymentHash, timeout)
}

// BuildLoopInRedeemScript builds the HTLC redeem script for a loop-in swap:
// the counterparty holds the claim path (preimage + counterpartyKey), we
// hold the refund path (refundKey, after timeout).
func BuildLoopInRedeemScript(refundKey, counterpartyKey *btcec.PublicKey,
	paymentHash PaymentHash, timeout uint32) ([]byte, error) {

	return htlcScript(counterpartyKey, refundKey, paymentHash, timeout)
}

// witnessScriptHash wraps a redeem script in a P2WSH output script.
func witnessScriptHash(redeemScript []byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	scriptHash := chainhash.HashB(redeemScript)
	bldr.AddData(scriptHash)
	return bldr.Script()
}

// nestedWitnessScriptHash wraps a redeem script's P2WSH program in a
// further P2SH output script, for counterparties that expect the legacy
// nested form.
func nestedWitnessScriptHash(redeemScript []byte) ([]byte, error) {
	witnessProgram, err := witnessScriptHash(redeemScript)
	if err != nil {
		return nil, err
	}

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_HASH160)
	scriptHash := btcutil.Hash160(witnessProgram)
	bldr.AddData(scriptHash)
	bldr.AddOp(txscript.OP_EQUAL)
	return bldr.Script()
}

// ValidateRedeemScript re-derives the expected redeem script from its
// component facts and compares it byte-for-byte against script. This is
// the check §4.4 requires before any loop-out or loop-in swap is accepted:
// the hash-lock must commit to the expected payment hash, our own key must
// be the expected claim/refund key, and the timeout must match what the
// counterparty declared.
func ValidateRedeemScript(script []byte, claimKey, timeoutKey *btcec.PublicKey,
	paymentHash PaymentHash, timeout uint32) error {

	expected, err := htlcScript(claimKey, timeoutKey, paymentHash, timeout)
	if err != nil {
		return TransactionError{Msg: err.Error()}
	}

	if !bytes.Equal(expected, script) {
		return RedeemScriptMismatch{ExpectedRedeem: expected}
	}

	return nil
}

// FindHTLCOutput scans tx for an output paying either the P2WSH or the
// nested P2SH-P2WSH form of redeemScript, returning its index and value.
// If no matching output exists, RedeemScriptMismatch is returned carrying
// every pkScript actually seen, so the caller can log what it found.
func FindHTLCOutput(tx *wire.MsgTx, redeemScript []byte) (int, btcutil.Amount, error) {
	p2wsh, err := witnessScriptHash(redeemScript)
	if err != nil {
		return 0, 0, TransactionError{Msg: err.Error()}
	}

	p2sh, err := nestedWitnessScriptHash(redeemScript)
	if err != nil {
		return 0, 0, TransactionError{Msg: err.Error()}
	}

	seen := make([][]byte, 0, len(tx.TxOut))
	for i, out := range tx.TxOut {
		seen = append(seen, out.PkScript)
		if bytes.Equal(out.PkScript, p2wsh) || bytes.Equal(out.PkScript, p2sh) {
			return i, btcutil.Amount(out.Value), nil
		}
	}

	return 0, 0, RedeemScriptMismatch{
		ActualPkScripts: seen,
		ExpectedRedeem:  redeemScript,
	}
}

// estimateSweepVSize returns the vsize of a one-input, one-output claim or
// refund transaction spending a P2WSH HTLC output.
func estimateSweepVSize(witnessSize int) int64 {
	var twe lnwallet.TxWeightEstimator
	twe.AddP2WKHOutput()
	twe.AddWitnessInput(witnessSize)
	return twe.VSize()
}

// ClaimVSize is the virtual size of a loop-out claim transaction, used by
// the fee policy before the transaction is actually built.
func ClaimVSize() int64 {
	return estimateSweepVSize(lnwallet.HTLCClaimWitnessSize)
}

// RefundVSize is the virtual size of a loop-in refund transaction.
func RefundVSize() int64 {
	return estimateSweepVSize(lnwallet.HTLCRefundWitnessSize)
}

// CreateClaimTx builds the unsigned, then witnessed, transaction that
// sweeps a loop-out HTLC output down the preimage path to claimAddress.
// claimAddress is re-parsed against params here rather than carried as a
// live btcutil.Address, so a claim built after a state replay works
// identically to one built right after swap creation (§4.3).
func CreateClaimTx(htlcOutpoint wire.OutPoint, htlcValue btcutil.Amount,
	redeemScript []byte, preimage PaymentPreimage, claimKey *btcec.PrivateKey,
	claimAddress string, params *chaincfg.Params, fee btcutil.Amount,
	currentHeight BlockHeight) (*wire.MsgTx, error) {

	addr, err := btcutil.DecodeAddress(claimAddress, params)
	if err != nil {
		return nil, FailedToGetAddress{Msg: err.Error()}
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, FailedToGetAddress{Msg: err.Error()}
	}

	sweepAmt := htlcValue - fee
	if sweepAmt <= 0 || sweep.IsDustOutput(sweepAmt) {
		return nil, InputError{Msg: "htlc value does not cover fee plus dust limit"}
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(int64(sweepAmt), pkScript))
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: htlcOutpoint,
		Sequence:         wire.MaxTxInSequenceNum - 1,
	})
	tx.LockTime = 0

	hashCache := txscript.NewTxSigHashes(tx)
	sig, err := txscript.RawTxInWitnessSignature(
		tx, hashCache, 0, int64(htlcValue), redeemScript,
		txscript.SigHashAll, claimKey,
	)
	if err != nil {
		return nil, TransactionError{Msg: err.Error()}
	}

	tx.TxIn[0].Witness = wire.TxWitness{sig, preimage[:], redeemScript}

	return tx, nil
}

// CreateRefundTx builds the unsigned, then witnessed, transaction that
// reclaims a loop-in HTLC output down the timeout path to changeAddress,
// once the chain tip has reached the HTLC's timeout height.
func CreateRefundTx(htlcOutpoint wire.OutPoint, htlcValue btcutil.Amount,
	redeemScript []byte, refundKey *btcec.PrivateKey,
	changeAddress btcutil.Address, fee btcutil.Amount,
	timeoutHeight BlockHeight) (*wire.MsgTx, error) {

	pkScript, err := txscript.PayToAddrScript(changeAddress)
	if err != nil {
		return nil, FailedToGetAddress{Msg: err.Error()}
	}

	refundAmt := htlcValue - fee
	if refundAmt <= 0 || sweep.IsDustOutput(refundAmt) {
		return nil, InputError{Msg: "htlc value does not cover fee plus dust limit"}
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(int64(refundAmt), pkScript))
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: htlcOutpoint,
		Sequence:         wire.MaxTxInSequenceNum - 1,
	})
	tx.LockTime = uint32(timeoutHeight)

	hashCache := txscript.NewTxSigHashes(tx)
	sig, err := txscript.RawTxInWitnessSignature(
		tx, hashCache, 0, int64(htlcValue), redeemScript,
		txscript.SigHashAll, refundKey,
	)
	if err != nil {
		return nil, TransactionError{Msg: err.Error()}
	}

	tx.TxIn[0].Witness = wire.TxWitness{sig, nil, redeemScript}

	return tx, nil
}

// psbtProprietaryPrefix identifies this package's BIP-174 proprietary
// fields (PSBT_GLOBAL_PROPRIETARY, key-type 0xFC): the target fee rate and
// change address CreateSwapPSBT computes but cannot act on itself, since it
// never selects the inputs that determine the actual change amount.
var psbtProprietaryPrefix = []byte("nloop")

const (
	psbtKeyTypeFeeRate byte = 0x01
	psbtKeyTypeChange  byte = 0x02
)

func psbtProprietaryKey(keyType byte) []byte {
	key := []byte{0xfc, byte(len(psbtProprietaryPrefix))}
	key = append(key, psbtProprietaryPrefix...)
	return append(key, keyType)
}

// CreateSwapPSBT builds the unsigned loop-in HTLC-funding transaction as a
// BIP-174 PSBT carrying the funding hints -- target fee rate and change
// address -- as proprietary global fields. It never selects inputs itself:
// that, and attaching the change output those hints imply, is
// utxo_provider.FundAndSign's job, since only it knows the wallet's
// available UTXOs. The swap core never holds wallet UTXOs (§5, deps).
func CreateSwapPSBT(redeemScript []byte, amount btcutil.Amount, feeRate FeeRate,
	change btcutil.Address, params *chaincfg.Params) (*psbt.Packet, btcutil.Address, error) {

	pkScript, err := witnessScriptHash(redeemScript)
	if err != nil {
		return nil, nil, TransactionError{Msg: err.Error()}
	}

	addr, err := btcutil.NewAddressWitnessScriptHash(
		chainhash.HashB(redeemScript), params,
	)
	if err != nil {
		return nil, nil, FailedToGetAddress{Msg: err.Error()}
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, nil, TransactionError{Msg: err.Error()}
	}

	feeRateBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(feeRateBytes, uint64(feeRate))

	packet.Unknowns = append(packet.Unknowns,
		&psbt.Unknown{
			Key:   psbtProprietaryKey(psbtKeyTypeFeeRate),
			Value: feeRateBytes,
		},
		&psbt.Unknown{
			Key:   psbtProprietaryKey(psbtKeyTypeChange),
			Value: []byte(change.EncodeAddress()),
		},
	)

	return packet, addr, nil
}
