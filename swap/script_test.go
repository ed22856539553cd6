package swap

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func TestHTLCScriptRoundTrip(t *testing.T) {
	claim := genKey(t)
	timeout := genKey(t)

	var preimage PaymentPreimage
	preimage[0] = 0xaa
	hash := preimage.Hash()

	script, err := BuildLoopOutRedeemScript(
		claim.PubKey(), timeout.PubKey(), hash, 600,
	)
	require.NoError(t, err)
	require.NotEmpty(t, script)

	err = ValidateRedeemScript(script, claim.PubKey(), timeout.PubKey(), hash, 600)
	require.NoError(t, err)
}

func TestValidateRedeemScriptRejectsMismatch(t *testing.T) {
	claim := genKey(t)
	timeout := genKey(t)
	other := genKey(t)

	var preimage PaymentPreimage
	hash := preimage.Hash()

	script, err := BuildLoopOutRedeemScript(claim.PubKey(), timeout.PubKey(), hash, 600)
	require.NoError(t, err)

	err = ValidateRedeemScript(script, other.PubKey(), timeout.PubKey(), hash, 600)
	require.Error(t, err)
	require.IsType(t, RedeemScriptMismatch{}, err)
}

func TestFindHTLCOutputP2WSHAndNested(t *testing.T) {
	claim := genKey(t)
	timeout := genKey(t)
	var preimage PaymentPreimage
	hash := preimage.Hash()

	script, err := BuildLoopOutRedeemScript(claim.PubKey(), timeout.PubKey(), hash, 600)
	require.NoError(t, err)

	p2wsh, err := witnessScriptHash(script)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x00}))
	tx.AddTxOut(wire.NewTxOut(50_000, p2wsh))

	idx, value, err := FindHTLCOutput(tx, script)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.EqualValues(t, 50_000, value)

	nested, err := nestedWitnessScriptHash(script)
	require.NoError(t, err)

	nestedTx := wire.NewMsgTx(2)
	nestedTx.AddTxOut(wire.NewTxOut(70_000, nested))

	idx, value, err = FindHTLCOutput(nestedTx, script)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.EqualValues(t, 70_000, value)
}

func TestFindHTLCOutputMismatchCarriesActualScripts(t *testing.T) {
	claim := genKey(t)
	timeout := genKey(t)
	var preimage PaymentPreimage
	hash := preimage.Hash()

	script, err := BuildLoopOutRedeemScript(claim.PubKey(), timeout.PubKey(), hash, 600)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))

	_, _, err = FindHTLCOutput(tx, script)
	require.Error(t, err)

	mismatch, ok := err.(RedeemScriptMismatch)
	require.True(t, ok)
	require.Len(t, mismatch.ActualPkScripts, 1)
}

func TestCreateClaimAndRefundTx(t *testing.T) {
	claim := genKey(t)
	timeout := genKey(t)
	var preimage PaymentPreimage
	preimage[1] = 0x42
	hash := preimage.Hash()

	script, err := BuildLoopOutRedeemScript(claim.PubKey(), timeout.PubKey(), hash, 600)
	require.NoError(t, err)

	outpoint := wire.OutPoint{Index: 0}

	destKey := genKey(t)
	destHash := btcutil.Hash160(destKey.PubKey().SerializeCompressed())
	refundAddr, err := btcutil.NewAddressWitnessPubKeyHash(destHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	claimAddr := refundAddr.EncodeAddress()

	claimTx, err := CreateClaimTx(
		outpoint, 100_000, script, preimage, claim, claimAddr,
		&chaincfg.RegressionNetParams, 500, 100,
	)
	require.NoError(t, err)
	require.Len(t, claimTx.TxOut, 1)
	require.EqualValues(t, 99_500, claimTx.TxOut[0].Value)
	require.Len(t, claimTx.TxIn[0].Witness, 3)
	require.Equal(t, preimage[:], []byte(claimTx.TxIn[0].Witness[1]))

	refundTx, err := CreateRefundTx(
		outpoint, 100_000, script, timeout, refundAddr, 500, 600,
	)
	require.NoError(t, err)
	require.Equal(t, uint32(600), refundTx.LockTime)
	require.Len(t, refundTx.TxIn[0].Witness, 3)
	require.Empty(t, []byte(refundTx.TxIn[0].Witness[1]))
}
