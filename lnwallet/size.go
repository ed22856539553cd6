package lnwallet

import "github.com/btcsuite/btcd/blockchain"

// Weight accounting for the handful of script shapes this daemon actually
// constructs: a single HTLC input spent down either the claim or the
// timeout path, and P2WKH/P2WSH/nested P2SH-P2WSH outputs. See BIP-141 for
// the weight/vsize relationship this file leans on throughout:
// weight = 4*base_size + witness_size, vsize = ceil(weight / 4).
const (
	// P2WSHSize 34 bytes
	//	- OP_0: 1 byte
	//	- OP_DATA: 1 byte (WitnessScriptSHA256 length)
	//	- WitnessScriptSHA256: 32 bytes
	P2WSHSize = 1 + 1 + 32

	// P2WPKHSize 22 bytes
	//	- OP_0: 1 byte
	//	- OP_DATA: 1 byte (PublicKeyHASH160 length)
	//	- PublicKeyHASH160: 20 bytes
	P2WPKHSize = 1 + 1 + 20

	// P2SHSize 23 bytes, used for the nested P2SH-P2WSH HTLC funding
	// output some loop-in counterparties still expect.
	P2SHSize = 1 + 1 + 20 + 1

	// P2WKHOutputSize 31 bytes
	//	- value: 8 bytes
	//	- var_int: 1 byte (pkscript_length)
	//	- pkscript (p2wpkh): 22 bytes
	P2WKHOutputSize = 8 + 1 + P2WPKHSize

	// P2WSHOutputSize 43 bytes
	//	- value: 8 bytes
	//	- var_int: 1 byte (pkscript_length)
	//	- pkscript (p2wsh): 34 bytes
	P2WSHOutputSize = 8 + 1 + P2WSHSize

	// P2SHOutputSize 32 bytes
	//	- value: 8 bytes
	//	- var_int: 1 byte (pkscript_length)
	//	- pkscript (p2sh): 23 bytes
	P2SHOutputSize = 8 + 1 + P2SHSize

	// P2WKHWitnessSize 108 bytes
	//	- OP_DATA: 1 byte (signature length)
	//	- signature
	//	- OP_DATA: 1 byte (pubkey length)
	//	- pubkey
	P2WKHWitnessSize = 1 + 73 + 1 + 33

	// InputSize 41 bytes
	//	- PreviousOutPoint:
	//		- Hash: 32 bytes
	//		- Index: 4 bytes
	//	- OP_DATA: 1 byte (ScriptSigLength, 0 for a witness input)
	//	- Sequence: 4 bytes
	InputSize = 32 + 4 + 1 + 4

	// NestedP2SHScriptSigSize 35 bytes, the scriptSig of a nested
	// P2SH-P2WSH input: a single push of the witness program.
	NestedP2SHScriptSigSize = 1 + P2WSHSize

	// WitnessHeaderSize 2 bytes
	//	- Flag: 1 byte
	//	- Marker: 1 byte
	WitnessHeaderSize = 1 + 1

	// HTLCClaimWitnessSize is the witness for spending our HTLC down the
	// preimage path: <sig> <preimage> <redeem_script>.
	//	- num elements: 1
	//	- sig: 1 + 73
	//	- preimage: 1 + 32
	//	- redeem script: 1 + 119 (upper bound of swap/script.go's
	//	  htlcScript for a timeout height below 2^23)
	HTLCClaimWitnessSize = 1 + 1 + 73 + 1 + 32 + 1 + 119

	// HTLCRefundWitnessSize is the witness for spending our HTLC down
	// the timeout path: <sig> <empty_push> <redeem_script>.
	HTLCRefundWitnessSize = 1 + 1 + 73 + 1 + 1 + 119

	// BaseTxSize accounts for the fixed-size fields of a transaction,
	// before any input or output is added. The input/output counts are
	// added by Weight as varints, and the witness header is counted as
	// witness data.
	//	- Version: 4 bytes
	//	- LockTime: 4 bytes
	BaseTxSize = 4 + 4
)

// TxWeightEstimator accumulates the weight of a transaction as inputs and
// outputs are added to it, so a fee can be computed before the transaction
// is fully assembled and signed.
type TxWeightEstimator struct {
	hasWitness     bool
	inputCount     int
	inputSize      int
	outputCount    int
	outputSize     int
	inputWitness   int
}

// AddP2WKHOutput registers the weight of a P2WKH output (our usual claim
// destination).
func (twe *TxWeightEstimator) AddP2WKHOutput() {
	twe.outputCount++
	twe.outputSize += P2WKHOutputSize
}

// AddP2WSHOutput registers the weight of a P2WSH output (an HTLC funding
// output).
func (twe *TxWeightEstimator) AddP2WSHOutput() {
	twe.outputCount++
	twe.outputSize += P2WSHOutputSize
}

// AddP2SHOutput registers the weight of a nested P2SH-P2WSH output.
func (twe *TxWeightEstimator) AddP2SHOutput() {
	twe.outputCount++
	twe.outputSize += P2SHOutputSize
}

// AddWitnessInput registers a segwit input whose witness occupies
// witnessSize bytes.
func (twe *TxWeightEstimator) AddWitnessInput(witnessSize int) {
	twe.inputCount++
	twe.inputSize += InputSize
	twe.inputWitness += witnessSize
	twe.hasWitness = true
}

// AddNestedP2SHInput registers a nested P2SH-P2WSH input: the scriptSig
// carries the witness program push, the witness carries the HTLC script
// spend.
func (twe *TxWeightEstimator) AddNestedP2SHInput(witnessSize int) {
	twe.inputCount++
	twe.inputSize += InputSize + NestedP2SHScriptSigSize
	twe.inputWitness += witnessSize
	twe.hasWitness = true
}

// varIntSize returns the size, in bytes, of the variable-length integer
// encoding of n -- the same compact encoding wire.MsgTx uses for its
// input/output counts.
func varIntSize(n int) int {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// Weight returns the transaction's total weight units.
func (twe *TxWeightEstimator) Weight() int64 {
	baseSize := BaseTxSize + varIntSize(twe.inputCount) +
		varIntSize(twe.outputCount) + twe.inputSize + twe.outputSize

	witnessSize := twe.inputWitness
	if twe.hasWitness {
		witnessSize += WitnessHeaderSize
	}

	return int64(blockchain.WitnessScaleFactor*baseSize + witnessSize)
}

// VSize returns the transaction's virtual size in vbytes, rounding up per
// BIP-141.
func (twe *TxWeightEstimator) VSize() int64 {
	w := twe.Weight()
	return (w + int64(blockchain.WitnessScaleFactor) - 1) /
		int64(blockchain.WitnessScaleFactor)
}
