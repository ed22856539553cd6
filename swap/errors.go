package swap

import "fmt"

// TransactionError indicates that constructing or validating a transaction
// was refused, most often because the lockup transaction didn't contain the
// expected HTLC output.
type TransactionError struct {
	Msg string
}

func (e TransactionError) Error() string {
	return fmt.Sprintf("transaction error: %s", e.Msg)
}

// RedeemScriptMismatch is a TransactionError raised when none of the
// lockup tx's outputs commit to the expected redeem script, either
// directly (P2WSH) or nested (P2SH-P2WSH).
type RedeemScriptMismatch struct {
	ActualPkScripts [][]byte
	ExpectedRedeem  []byte
}

func (e RedeemScriptMismatch) Error() string {
	return fmt.Sprintf("redeem script mismatch: none of %d lockup outputs "+
		"pay to P2WSH/P2SH-P2WSH(%x)", len(e.ActualPkScripts),
		e.ExpectedRedeem)
}

// InputError indicates a command failed validation before any external
// side effect took place. It is always safe to report to the caller
// without persisting anything.
type InputError struct {
	Msg string
}

func (e InputError) Error() string {
	return fmt.Sprintf("input error: %s", e.Msg)
}

// UTXOProviderError indicates the wallet's UTXO provider could not fund a
// loop-in swap transaction.
type UTXOProviderError struct {
	Msg string
}

func (e UTXOProviderError) Error() string {
	return fmt.Sprintf("utxo provider error: %s", e.Msg)
}

// FailedToGetAddress indicates the wallet refused to produce a change or
// refund address.
type FailedToGetAddress struct {
	Msg string
}

func (e FailedToGetAddress) Error() string {
	return fmt.Sprintf("failed to get address: %s", e.Msg)
}

// CanNotSafelyRevealPreimage indicates the safety-cutoff guard tripped: we
// are too close to the swap's timeout to risk revealing the preimage
// without a guaranteed on-chain claim.
type CanNotSafelyRevealPreimage struct {
	Msg string
}

func (e CanNotSafelyRevealPreimage) Error() string {
	return fmt.Sprintf("cannot safely reveal preimage: %s", e.Msg)
}

// UnexpectedError wraps any error that isn't one of the above -- including
// programmer errors such as an illegal (command, state) pairing in a
// non-terminal state. It is always surfaced to the caller.
type UnexpectedError struct {
	Msg string
	Err error
}

func (e UnexpectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("unexpected error: %s", e.Msg)
}

func (e UnexpectedError) Unwrap() error {
	return e.Err
}
