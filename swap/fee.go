package swap

import "github.com/btcsuite/btcd/btcutil"

const (
	// DefaultSweepConfTarget is the confirmation target a swap falls
	// back to once its timeout is close enough that the operator's
	// configured, more leisurely target would cut it too fine.
	DefaultSweepConfTarget uint32 = 9

	// DefaultSweepConfTargetDelta is how many blocks of margin,
	// measured from the swap's timeout, trigger the urgency downgrade.
	DefaultSweepConfTargetDelta uint32 = 18

	// MinPreimageRevealDelta is the safety margin, in blocks, that must
	// remain before timeout for it to be safe to reveal the preimage by
	// publishing a claim transaction (§4.4 NewBlock@Out step 2).
	MinPreimageRevealDelta uint32 = 20
)

// FeeEstimator asks an external fee-rate oracle for a rate at a given
// confirmation target. It is one of the suspension points in deps (§5).
type FeeEstimator interface {
	EstimateFeeRate(confTarget uint32) (FeeRate, error)
}

// sweepConfTarget applies the urgency downgrade from §4.2: once the
// timeout is within DefaultSweepConfTargetDelta blocks, a looser configured
// target is clamped down to DefaultSweepConfTarget.
func sweepConfTarget(currentHeight, timeout BlockHeight, configured uint32) uint32 {
	remaining := uint32(0)
	if timeout > currentHeight {
		remaining = uint32(timeout - currentHeight)
	}

	if remaining <= DefaultSweepConfTargetDelta && configured > DefaultSweepConfTarget {
		return DefaultSweepConfTarget
	}
	return configured
}

// claimFeeDecision is the outcome of applying the cap policy from §4.2 to
// a candidate claim-tx fee rate.
type claimFeeDecision int

const (
	// claimFeeHold means: do nothing this tick, re-evaluate later.
	claimFeeHold claimFeeDecision = iota

	// claimFeePublishAtRate means: build and publish at the estimator's
	// rate, it comfortably clears the fee cap.
	claimFeePublishAtRate

	// claimFeeBumpToCap means: the preimage is already revealed, so we
	// must proceed regardless of cost; rebuild at the effective rate
	// implied by the fee cap and publish (a fee bump).
	claimFeeBumpToCap
)

// decideClaimFee implements the cap policy in §4.2: given a candidate fee
// rate and a transaction's estimated virtual size, decide whether to
// publish at that rate, bump to the fee cap because the preimage is
// already out, or hold off entirely.
func decideClaimFee(rate FeeRate, vsize int64, maxMinerFee btcutil.Amount,
	preimageRevealed bool) (claimFeeDecision, FeeRate) {

	estimatedFee := rate.FeeForVSize(vsize)

	if maxMinerFee > estimatedFee {
		return claimFeePublishAtRate, rate
	}

	if preimageRevealed {
		if vsize <= 0 {
			return claimFeeBumpToCap, rate
		}
		effective := FeeRate(int64(maxMinerFee) / vsize)
		return claimFeeBumpToCap, effective
	}

	return claimFeeHold, rate
}
