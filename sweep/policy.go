package sweep

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/nloop/nloop/swapstate"
)

const (
	// DefaultSweepConfTarget is the confirmation target a sweep falls
	// back to once a swap is close enough to timeout that urgency beats
	// the client's configured preference.
	DefaultSweepConfTarget = 9

	// DefaultSweepConfTargetDelta is how many blocks before timeout the
	// urgency downgrade in EffectiveSweepConfTarget kicks in.
	DefaultSweepConfTargetDelta = 18

	// MinPreimageRevealDelta is the safety margin, in blocks, before
	// timeout beyond which revealing the preimage is unsafe: the
	// counterparty could race a refund while we have no confirmed claim.
	MinPreimageRevealDelta = 20
)

// EffectiveSweepConfTarget applies the urgency downgrade: once at most
// DefaultSweepConfTargetDelta blocks remain before timeout, a configured
// target slower than DefaultSweepConfTarget is overridden.
func EffectiveSweepConfTarget(remainingBlocks int32, configured int32) int32 {
	if remainingBlocks <= DefaultSweepConfTargetDelta &&
		configured > DefaultSweepConfTarget {

		return DefaultSweepConfTarget
	}

	return configured
}

// ClaimFeeDecision is the outcome of applying the claim-tx fee cap at a
// given estimated rate.
type ClaimFeeDecision struct {
	// Publish is true if a claim tx should be built and broadcast this
	// tick.
	Publish bool

	// Rate is the fee rate to build the claim tx at, when Publish is
	// true.
	Rate swapstate.FeeRate

	// Bump is true when Rate was derived from the fee cap rather than
	// the estimator, i.e. this republishes an already-broadcast claim at
	// a lower effective rate than the mempool wants.
	Bump bool
}

// DecideClaimFee implements the fee-cap policy for a claim transaction:
// publish at the estimated rate r when the resulting fee stays under
// max_miner_fee; if the preimage has already been revealed (a claim tx was
// previously published) we must proceed regardless, so rebuild and bump at
// the capped effective rate; otherwise hold off this tick and let the
// caller re-evaluate on the next block or update.
func DecideClaimFee(maxMinerFee btcutil.Amount, rate swapstate.FeeRate,
	vsize int64, preimageAlreadyRevealed bool) ClaimFeeDecision {

	if vsize <= 0 {
		return ClaimFeeDecision{}
	}

	fee := btcutil.Amount(int64(rate) * vsize)
	if maxMinerFee > fee {
		return ClaimFeeDecision{Publish: true, Rate: rate}
	}

	if preimageAlreadyRevealed {
		effectiveRate := swapstate.FeeRate(int64(maxMinerFee) / vsize)
		return ClaimFeeDecision{
			Publish: true,
			Rate:    effectiveRate,
			Bump:    true,
		}
	}

	return ClaimFeeDecision{}
}
