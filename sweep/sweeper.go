package sweep

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/input"

	"github.com/nloop/nloop/swap"
)

// EstimateClaimVsize estimates the virtual size of a one-input,
// one-output transaction spending htlc's success path to destAddr. The
// core never calls a fee RPC itself (that collaborator is external, see
// command.FeeEstimator); this is the pure half of what the teacher's
// Sweeper.GetSweepFee used to compute inline alongside the RPC call.
func EstimateClaimVsize(htlc *swap.Htlc, destAddr btcutil.Address) (int64, error) {
	var estimator input.TxWeightEstimator

	htlc.AddSuccessToEstimator(&estimator)

	if err := swap.AddOutputWeight(&estimator, destAddr); err != nil {
		return 0, err
	}

	return weightToVsize(int64(estimator.Weight())), nil
}

// EstimateRefundVsize estimates the virtual size of a one-input,
// one-output transaction spending htlc's timeout path to refundAddr.
func EstimateRefundVsize(htlc *swap.Htlc, refundAddr btcutil.Address) (int64, error) {
	var estimator input.TxWeightEstimator

	htlc.AddTimeoutToEstimator(&estimator)

	if err := swap.AddOutputWeight(&estimator, refundAddr); err != nil {
		return 0, err
	}

	return weightToVsize(int64(estimator.Weight())), nil
}

func weightToVsize(weight int64) int64 {
	return (weight + 3) / 4
}
