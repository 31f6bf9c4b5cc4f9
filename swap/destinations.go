package swap

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// dustOutput is the threshold below which a change output is dropped
// rather than included in a sweep transaction.
const dustOutput = 2020

// destination is one output of a claim or refund transaction under
// construction.
type destination struct {
	addr   btcutil.Address
	amount btcutil.Amount
}

// deduceDestinations works out the final output set for a sweep
// transaction given the available amount and the fees incurred for the
// one-output and two-output variants. When the change output would be
// dust it is dropped and the dest output absorbs the change fee savings;
// when there isn't even enough to cover destAmount on its own, everything
// goes to the change address instead of failing outright. CreateClaimTx
// and CreateRefundTx call this with changeAddr nil, the single-output
// case: rather than erroring when the fee would consume the swept
// amount, the dest output simply absorbs whatever is left, economical
// or not — broadcast-worthiness is the caller's problem, not this
// function's.
func deduceDestinations(amount, destAmount, feeOnlyDest, feeOnlyChange, feeBoth btcutil.Amount,
	destAddr, changeAddr btcutil.Address) ([]destination, error) {

	if (destAmount != 0) != (changeAddr != nil) {
		return nil, fmt.Errorf("provide either both destAmount and changeAddr or none of them")
	}
	if (feeOnlyChange != 0) != (changeAddr != nil) {
		return nil, fmt.Errorf("provide either both feeOnlyChange and changeAddr or none of them")
	}
	if (feeBoth != 0) != (changeAddr != nil) {
		return nil, fmt.Errorf("provide either both feeBoth and changeAddr or none of them")
	}

	if changeAddr == nil {
		return []destination{
			{
				addr:   destAddr,
				amount: amount - feeOnlyDest,
			},
		}, nil
	}

	changeAmount := amount - destAmount - feeBoth

	if changeAmount > dustOutput {
		return []destination{
			{
				addr:   destAddr,
				amount: destAmount,
			},
			{
				addr:   changeAddr,
				amount: changeAmount,
			},
		}, nil
	}

	// changeAmount is below dustOutput, so the change output is dropped.

	if amount-destAmount >= feeOnlyDest {
		return []destination{
			{
				addr:   destAddr,
				amount: destAmount,
			},
		}, nil
	}

	// destAmount can't be satisfied on its own. This should not happen
	// given the caller validates amount >= max_miner_fee + dest_amt
	// before construction, but sending everything to the change address
	// is preferable to failing the sweep outright.
	return []destination{
		{
			addr:   changeAddr,
			amount: amount - feeOnlyChange,
		},
	}, nil
}
