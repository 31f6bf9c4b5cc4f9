package swap

import "bytes"

// RedeemScriptValidationError reports that a counterparty-supplied redeem
// script does not commit to the key, payment hash, and timeout a swap was
// created with.
type RedeemScriptValidationError struct {
	Expected []byte
	Actual   []byte
}

func (e *RedeemScriptValidationError) Error() string {
	return "redeem script does not commit to the expected key, " +
		"payment hash, and timeout"
}

// ValidateRedeemScript checks redeemScript against the script htlc was
// itself built with, rejecting anything that does not commit to the same
// hash-lock, key, and CLTV timeout. htlc is expected to be rebuilt from a
// swap's own recorded parameters (see htlcForLoopOut/htlcForLoopIn), so a
// mismatch here means the counterparty-supplied RedeemScript diverges from
// what we agreed to before any on-chain action is taken. V1 and V2 use one
// script for both the success and timeout branch; V3 splits them into two
// tapleaves, so either one is accepted.
func ValidateRedeemScript(htlc *Htlc, redeemScript []byte) error {
	if bytes.Equal(redeemScript, htlc.SuccessScript()) ||
		bytes.Equal(redeemScript, htlc.TimeoutScript()) {

		return nil
	}

	return &RedeemScriptValidationError{
		Expected: htlc.SuccessScript(),
		Actual:   redeemScript,
	}
}
