package command

import "fmt"

// TransactionError is returned when transaction construction is refused,
// most often because the lockup transaction does not contain an output
// committing to the expected redeem script.
type TransactionError struct {
	Msg string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction error: %v", e.Msg)
}

// NewTransactionError wraps msg as a *TransactionError.
func NewTransactionError(msg string) *TransactionError {
	return &TransactionError{Msg: msg}
}

// RedeemScriptMismatch reports that no output of a lockup transaction
// commits to the expected redeem script, either as P2WSH or
// P2SH(P2WSH(...)).
type RedeemScriptMismatch struct {
	ActualPkScripts [][]byte
	ExpectedRedeem  []byte
}

func (e *RedeemScriptMismatch) Error() string {
	return fmt.Sprintf("redeem script mismatch: none of %d outputs commit "+
		"to the expected redeem script", len(e.ActualPkScripts))
}

// InputError is returned when command-level validation fails before any
// external side effect has been attempted.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input error: %v", e.Msg)
}

// NewInputError wraps msg as an *InputError.
func NewInputError(msg string) *InputError {
	return &InputError{Msg: msg}
}

// UTXOProviderError is returned when a loop-in swap's funding transaction
// cannot be funded from the available coin set.
type UTXOProviderError struct {
	Cause error
}

func (e *UTXOProviderError) Error() string {
	return fmt.Sprintf("utxo provider error: %v", e.Cause)
}

func (e *UTXOProviderError) Unwrap() error { return e.Cause }

// FailedToGetAddress is returned when the wallet refuses to produce a
// change or refund address.
type FailedToGetAddress struct {
	Cause error
}

func (e *FailedToGetAddress) Error() string {
	return fmt.Sprintf("failed to get address: %v", e.Cause)
}

func (e *FailedToGetAddress) Unwrap() error { return e.Cause }

// CanNotSafelyRevealPreimage is returned when the preimage-reveal safety
// cutoff has tripped: the swap is too close to timeout to risk publishing a
// claim transaction.
type CanNotSafelyRevealPreimage struct{}

func (e *CanNotSafelyRevealPreimage) Error() string {
	return "cannot safely reveal preimage: too close to timeout"
}

// UnexpectedError wraps any failure that does not fit one of the other
// kinds. It always surfaces to the caller.
type UnexpectedError struct {
	Cause error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Cause)
}

func (e *UnexpectedError) Unwrap() error { return e.Cause }

// NewUnexpectedError wraps cause as an *UnexpectedError.
func NewUnexpectedError(cause error) *UnexpectedError {
	return &UnexpectedError{Cause: cause}
}
