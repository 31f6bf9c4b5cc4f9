// Package command defines the inputs accepted by the executor
// (github.com/nloop/nloop/engine), the external collaborators it may call
// (Deps), and the per-call metadata (Meta) that travels alongside every
// command. None of the collaborator implementations live here — only the
// narrow interface shapes the core depends on, mirroring how the teacher's
// loopout.go/loopin.go depend on *lndclient.LndServices without owning it.
package command

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/nloop/nloop/swapstate"
)

// Command is implemented by every member of the command union accepted by
// the executor.
type Command interface {
	// isCommand is unexported so only this package's types satisfy
	// Command.
	isCommand()
}

// NewLoopOut requests creation of a loop-out swap. Legal only against
// swapstate.KindHasNotStarted.
type NewLoopOut struct {
	Height  swapstate.BlockHeight
	LoopOut swapstate.LoopOut

	// MaxPrepayFee caps the routing fee paid for PrepayInvoice, if any,
	// and is also recorded as the MaxFee of OffChainOfferStarted's pay
	// parameters. This command carries no separate fee cap for the hold
	// invoice payment, which the surrounding dispatcher makes, not the
	// core. See the Open Questions note in the design ledger.
	MaxPrepayFee   int64
	OutgoingChanId uint64
}

func (NewLoopOut) isCommand() {}

// NewLoopIn requests creation of a loop-in swap. Legal only against
// swapstate.KindHasNotStarted.
type NewLoopIn struct {
	Height swapstate.BlockHeight
	LoopIn swapstate.LoopIn
}

func (NewLoopIn) isCommand() {}

// Transaction carries the on-chain HTLC-funding transaction as reported by
// the counterparty alongside a loop-out status update.
type Transaction struct {
	Tx *wire.MsgTx
}

// SwapUpdate reports a counterparty- or chain-observed status change for an
// in-flight swap.
type SwapUpdate struct {
	Status      swapstate.Status
	Transaction *Transaction
	Reason      string
}

func (SwapUpdate) isCommand() {}

// OffChainOfferResolve reports that the off-chain offer for a loop-out swap
// has been pulled by the counterparty, revealing the preimage.
type OffChainOfferResolve struct {
	Preimage swapstate.PaymentPreimage
}

func (OffChainOfferResolve) isCommand() {}

// SetValidationError is the only graceful fail-terminate path available
// after a swap has started: it finalises the swap as Errored with the
// supplied message.
type SetValidationError struct {
	Message string
}

func (SetValidationError) isCommand() {}

// NewBlock reports a new best-known chain height for one of the two chains
// a swap cares about (its base or quote asset).
type NewBlock struct {
	Height swapstate.BlockHeight
	Chain  swapstate.Asset
}

func (NewBlock) isCommand() {}
