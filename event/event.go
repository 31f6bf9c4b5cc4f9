// Package event defines the tagged, versioned event union that a swap's
// stream is made of, along with the binary codec used to persist it. Every
// event type shares a single tagged union instead of a table-backed row per
// event type.
package event

import (
	"github.com/nloop/nloop/swapstate"
)

// Tag identifies the wire type of an event. Tags are grouped by namespace:
// 0-255 loop-out, 256-511 loop-in, 512-767 chain, 1024+ terminal.
type Tag uint16

const (
	TagNewLoopOutAdded      Tag = 0
	TagClaimTxPublished     Tag = 1
	TagOffChainOfferStarted Tag = 2
	TagOffChainOfferResolved Tag = 3

	TagNewLoopInAdded   Tag = 256
	TagSwapTxPublished  Tag = 257
	TagRefundTxPublished Tag = 258

	TagNewTipReceived Tag = 512

	TagFinishedSuccessfully Tag = 1024
	TagFinishedByRefund     Tag = 1025
	TagFinishedByError      Tag = 1026
	TagFinishedByTimeout    Tag = 1027
)

// Event is implemented by every member of the event union, including the
// UnknownTag fallback variant used to preserve forward compatibility across
// replay of streams written by newer code.
type Event interface {
	// Tag returns the wire tag of this event.
	Tag() Tag
}

// NewLoopOutAdded records the creation of a loop-out swap.
type NewLoopOutAdded struct {
	Height  swapstate.BlockHeight
	LoopOut swapstate.LoopOut
}

func (NewLoopOutAdded) Tag() Tag { return TagNewLoopOutAdded }

// ClaimTxPublished records that a claim (sweep) transaction spending the
// HTLC has been broadcast.
type ClaimTxPublished struct {
	Txid string
}

func (ClaimTxPublished) Tag() Tag { return TagClaimTxPublished }

// PayParams carries the parameters of the fire-and-forget prepayment made
// when a loop-out swap is created.
type PayParams struct {
	MaxFee         int64
	OutgoingChanId uint64
}

// OffChainOfferStarted records that the off-chain prepayment/invoice offer
// for a loop-out swap has been initiated.
type OffChainOfferStarted struct {
	SwapId    swapstate.SwapId
	Pair      swapstate.PairId
	Invoice   string
	PayParams PayParams
}

func (OffChainOfferStarted) Tag() Tag { return TagOffChainOfferStarted }

// OffChainOfferResolved records that the counterparty pulled the off-chain
// offer, revealing the preimage.
type OffChainOfferResolved struct {
	Preimage swapstate.PaymentPreimage
}

func (OffChainOfferResolved) Tag() Tag { return TagOffChainOfferResolved }

// NewLoopInAdded records the creation of a loop-in swap.
type NewLoopInAdded struct {
	Height swapstate.BlockHeight
	LoopIn swapstate.LoopIn
}

func (NewLoopInAdded) Tag() Tag { return TagNewLoopInAdded }

// SwapTxPublished records the on-chain HTLC-funding transaction: observed
// via the counterparty in loop-out, broadcast by us in loop-in.
type SwapTxPublished struct {
	TxHex string
}

func (SwapTxPublished) Tag() Tag { return TagSwapTxPublished }

// RefundTxPublished records that a refund transaction spending our own
// loop-in HTLC after timeout has been broadcast.
type RefundTxPublished struct {
	Txid string
}

func (RefundTxPublished) Tag() Tag { return TagRefundTxPublished }

// NewTipReceived records a new best-known chain height for this swap's base
// or quote chain, whichever is relevant to its direction.
type NewTipReceived struct {
	Height swapstate.BlockHeight
}

func (NewTipReceived) Tag() Tag { return TagNewTipReceived }

// FinishedSuccessfully is the terminal event for a swap that completed on
// both legs.
type FinishedSuccessfully struct {
	Id swapstate.SwapId
}

func (FinishedSuccessfully) Tag() Tag { return TagFinishedSuccessfully }

// FinishedByRefund is the terminal event for a loop-in swap that was
// reclaimed via its timeout path.
type FinishedByRefund struct {
	Id swapstate.SwapId
}

func (FinishedByRefund) Tag() Tag { return TagFinishedByRefund }

// FinishedByError is the terminal event for a swap that was abandoned via
// SetValidationError.
type FinishedByError struct {
	Id      swapstate.SwapId
	Message string
}

func (FinishedByError) Tag() Tag { return TagFinishedByError }

// FinishedByTimeout is the terminal event for a swap that expired without
// completing, including the preimage-reveal safety cutoff.
type FinishedByTimeout struct {
	Reason string
}

func (FinishedByTimeout) Tag() Tag { return TagFinishedByTimeout }

// UnknownTag preserves an event this build does not recognise, so replay of
// a stream written by a newer version never fails.
type UnknownTag struct {
	RawTag  Tag
	RawBody []byte
}

func (u UnknownTag) Tag() Tag { return u.RawTag }
