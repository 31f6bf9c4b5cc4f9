package command

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"github.com/nloop/nloop/swap"
	"github.com/nloop/nloop/swapstate"
)

// Utxo is a single spendable coin as reported by a UTXOProvider.
type Utxo = swap.SpendableOutput

// Broadcaster publishes a finished transaction to the network. It is
// stateless from the core's point of view: re-broadcasting the same
// transaction must be harmless.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx, label string) error
}

// FeeEstimator answers fee-rate queries for a given confirmation target.
type FeeEstimator interface {
	EstimateFeeRate(ctx context.Context, confTarget int32) (swapstate.FeeRate, error)
}

// UTXOProvider selects, signs, and releases on-chain coins for a loop-in
// swap's funding transaction. The caller must release any selected coins on
// failure so they are not held indefinitely.
type UTXOProvider interface {
	SelectUTXOs(ctx context.Context, amount btcutil.Amount,
		feeRate swapstate.FeeRate) ([]Utxo, error)

	SignPSBT(ctx context.Context, packet *psbt.Packet) (*psbt.Packet, error)

	ReleaseUTXOs(ctx context.Context, utxos []Utxo)
}

// AddressSource hands out a change address for a loop-in funding PSBT, or a
// refund address for a loop-in refund tx, on demand. Failure to produce one
// surfaces as FailedToGetAddress.
type AddressSource interface {
	GetChangeAddress(ctx context.Context) (btcutil.Address, error)
	GetRefundAddress(ctx context.Context) (btcutil.Address, error)
}

// PayInvoiceParams carries the routing-fee cap and preferred outgoing
// channel for a fire-and-forget off-chain payment.
type PayInvoiceParams struct {
	MaxFee         int64
	OutgoingChanId uint64
}

// InvoicePayer dispatches an off-chain payment without waiting for
// settlement; the executor never blocks on the result.
type InvoicePayer interface {
	PayInvoice(ctx context.Context, invoice string, params PayInvoiceParams) error
}

// Deps bundles every external collaborator the executor may call. Each
// field is a narrow interface so a real lndclient-backed implementation or
// a test fake can satisfy it equally.
type Deps struct {
	Broadcaster   Broadcaster
	FeeEstimator  FeeEstimator
	UTXOProvider  UTXOProvider
	AddressSource AddressSource
	InvoicePayer  InvoicePayer
	Signer        swap.Signer
}

// Meta carries per-call metadata that is not itself a collaborator: the
// effective timestamp of the command (carried for audit; events are ordered
// by append order, not by this timestamp) and configured validation maxima.
type Meta struct {
	EffectiveDate time.Time
	Source        string

	MaxSwapFee    int64
	MaxMinerFee   int64
	MaxCltvDelta  int32
}
