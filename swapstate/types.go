// Package swapstate defines the immutable value types that make up a single
// swap's state: the parameters recorded at creation time, the on-chain facts
// learned along the way, and the tagged union that the event fold produces.
package swapstate

import (
	"fmt"

	"github.com/lightningnetwork/lnd/keychain"
	"github.com/lightningnetwork/lnd/lntypes"

	"github.com/nloop/nloop/swap"
)

// SwapId uniquely identifies a swap and is the primary key of its event
// stream.
type SwapId string

// Asset is one side of a trading pair.
type Asset string

const (
	// AssetBTC is the Bitcoin base/quote asset.
	AssetBTC Asset = "BTC"

	// AssetLTC is the Litecoin base/quote asset.
	AssetLTC Asset = "LTC"
)

// PairId is an ordered pair of assets. BaseAsset is always the on-chain side
// of the swap, QuoteAsset the off-chain side.
type PairId struct {
	BaseAsset  Asset
	QuoteAsset Asset
}

// String returns the canonical "BASE/QUOTE" representation of a pair.
func (p PairId) String() string {
	return fmt.Sprintf("%v/%v", p.BaseAsset, p.QuoteAsset)
}

// PaymentPreimage is the 32 byte secret whose SHA-256 hash is the
// PaymentHash used throughout the HTLCs this package describes.
type PaymentPreimage = lntypes.Preimage

// PaymentHash is the SHA-256 of a PaymentPreimage.
type PaymentHash = lntypes.Hash

// FeeRate is expressed in satoshis per virtual byte.
type FeeRate int64

// BlockHeight is an absolute chain height.
type BlockHeight uint32

// Status is the counterparty/chain-observed status of a single swap, as
// reported by a SwapUpdate command.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusInitiated
	StatusTxMempool
	StatusTxConfirmed
	StatusTxClaimed
	StatusInvoiceSet
	StatusInvoicePayed
	StatusInvoiceFailedToPay
	StatusSwapExpired
)

func (s Status) String() string {
	switch s {
	case StatusInitiated:
		return "Initiated"
	case StatusTxMempool:
		return "TxMempool"
	case StatusTxConfirmed:
		return "TxConfirmed"
	case StatusTxClaimed:
		return "TxClaimed"
	case StatusInvoiceSet:
		return "InvoiceSet"
	case StatusInvoicePayed:
		return "InvoicePayed"
	case StatusInvoiceFailedToPay:
		return "InvoiceFailedToPay"
	case StatusSwapExpired:
		return "SwapExpired"
	default:
		return "Unknown"
	}
}

// HtlcKeys holds the counterparty's half of the public-key material needed
// to rebuild a swap's HTLC script. Our own half comes from ClaimKey/
// RefundKey's KeyDescriptor.PubKey instead, so only the remote side needs
// recording here.
type HtlcKeys struct {
	CounterpartyScriptKey      [33]byte
	CounterpartyInternalPubKey [33]byte
}

// LoopOut carries the parameters and on-chain facts of a loop-out (reverse)
// swap: we pay an off-chain invoice, the counterparty funds an on-chain
// HTLC, and we sweep it with the preimage.
type LoopOut struct {
	Id     SwapId
	Pair   PairId
	Status Status

	// ScriptVersion selects which HTLC witness-script variant
	// RedeemScript was built with.
	ScriptVersion swap.ScriptVersion

	// ClaimKey is the key locator for the private key controlling the
	// claim (preimage) path. The core never holds raw key material.
	ClaimKey keychain.KeyDescriptor

	// HtlcKeys carries the counterparty's public keys (its key on the
	// refund branch) needed to rebuild the htlc script object for tx
	// construction; our own half comes from ClaimKey's public key.
	HtlcKeys HtlcKeys

	// CltvExpiry is the absolute CLTV expiry baked into RedeemScript,
	// equal to TimeoutHeight.
	CltvExpiry int32

	Preimage       PaymentPreimage
	RedeemScript   []byte
	ClaimAddress   string
	Invoice        string
	PrepayInvoice  string
	OnChainAmount  int64
	TimeoutHeight  BlockHeight
	SweepConfTarget int32
	MaxMinerFee    int64
	MaxSwapFee     int64
	AcceptZeroConf bool

	// LockupTxHex is set once the HTLC funding transaction has been
	// observed, either in the mempool or confirmed.
	LockupTxHex string

	// ClaimTransactionId is set once a sweep of the HTLC has been
	// broadcast.
	ClaimTransactionId string
}

// WithClaimTx returns a copy of l with ClaimTransactionId set.
func (l LoopOut) WithClaimTx(txid string) LoopOut {
	l.ClaimTransactionId = txid
	return l
}

// WithLockupTx returns a copy of l with LockupTxHex set.
func (l LoopOut) WithLockupTx(hex string) LoopOut {
	l.LockupTxHex = hex
	return l
}

// WithPreimage returns a copy of l with Preimage set.
func (l LoopOut) WithPreimage(p PaymentPreimage) LoopOut {
	l.Preimage = p
	return l
}

// LoopIn carries the parameters and on-chain facts of a loop-in (forward)
// swap: the counterparty offers an off-chain payment, we fund an on-chain
// HTLC, and the counterparty claims it, revealing the preimage that settles
// the payment to us.
type LoopIn struct {
	Id     SwapId
	Pair   PairId
	Status Status

	ScriptVersion swap.ScriptVersion

	// RefundKey is the key locator for the private key controlling the
	// refund (timeout) path.
	RefundKey keychain.KeyDescriptor

	// HtlcKeys carries the public keys needed to rebuild the htlc
	// script object for tx construction.
	HtlcKeys HtlcKeys

	// CltvExpiry is the absolute CLTV expiry baked into RedeemScript,
	// equal to TimeoutHeight.
	CltvExpiry int32

	// PaymentHash is the hash the counterparty will reveal the preimage
	// to when it claims our HTLC. We never learn the preimage itself
	// directly; settlement of the corresponding off-chain payment is how
	// we find out it exists.
	PaymentHash    PaymentHash
	RedeemScript   []byte
	ExpectedAmount int64
	TimeoutHeight  BlockHeight
	HtlcConfTarget int32

	// LockupTxHex is set once we have broadcast our own HTLC funding
	// transaction.
	LockupTxHex string

	// RefundTransactionId is set once the refund transaction has been
	// broadcast.
	RefundTransactionId string
}

// WithLockupTx returns a copy of l with LockupTxHex set.
func (l LoopIn) WithLockupTx(hex string) LoopIn {
	l.LockupTxHex = hex
	return l
}

// WithRefundTx returns a copy of l with RefundTransactionId set.
func (l LoopIn) WithRefundTx(txid string) LoopIn {
	l.RefundTransactionId = txid
	return l
}

// OutcomeKind tags the variant of a terminal Outcome.
type OutcomeKind uint8

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRefunded
	OutcomeErrored
	OutcomeTimeout
)

// Outcome is the user-visible terminal result of a swap.
type Outcome struct {
	Kind OutcomeKind

	// Txid is set for OutcomeRefunded.
	Txid string

	// Message is set for OutcomeErrored and OutcomeTimeout.
	Message string
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "Success"
	case OutcomeRefunded:
		return fmt.Sprintf("Refunded(%s)", o.Txid)
	case OutcomeErrored:
		return fmt.Sprintf("Errored(%s)", o.Message)
	case OutcomeTimeout:
		return fmt.Sprintf("Timeout(%s)", o.Message)
	default:
		return "Unknown"
	}
}

// Kind tags the variant of a State value.
type Kind uint8

const (
	// KindHasNotStarted is the zero state: no event has been applied
	// yet.
	KindHasNotStarted Kind = iota
	KindOut
	KindIn
	KindFinished
)

// State is the tagged union produced by folding a swap's event stream.
// Exactly one of the embedded values is meaningful, selected by Kind.
type State struct {
	Kind Kind

	BlockHeight BlockHeight
	LoopOut     LoopOut
	LoopIn      LoopIn
	Outcome     Outcome
}

// Zero is the initial state of every swap, before any event has been
// applied.
var Zero = State{Kind: KindHasNotStarted}

// IsTerminal reports whether no further events may legally follow.
func (s State) IsTerminal() bool {
	return s.Kind == KindFinished
}
