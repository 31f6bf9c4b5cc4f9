// Package engine implements the per-swap state machine itself: the pure
// command executor (Exec), the pure event fold (Apply/Fold), and the
// aggregate handler that orchestrates load-fold-exec-append against an
// event store with optimistic concurrency (Handler). Everything else in
// this tree — swap, swapstate, event, sweep, command — is a building
// block Exec and Apply are assembled from.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/zpay32"

	"github.com/nloop/nloop/command"
	"github.com/nloop/nloop/event"
	"github.com/nloop/nloop/labels"
	"github.com/nloop/nloop/swap"
	"github.com/nloop/nloop/swapstate"
	"github.com/nloop/nloop/sweep"
)

// chainParamsBTC is used to decode the off-chain invoices every swap
// carries, independent of the swap's on-chain asset: invoices in this
// build are always Lightning-BTC denominated even for an LTC base asset
// pair, matching how Loop itself prices everything off-chain in BTC.
var chainParamsBTC = chaincfg.MainNetParams

// Exec is the command executor: a pure-ish function of the current state
// and a command that may call out to deps and returns the events to
// append, or an error if the command is refused. It never mutates state
// itself — Apply does that, from the events this returns.
func Exec(ctx context.Context, state swapstate.State, cmd command.Command,
	deps command.Deps, meta command.Meta) ([]event.Event, error) {

	if state.IsTerminal() {
		return nil, nil
	}

	switch c := cmd.(type) {
	case command.NewLoopOut:
		if state.Kind != swapstate.KindHasNotStarted {
			return nil, command.NewUnexpectedError(fmt.Errorf(
				"NewLoopOut illegal in state %v", state.Kind))
		}
		return execNewLoopOut(ctx, c, deps, meta)

	case command.NewLoopIn:
		if state.Kind != swapstate.KindHasNotStarted {
			return nil, command.NewUnexpectedError(fmt.Errorf(
				"NewLoopIn illegal in state %v", state.Kind))
		}
		return execNewLoopIn(c, meta)

	case command.SwapUpdate:
		switch state.Kind {
		case swapstate.KindOut:
			return execSwapUpdateOut(ctx, state, c, deps, meta)
		case swapstate.KindIn:
			return execSwapUpdateIn(ctx, state, c, deps)
		default:
			return nil, command.NewUnexpectedError(fmt.Errorf(
				"SwapUpdate illegal in state %v", state.Kind))
		}

	case command.OffChainOfferResolve:
		if state.Kind != swapstate.KindOut {
			return nil, command.NewUnexpectedError(fmt.Errorf(
				"OffChainOfferResolve illegal in state %v", state.Kind))
		}
		return execOffChainOfferResolve(state, c)

	case command.SetValidationError:
		switch state.Kind {
		case swapstate.KindOut:
			return []event.Event{event.FinishedByError{
				Id: state.LoopOut.Id, Message: c.Message,
			}}, nil
		case swapstate.KindIn:
			return []event.Event{event.FinishedByError{
				Id: state.LoopIn.Id, Message: c.Message,
			}}, nil
		default:
			return nil, command.NewUnexpectedError(fmt.Errorf(
				"SetValidationError illegal in state %v", state.Kind))
		}

	case command.NewBlock:
		switch state.Kind {
		case swapstate.KindOut:
			return execNewBlockOut(ctx, state, c, deps, meta)
		case swapstate.KindIn:
			return execNewBlockIn(ctx, state, c, deps)
		default:
			// A block tick before any swap has started is routine
			// (chain following starts before a swap is requested),
			// not an error.
			return nil, nil
		}

	default:
		return nil, command.NewUnexpectedError(fmt.Errorf(
			"unknown command type %T", cmd))
	}
}

func execNewLoopOut(ctx context.Context, c command.NewLoopOut,
	deps command.Deps, meta command.Meta) ([]event.Event, error) {

	l := c.LoopOut

	if l.OnChainAmount <= 0 {
		return nil, command.NewInputError("on-chain amount must be positive")
	}
	if len(l.RedeemScript) == 0 {
		return nil, command.NewInputError("missing redeem script")
	}
	if l.ClaimAddress == "" {
		return nil, command.NewInputError("missing claim address")
	}
	if l.TimeoutHeight <= c.Height {
		return nil, command.NewInputError(
			"timeout height must be after creation height")
	}
	if err := validateRedeemScriptOut(l); err != nil {
		return nil, command.NewInputError(fmt.Sprintf(
			"redeem script validation failed: %v", err))
	}
	if err := validateAgainstConfiguredMaxima(
		l.MaxSwapFee, l.MaxMinerFee, l.TimeoutHeight, c.Height, meta,
	); err != nil {
		return nil, err
	}

	invoice, err := zpay32.Decode(l.Invoice, &chainParamsBTC)
	if err != nil {
		return nil, command.NewInputError(fmt.Sprintf("invalid invoice: %v", err))
	}
	if invoice.PaymentHash == nil ||
		swapstate.PaymentHash(*invoice.PaymentHash) != l.Preimage.Hash() {

		return nil, command.NewInputError(
			"invoice payment hash does not match preimage")
	}

	if l.PrepayInvoice != "" {
		err := deps.InvoicePayer.PayInvoice(
			ctx, l.PrepayInvoice, command.PayInvoiceParams{
				MaxFee:         c.MaxPrepayFee,
				OutgoingChanId: c.OutgoingChanId,
			},
		)
		if err != nil {
			return nil, command.NewUnexpectedError(
				fmt.Errorf("dispatch prepay: %w", err))
		}
	}

	return []event.Event{
		event.NewLoopOutAdded{Height: c.Height, LoopOut: l},
		event.OffChainOfferStarted{
			SwapId:  l.Id,
			Pair:    l.Pair,
			Invoice: l.Invoice,
			PayParams: event.PayParams{
				MaxFee:         c.MaxPrepayFee,
				OutgoingChanId: c.OutgoingChanId,
			},
		},
	}, nil
}

func execNewLoopIn(c command.NewLoopIn, meta command.Meta) ([]event.Event, error) {
	l := c.LoopIn

	if l.ExpectedAmount <= 0 {
		return nil, command.NewInputError("expected amount must be positive")
	}
	if len(l.RedeemScript) == 0 {
		return nil, command.NewInputError("missing redeem script")
	}
	if l.TimeoutHeight <= c.Height {
		return nil, command.NewInputError(
			"timeout height must be after creation height")
	}
	if err := validateRedeemScriptIn(l); err != nil {
		return nil, command.NewInputError(fmt.Sprintf(
			"redeem script validation failed: %v", err))
	}
	if err := validateAgainstConfiguredMaxima(
		0, 0, l.TimeoutHeight, c.Height, meta,
	); err != nil {
		return nil, err
	}

	return []event.Event{
		event.NewLoopInAdded{Height: c.Height, LoopIn: l},
	}, nil
}

// validateAgainstConfiguredMaxima checks a new swap's requested fee maxima
// and the CLTV delta implied by its timeout height against the dispatcher's
// configured ceilings in meta. A zero ceiling means the dispatcher did not
// configure one and that check is skipped; LoopIn has no per-swap fee
// maxima of its own, so its call passes zero for both and only the CLTV
// delta is checked.
func validateAgainstConfiguredMaxima(swapFee, minerFee int64,
	timeoutHeight, height swapstate.BlockHeight,
	meta command.Meta) error {

	if meta.MaxSwapFee > 0 && swapFee > meta.MaxSwapFee {
		return command.NewInputError(
			"requested max swap fee exceeds configured maximum")
	}
	if meta.MaxMinerFee > 0 && minerFee > meta.MaxMinerFee {
		return command.NewInputError(
			"requested max miner fee exceeds configured maximum")
	}
	if meta.MaxCltvDelta > 0 {
		delta := int32(timeoutHeight - height)
		if delta > meta.MaxCltvDelta {
			return command.NewInputError(
				"timeout height implies a cltv delta beyond the " +
					"configured maximum")
		}
	}

	return nil
}

func execOffChainOfferResolve(state swapstate.State,
	c command.OffChainOfferResolve) ([]event.Event, error) {

	l := state.LoopOut
	if c.Preimage.Hash() != l.Preimage.Hash() {
		return nil, command.NewInputError(
			"resolved preimage does not match the swap's preimage")
	}

	return []event.Event{
		event.OffChainOfferResolved{Preimage: c.Preimage},
		event.FinishedSuccessfully{Id: l.Id},
	}, nil
}

func execSwapUpdateOut(ctx context.Context, state swapstate.State,
	c command.SwapUpdate, deps command.Deps,
	meta command.Meta) ([]event.Event, error) {

	l := state.LoopOut

	if c.Status == l.Status {
		return nil, nil
	}

	switch c.Status {
	case swapstate.StatusTxMempool:
		if !l.AcceptZeroConf {
			return nil, nil
		}
		return sweepOrBumpOut(ctx, state.BlockHeight, l, c, deps, meta)

	case swapstate.StatusTxConfirmed:
		return sweepOrBumpOut(ctx, state.BlockHeight, l, c, deps, meta)

	case swapstate.StatusSwapExpired:
		reason := c.Reason
		if reason == "" {
			reason = "swap expired"
		}
		return []event.Event{event.FinishedByTimeout{Reason: reason}}, nil

	default:
		return nil, nil
	}
}

// sweepOrBumpOut records the observed lockup transaction and, if the fee
// cap policy allows it this tick, builds and broadcasts a claim tx.
func sweepOrBumpOut(ctx context.Context, height swapstate.BlockHeight,
	l swapstate.LoopOut, c command.SwapUpdate, deps command.Deps,
	meta command.Meta) ([]event.Event, error) {

	if c.Transaction == nil || c.Transaction.Tx == nil {
		return nil, command.NewInputError(
			"swap update requires the lockup transaction")
	}

	txHex, err := encodeTxHex(c.Transaction.Tx)
	if err != nil {
		return nil, command.NewTransactionError(err.Error())
	}

	plog := swap.PrefixLog{Logger: log, Hash: l.Preimage.Hash()}
	plog.Infof("recorded lockup tx %v for loop out %v", c.Transaction.Tx.TxHash(), l.Id)

	events := []event.Event{event.SwapTxPublished{TxHex: txHex}}

	claimEvent, err := attemptClaim(
		ctx, height, l, c.Transaction.Tx, deps, meta,
	)
	if err != nil {
		return nil, err
	}
	if claimEvent != nil {
		events = append(events, *claimEvent)
	}

	return events, nil
}

// attemptClaim applies the sweep confirmation target and fee-cap policies
// (sweep.EffectiveSweepConfTarget, sweep.DecideClaimFee) and, if they
// authorize a broadcast this tick, builds, signs and broadcasts the claim
// transaction spending lockupTx. It returns a nil event without error when
// the policy says to hold off this tick.
func attemptClaim(ctx context.Context, height swapstate.BlockHeight,
	l swapstate.LoopOut, lockupTx *wire.MsgTx, deps command.Deps,
	meta command.Meta) (*event.ClaimTxPublished, error) {

	remaining := int32(l.TimeoutHeight) - int32(height)

	// A first-time preimage reveal this close to timeout risks the
	// counterparty racing a refund against our claim; once a claim has
	// already been published the preimage is already public, so a fee
	// bump carries no additional risk. execNewBlockOut pre-empts this
	// case by finishing the swap on timeout before ever reaching here,
	// but sweepOrBumpOut (driven by SwapUpdate, not NewBlock) has no
	// equivalent guard of its own, so the check belongs here where every
	// claim-publishing path goes through it.
	if remaining <= sweep.MinPreimageRevealDelta && l.ClaimTransactionId == "" {
		return nil, &command.CanNotSafelyRevealPreimage{}
	}

	confTarget := sweep.EffectiveSweepConfTarget(remaining, l.SweepConfTarget)

	rate, err := deps.FeeEstimator.EstimateFeeRate(ctx, confTarget)
	if err != nil {
		return nil, command.NewUnexpectedError(
			fmt.Errorf("estimate fee rate: %w", err))
	}

	htlc, err := htlcForLoopOut(l)
	if err != nil {
		return nil, command.NewTransactionError(err.Error())
	}

	destAddr, err := decodeAddress(l.ClaimAddress, htlc.ChainParams)
	if err != nil {
		return nil, command.NewTransactionError(err.Error())
	}

	vsize, err := sweep.EstimateClaimVsize(htlc, destAddr)
	if err != nil {
		return nil, command.NewTransactionError(err.Error())
	}

	maxMinerFee := btcutil.Amount(l.MaxMinerFee)
	decision := sweep.DecideClaimFee(
		maxMinerFee, rate, vsize, l.ClaimTransactionId != "",
	)
	if !decision.Publish {
		return nil, nil
	}

	claimTx, err := swap.CreateClaimTx(
		ctx, deps.Signer, l.ClaimKey, htlc, l.RedeemScript,
		l.Preimage, lockupTx, int64(decision.Rate), destAddr,
	)
	if err != nil {
		return nil, translateTxError(err)
	}

	if err := deps.Broadcaster.Broadcast(
		ctx, claimTx, labels.LoopOutSweepSuccess(string(l.Id)),
	); err != nil {
		return nil, command.NewUnexpectedError(
			fmt.Errorf("broadcast claim tx: %w", err))
	}

	txid := claimTx.TxHash().String()

	plog := swap.PrefixLog{Logger: log, Hash: l.Preimage.Hash()}
	plog.Infof("published claim tx %v for loop out %v", txid, l.Id)

	return &event.ClaimTxPublished{Txid: txid}, nil
}

func execSwapUpdateIn(ctx context.Context, state swapstate.State,
	c command.SwapUpdate, deps command.Deps) ([]event.Event, error) {

	l := state.LoopIn

	if c.Status == l.Status {
		return nil, nil
	}

	switch c.Status {
	case swapstate.StatusInvoiceSet:
		return fundLoopIn(ctx, l, deps)

	case swapstate.StatusTxClaimed:
		return []event.Event{event.FinishedSuccessfully{Id: l.Id}}, nil

	case swapstate.StatusTxConfirmed,
		swapstate.StatusInvoicePayed,
		swapstate.StatusInvoiceFailedToPay,
		swapstate.StatusSwapExpired:
		return nil, nil

	default:
		return nil, nil
	}
}

// fundLoopIn selects coins, builds and signs the HTLC-funding PSBT, and
// broadcasts it. Any UTXOs selected along the way are released on every
// failure path so they are not held indefinitely.
func fundLoopIn(ctx context.Context, l swapstate.LoopIn,
	deps command.Deps) ([]event.Event, error) {

	amount := btcutil.Amount(l.ExpectedAmount)

	rate, err := deps.FeeEstimator.EstimateFeeRate(ctx, l.HtlcConfTarget)
	if err != nil {
		return nil, command.NewUnexpectedError(
			fmt.Errorf("estimate fee rate: %w", err))
	}

	utxos, err := deps.UTXOProvider.SelectUTXOs(ctx, amount, rate)
	if err != nil {
		return nil, &command.UTXOProviderError{Cause: err}
	}

	changeAddr, err := deps.AddressSource.GetChangeAddress(ctx)
	if err != nil {
		deps.UTXOProvider.ReleaseUTXOs(ctx, utxos)
		return nil, &command.FailedToGetAddress{Cause: err}
	}

	packet, err := swap.CreateSwapPSBT(
		utxos, l.RedeemScript, amount, int64(rate), changeAddr,
	)
	if err != nil {
		deps.UTXOProvider.ReleaseUTXOs(ctx, utxos)
		return nil, translateTxError(err)
	}

	signedPacket, err := deps.UTXOProvider.SignPSBT(ctx, packet)
	if err != nil {
		deps.UTXOProvider.ReleaseUTXOs(ctx, utxos)
		return nil, command.NewUnexpectedError(
			fmt.Errorf("sign swap psbt: %w", err))
	}

	if err := psbt.MaybeFinalizeAll(signedPacket); err != nil {
		deps.UTXOProvider.ReleaseUTXOs(ctx, utxos)
		return nil, command.NewUnexpectedError(
			fmt.Errorf("finalize swap psbt: %w", err))
	}

	fundingTx, err := psbt.Extract(signedPacket)
	if err != nil {
		deps.UTXOProvider.ReleaseUTXOs(ctx, utxos)
		return nil, command.NewUnexpectedError(
			fmt.Errorf("extract swap tx: %w", err))
	}

	if err := deps.Broadcaster.Broadcast(
		ctx, fundingTx, labels.LoopInHtlcLabel(string(l.Id)),
	); err != nil {
		return nil, command.NewUnexpectedError(
			fmt.Errorf("broadcast swap tx: %w", err))
	}

	txHex, err := encodeTxHex(fundingTx)
	if err != nil {
		return nil, command.NewTransactionError(err.Error())
	}

	plog := swap.PrefixLog{Logger: log, Hash: l.PaymentHash}
	plog.Infof("broadcast htlc funding tx %v for loop in %v",
		fundingTx.TxHash(), l.Id)

	return []event.Event{event.SwapTxPublished{TxHex: txHex}}, nil
}

func execNewBlockOut(ctx context.Context, state swapstate.State,
	c command.NewBlock, deps command.Deps,
	meta command.Meta) ([]event.Event, error) {

	l := state.LoopOut
	if c.Chain != l.Pair.BaseAsset {
		return nil, nil
	}

	var events []event.Event
	if c.Height > state.BlockHeight {
		events = append(events, event.NewTipReceived{Height: c.Height})
	}

	remaining := int32(l.TimeoutHeight) - int32(c.Height)
	if remaining <= sweep.MinPreimageRevealDelta && l.ClaimTransactionId == "" {
		return append(events, event.FinishedByTimeout{
			Reason: "cannot safely reveal preimage",
		}), nil
	}

	if l.LockupTxHex == "" {
		return events, nil
	}

	lockupTx, err := decodeTxHex(l.LockupTxHex)
	if err != nil {
		return nil, command.NewTransactionError(err.Error())
	}

	claimEvent, err := attemptClaim(ctx, c.Height, l, lockupTx, deps, meta)
	if err != nil {
		return nil, err
	}
	if claimEvent != nil {
		events = append(events, *claimEvent)
	}

	return events, nil
}

func execNewBlockIn(ctx context.Context, state swapstate.State,
	c command.NewBlock, deps command.Deps) ([]event.Event, error) {

	l := state.LoopIn
	if c.Chain != l.Pair.QuoteAsset {
		return nil, nil
	}

	var events []event.Event
	if c.Height > state.BlockHeight {
		events = append(events, event.NewTipReceived{Height: c.Height})
	}

	if c.Height < l.TimeoutHeight || l.LockupTxHex == "" {
		return events, nil
	}

	lockupTx, err := decodeTxHex(l.LockupTxHex)
	if err != nil {
		return nil, command.NewTransactionError(err.Error())
	}

	htlc, err := htlcForLoopIn(l, l.PaymentHash)
	if err != nil {
		return nil, command.NewTransactionError(err.Error())
	}

	refundAddr, err := deps.AddressSource.GetRefundAddress(ctx)
	if err != nil {
		return nil, &command.FailedToGetAddress{Cause: err}
	}

	rate, err := deps.FeeEstimator.EstimateFeeRate(ctx, sweep.DefaultSweepConfTarget)
	if err != nil {
		return nil, command.NewUnexpectedError(
			fmt.Errorf("estimate fee rate: %w", err))
	}

	refundTx, err := swap.CreateRefundTx(
		ctx, deps.Signer, l.RefundKey, htlc, l.RedeemScript, lockupTx,
		int64(rate), refundAddr, uint32(l.TimeoutHeight),
	)
	if err != nil {
		return nil, translateTxError(err)
	}

	if err := deps.Broadcaster.Broadcast(
		ctx, refundTx, labels.LoopInSweepTimeout(string(l.Id)),
	); err != nil {
		return nil, command.NewUnexpectedError(
			fmt.Errorf("broadcast refund tx: %w", err))
	}

	txid := refundTx.TxHash().String()

	plog := swap.PrefixLog{Logger: log, Hash: l.PaymentHash}
	plog.Infof("published refund tx %v for loop in %v", txid, l.Id)

	events = append(events,
		event.RefundTxPublished{Txid: txid},
		event.FinishedByRefund{Id: l.Id},
	)

	return events, nil
}

// translateTxError maps a construction-time error from the swap package
// onto the command package's error kinds: a redeem-script mismatch
// surfaces as the structured command.RedeemScriptMismatch, anything else
// as a generic command.TransactionError.
func translateTxError(err error) error {
	var mismatch *swap.RedeemScriptMismatchError
	if errors.As(err, &mismatch) {
		return &command.RedeemScriptMismatch{
			ActualPkScripts: mismatch.ActualPkScripts,
			ExpectedRedeem:  mismatch.ExpectedRedeem,
		}
	}

	return command.NewTransactionError(err.Error())
}

func encodeTxHex(tx *wire.MsgTx) (string, error) {
	raw, err := swap.EncodeTx(tx)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func decodeTxHex(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	return swap.DecodeTx(raw)
}

func decodeAddress(addr string, params *chaincfg.Params) (btcutil.Address, error) {
	address, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	return address, nil
}
