package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/keychain"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"

	"github.com/nloop/nloop/command"
	"github.com/nloop/nloop/event"
	"github.com/nloop/nloop/swap"
	"github.com/nloop/nloop/swapstate"
)

// claimTestKey returns a deterministic, non-zero private key, the same way
// swap's own tests derive their fixture keys.
func claimTestKey(index byte) *btcec.PrivateKey {
	raw := make([]byte, 32)
	raw[31] = index + 1
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv
}

func TestSweepOrBumpOutPublishesClaimTx(t *testing.T) {
	senderPriv := claimTestKey(1)
	receiverPriv := claimTestKey(2)

	var senderKey, receiverKey [33]byte
	copy(senderKey[:], senderPriv.PubKey().SerializeCompressed())
	copy(receiverKey[:], receiverPriv.PubKey().SerializeCompressed())

	preimage := lntypes.Preimage([32]byte{1, 2, 3})
	hash := sha256.Sum256(preimage[:])

	htlc, err := swap.NewHtlc(
		swap.HtlcV2, 144, senderKey, receiverKey, nil, hash,
		swap.HtlcP2WSH, &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	const amount = btcutil.Amount(1_000_000)
	lockupTx := wire.NewMsgTx(2)
	lockupTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 3}, nil, nil))
	lockupTx.AddTxOut(&wire.TxOut{PkScript: htlc.PkScript, Value: int64(amount)})

	destAddr, err := btcutil.NewAddressWitnessScriptHash(
		make([]byte, 32), htlc.ChainParams,
	)
	require.NoError(t, err)

	l := swapstate.LoopOut{
		Id:            "loop-out-1",
		Pair:          swapstate.PairId{BaseAsset: swapstate.AssetBTC, QuoteAsset: swapstate.AssetBTC},
		Status:        swapstate.StatusInitiated,
		ScriptVersion: swap.HtlcV2,
		ClaimKey:      keychain.KeyDescriptor{PubKey: receiverPriv.PubKey()},
		HtlcKeys:      swapstate.HtlcKeys{CounterpartyScriptKey: senderKey},
		CltvExpiry:    144,
		Preimage:      preimage,
		RedeemScript:  htlc.SuccessScript(),
		ClaimAddress:  destAddr.EncodeAddress(),
		OnChainAmount: int64(amount),
		TimeoutHeight: 200,
		SweepConfTarget: 6,
		MaxMinerFee:   50_000,
	}

	broadcaster := &fakeBroadcaster{}
	deps := command.Deps{
		FeeEstimator: &fakeFeeEstimator{rate: 10},
		Signer:       newFakeSigner(receiverPriv),
		Broadcaster:  broadcaster,
	}

	cmd := command.SwapUpdate{
		Status:      swapstate.StatusTxConfirmed,
		Transaction: &command.Transaction{Tx: lockupTx},
	}

	events, err := sweepOrBumpOut(
		context.Background(), swapstate.BlockHeight(100), l, cmd, deps,
		command.Meta{},
	)
	require.NoError(t, err)
	require.Len(t, events, 2)

	swapTxEvent, ok := events[0].(event.SwapTxPublished)
	require.True(t, ok)
	require.NotEmpty(t, swapTxEvent.TxHex)

	claimEvent, ok := events[1].(event.ClaimTxPublished)
	require.True(t, ok)
	require.NotEmpty(t, claimEvent.Txid)

	require.Len(t, broadcaster.txs, 1)
	require.Len(t, broadcaster.labels, 1)
	require.Equal(t, claimEvent.Txid, broadcaster.txs[0].TxHash().String())
}

func TestSweepOrBumpOutHoldsOffWhenFeeExceedsCap(t *testing.T) {
	senderPriv := claimTestKey(3)
	receiverPriv := claimTestKey(4)

	var senderKey, receiverKey [33]byte
	copy(senderKey[:], senderPriv.PubKey().SerializeCompressed())
	copy(receiverKey[:], receiverPriv.PubKey().SerializeCompressed())

	preimage := lntypes.Preimage([32]byte{5, 6, 7})
	hash := sha256.Sum256(preimage[:])

	htlc, err := swap.NewHtlc(
		swap.HtlcV2, 144, senderKey, receiverKey, nil, hash,
		swap.HtlcP2WSH, &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	const amount = btcutil.Amount(1_000_000)
	lockupTx := wire.NewMsgTx(2)
	lockupTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 3}, nil, nil))
	lockupTx.AddTxOut(&wire.TxOut{PkScript: htlc.PkScript, Value: int64(amount)})

	destAddr, err := btcutil.NewAddressWitnessScriptHash(
		make([]byte, 32), htlc.ChainParams,
	)
	require.NoError(t, err)

	l := swapstate.LoopOut{
		Id:            "loop-out-2",
		Pair:          swapstate.PairId{BaseAsset: swapstate.AssetBTC, QuoteAsset: swapstate.AssetBTC},
		ScriptVersion: swap.HtlcV2,
		ClaimKey:      keychain.KeyDescriptor{PubKey: receiverPriv.PubKey()},
		HtlcKeys:      swapstate.HtlcKeys{CounterpartyScriptKey: senderKey},
		CltvExpiry:    144,
		Preimage:      preimage,
		RedeemScript:  htlc.SuccessScript(),
		ClaimAddress:  destAddr.EncodeAddress(),
		OnChainAmount: int64(amount),
		TimeoutHeight: 200,
		SweepConfTarget: 6,
		// A maximum miner fee far too low for any feasible fee rate,
		// and no claim tx has gone out yet, so the policy must hold
		// off rather than overpay.
		MaxMinerFee: 1,
	}

	deps := command.Deps{
		FeeEstimator: &fakeFeeEstimator{rate: 10},
		Signer:       newFakeSigner(receiverPriv),
		Broadcaster:  &fakeBroadcaster{},
	}

	cmd := command.SwapUpdate{
		Status:      swapstate.StatusTxConfirmed,
		Transaction: &command.Transaction{Tx: lockupTx},
	}

	events, err := sweepOrBumpOut(
		context.Background(), swapstate.BlockHeight(100), l, cmd, deps,
		command.Meta{},
	)
	require.NoError(t, err)
	require.Len(t, events, 1)
	_, ok := events[0].(event.SwapTxPublished)
	require.True(t, ok)
}

func TestFundLoopInBroadcastsFundingTx(t *testing.T) {
	changeAddr, err := btcutil.NewAddressWitnessScriptHash(
		make([]byte, 32), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	l := swapstate.LoopIn{
		Id:             "loop-in-1",
		RedeemScript:   []byte{1, 2, 3, 4},
		ExpectedAmount: 500_000,
		TimeoutHeight:  300,
		HtlcConfTarget: 6,
	}

	broadcaster := &fakeBroadcaster{}
	utxoProvider := &fakeUTXOProvider{
		utxos: []command.Utxo{
			{OutPoint: wire.OutPoint{Index: 0}, Value: 1_000_000},
		},
	}
	deps := command.Deps{
		FeeEstimator:  &fakeFeeEstimator{rate: 10},
		UTXOProvider:  utxoProvider,
		AddressSource: &fakeAddressSource{changeAddr: changeAddr},
		Broadcaster:   broadcaster,
	}

	events, err := fundLoopIn(context.Background(), l, deps)
	require.NoError(t, err)
	require.Len(t, events, 1)

	txEvent, ok := events[0].(event.SwapTxPublished)
	require.True(t, ok)
	require.NotEmpty(t, txEvent.TxHex)

	require.Len(t, broadcaster.txs, 1)
	require.Empty(t, utxoProvider.released)
}

func TestFundLoopInReleasesUtxosWhenChangeAddressFails(t *testing.T) {
	l := swapstate.LoopIn{
		Id:             "loop-in-2",
		RedeemScript:   []byte{1, 2, 3, 4},
		ExpectedAmount: 500_000,
		TimeoutHeight:  300,
		HtlcConfTarget: 6,
	}

	utxoProvider := &fakeUTXOProvider{
		utxos: []command.Utxo{
			{OutPoint: wire.OutPoint{Index: 0}, Value: 1_000_000},
		},
	}
	deps := command.Deps{
		FeeEstimator:  &fakeFeeEstimator{rate: 10},
		UTXOProvider:  utxoProvider,
		AddressSource: &fakeAddressSource{changeErr: errors.New("wallet unavailable")},
		Broadcaster:   &fakeBroadcaster{},
	}

	_, err := fundLoopIn(context.Background(), l, deps)
	require.Error(t, err)

	var addrErr *command.FailedToGetAddress
	require.ErrorAs(t, err, &addrErr)
	require.Len(t, utxoProvider.released, 1)
	require.Equal(t, utxoProvider.utxos, utxoProvider.released[0])
}

func TestExecNewBlockInBuildsAndBroadcastsRefundTx(t *testing.T) {
	refundPriv := claimTestKey(5)
	counterpartyPriv := claimTestKey(6)

	var refundKey, counterpartyKey [33]byte
	copy(refundKey[:], refundPriv.PubKey().SerializeCompressed())
	copy(counterpartyKey[:], counterpartyPriv.PubKey().SerializeCompressed())

	preimage := lntypes.Preimage([32]byte{8, 8, 8})
	hash := sha256.Sum256(preimage[:])

	htlc, err := swap.NewHtlc(
		swap.HtlcV2, 300, refundKey, counterpartyKey, nil, hash,
		swap.HtlcP2WSH, &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	const amount = btcutil.Amount(1_000_000)
	lockupTx := wire.NewMsgTx(2)
	lockupTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 9}, nil, nil))
	lockupTx.AddTxOut(&wire.TxOut{PkScript: htlc.PkScript, Value: int64(amount)})

	rawTx, err := swap.EncodeTx(lockupTx)
	require.NoError(t, err)

	refundAddr, err := btcutil.NewAddressWitnessScriptHash(
		make([]byte, 32), htlc.ChainParams,
	)
	require.NoError(t, err)

	l := swapstate.LoopIn{
		Id:            "loop-in-3",
		Pair:          swapstate.PairId{BaseAsset: swapstate.AssetBTC, QuoteAsset: swapstate.AssetBTC},
		ScriptVersion: swap.HtlcV2,
		RefundKey:     keychain.KeyDescriptor{PubKey: refundPriv.PubKey()},
		HtlcKeys:      swapstate.HtlcKeys{CounterpartyScriptKey: counterpartyKey},
		CltvExpiry:    300,
		PaymentHash:   swapstate.PaymentHash(hash),
		RedeemScript:  htlc.TimeoutScript(),
		TimeoutHeight: 300,
		LockupTxHex:   hex.EncodeToString(rawTx),
	}

	state := swapstate.State{
		Kind:        swapstate.KindIn,
		BlockHeight: 300,
		LoopIn:      l,
	}

	broadcaster := &fakeBroadcaster{}
	deps := command.Deps{
		AddressSource: &fakeAddressSource{refundAddr: refundAddr},
		FeeEstimator:  &fakeFeeEstimator{rate: 10},
		Signer:        newFakeSigner(refundPriv),
		Broadcaster:   broadcaster,
	}

	events, err := execNewBlockIn(
		context.Background(), state,
		command.NewBlock{Height: 300, Chain: swapstate.AssetBTC}, deps,
	)
	require.NoError(t, err)
	require.Len(t, events, 2)

	refundEvent, ok := events[0].(event.RefundTxPublished)
	require.True(t, ok)
	require.NotEmpty(t, refundEvent.Txid)

	finished, ok := events[1].(event.FinishedByRefund)
	require.True(t, ok)
	require.Equal(t, l.Id, finished.Id)

	require.Len(t, broadcaster.txs, 1)
	require.Equal(t, refundEvent.Txid, broadcaster.txs[0].TxHash().String())
}
