package engine

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/nloop/nloop/swap"
	"github.com/nloop/nloop/swapstate"
)

// outputTypeForVersion maps a swap's script version to the HTLC output
// type it is always paired with in this build: V1/V2 are plain segwit v0
// P2WSH, V3 is the taproot variant added alongside MuSig2 support.
func outputTypeForVersion(version swap.ScriptVersion) (swap.HtlcOutputType, error) {
	switch version {
	case swap.HtlcV1, swap.HtlcV2:
		return swap.HtlcP2WSH, nil

	case swap.HtlcV3:
		return swap.HtlcP2TR, nil

	default:
		return 0, fmt.Errorf("unknown htlc script version %v", version)
	}
}

// htlcForLoopOut rebuilds the *swap.Htlc describing a loop-out's redeem
// script from the swap's recorded parameters: our own claim key comes from
// the key descriptor's public half, the counterparty's refund key from
// HtlcKeys.
func htlcForLoopOut(l swapstate.LoopOut) (*swap.Htlc, error) {
	if l.ClaimKey.PubKey == nil {
		return nil, fmt.Errorf("loop out %v: missing claim pubkey", l.Id)
	}

	outputType, err := outputTypeForVersion(l.ScriptVersion)
	if err != nil {
		return nil, err
	}

	chainParams, err := swap.ChainParamsFromNetwork(networkFor(l.Pair.BaseAsset))
	if err != nil {
		return nil, err
	}

	var receiverKey [33]byte
	copy(receiverKey[:], l.ClaimKey.PubKey.SerializeCompressed())

	senderKey := l.HtlcKeys.CounterpartyScriptKey

	var sharedKey *btcec.PublicKey
	if l.ScriptVersion == swap.HtlcV3 {
		sharedKey, err = btcec.ParsePubKey(l.HtlcKeys.CounterpartyInternalPubKey[:])
		if err != nil {
			return nil, fmt.Errorf("loop out %v: parse shared key: %w", l.Id, err)
		}
	}

	return swap.NewHtlc(
		l.ScriptVersion, l.CltvExpiry, senderKey, receiverKey, sharedKey,
		swapstate.PaymentHash(l.Preimage.Hash()), outputType, chainParams,
	)
}

// htlcForLoopIn rebuilds the *swap.Htlc describing a loop-in's redeem
// script. Here we are the sender (refund path), the counterparty the
// receiver (claim path).
func htlcForLoopIn(l swapstate.LoopIn, hash swapstate.PaymentHash) (*swap.Htlc, error) {
	if l.RefundKey.PubKey == nil {
		return nil, fmt.Errorf("loop in %v: missing refund pubkey", l.Id)
	}

	outputType, err := outputTypeForVersion(l.ScriptVersion)
	if err != nil {
		return nil, err
	}

	chainParams, err := swap.ChainParamsFromNetwork(networkFor(l.Pair.BaseAsset))
	if err != nil {
		return nil, err
	}

	var senderKey [33]byte
	copy(senderKey[:], l.RefundKey.PubKey.SerializeCompressed())

	receiverKey := l.HtlcKeys.CounterpartyScriptKey

	var sharedKey *btcec.PublicKey
	if l.ScriptVersion == swap.HtlcV3 {
		sharedKey, err = btcec.ParsePubKey(l.HtlcKeys.CounterpartyInternalPubKey[:])
		if err != nil {
			return nil, fmt.Errorf("loop in %v: parse shared key: %w", l.Id, err)
		}
	}

	return swap.NewHtlc(
		l.ScriptVersion, l.CltvExpiry, senderKey, receiverKey, sharedKey,
		hash, outputType, chainParams,
	)
}

// validateRedeemScriptOut rebuilds the redeem script implied by l's own
// recorded claim key, counterparty key, CLTV expiry, and payment hash, and
// checks l.RedeemScript against it. This is the check that stands between a
// counterparty-supplied RedeemScript and ever starting the swap against it.
func validateRedeemScriptOut(l swapstate.LoopOut) error {
	htlc, err := htlcForLoopOut(l)
	if err != nil {
		return err
	}

	return swap.ValidateRedeemScript(htlc, l.RedeemScript)
}

// validateRedeemScriptIn rebuilds the redeem script implied by l's own
// recorded refund key, counterparty key, CLTV expiry, and payment hash, and
// checks l.RedeemScript against it.
func validateRedeemScriptIn(l swapstate.LoopIn) error {
	htlc, err := htlcForLoopIn(l, l.PaymentHash)
	if err != nil {
		return err
	}

	return swap.ValidateRedeemScript(htlc, l.RedeemScript)
}

// networkFor maps a swap's base-chain asset to the mainnet chain-params
// name ChainParamsFromNetwork understands. The core always evaluates
// scripts against mainnet parameters for address-type dispatch purposes;
// the dispatcher is responsible for steering testnet/regtest swaps to a
// differently-configured deployment, not the per-swap state machine.
func networkFor(asset swapstate.Asset) string {
	switch asset {
	case swapstate.AssetLTC:
		return "ltc-mainnet"
	default:
		return "mainnet"
	}
}
