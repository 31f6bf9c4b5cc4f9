package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/input"

	"github.com/nloop/nloop/command"
	"github.com/nloop/nloop/swapstate"
)

// fakeBroadcaster records every transaction handed to it instead of
// publishing it anywhere, so a test can assert on what the executor decided
// to broadcast.
type fakeBroadcaster struct {
	txs    []*wire.MsgTx
	labels []string
	err    error
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, tx *wire.MsgTx,
	label string) error {

	if f.err != nil {
		return f.err
	}

	f.txs = append(f.txs, tx)
	f.labels = append(f.labels, label)
	return nil
}

// fakeFeeEstimator always answers with a fixed rate, independent of the
// requested confirmation target.
type fakeFeeEstimator struct {
	rate swapstate.FeeRate
	err  error
}

func (f *fakeFeeEstimator) EstimateFeeRate(ctx context.Context,
	confTarget int32) (swapstate.FeeRate, error) {

	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}

// fakeUTXOProvider hands out a fixed coin set and finalizes every PSBT input
// with a throwaway witness, the way a real wallet's combined sign call
// would return an already-finalized packet.
type fakeUTXOProvider struct {
	utxos []command.Utxo

	selectErr error
	signErr   error

	released [][]command.Utxo
}

func (f *fakeUTXOProvider) SelectUTXOs(ctx context.Context,
	amount btcutil.Amount, feeRate swapstate.FeeRate) ([]command.Utxo, error) {

	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.utxos, nil
}

func (f *fakeUTXOProvider) SignPSBT(ctx context.Context,
	packet *psbt.Packet) (*psbt.Packet, error) {

	if f.signErr != nil {
		return nil, f.signErr
	}

	for i := range packet.Inputs {
		var buf bytes.Buffer
		witness := wire.TxWitness{{1, 2, 3}}
		if err := psbt.WriteTxWitness(&buf, witness); err != nil {
			return nil, err
		}
		packet.Inputs[i].SighashType = txscript.SigHashAll
		packet.Inputs[i].FinalScriptWitness = buf.Bytes()
	}

	return packet, nil
}

func (f *fakeUTXOProvider) ReleaseUTXOs(ctx context.Context, utxos []command.Utxo) {
	f.released = append(f.released, utxos)
}

// fakeAddressSource hands out fixed change/refund addresses.
type fakeAddressSource struct {
	changeAddr btcutil.Address
	refundAddr btcutil.Address

	changeErr error
	refundErr error
}

func (f *fakeAddressSource) GetChangeAddress(ctx context.Context) (btcutil.Address, error) {
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	return f.changeAddr, nil
}

func (f *fakeAddressSource) GetRefundAddress(ctx context.Context) (btcutil.Address, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return f.refundAddr, nil
}

// fakeSigner signs htlc sign descriptors against a fixed set of private
// keys. Only the segwit v0 path is needed by engine's test fixtures, since
// every covered command here rebuilds a V2 (P2WSH) htlc.
type fakeSigner struct {
	keys map[[33]byte]*btcec.PrivateKey
}

func newFakeSigner(privKeys ...*btcec.PrivateKey) *fakeSigner {
	keys := make(map[[33]byte]*btcec.PrivateKey)
	for _, k := range privKeys {
		var pub [33]byte
		copy(pub[:], k.PubKey().SerializeCompressed())
		keys[pub] = k
	}
	return &fakeSigner{keys: keys}
}

func (s *fakeSigner) SignOutputRaw(ctx context.Context, tx *wire.MsgTx,
	signDescriptors []*input.SignDescriptor) ([][]byte, error) {

	sigs := make([][]byte, len(signDescriptors))
	for i, sd := range signDescriptors {
		var pub [33]byte
		copy(pub[:], sd.KeyDesc.PubKey.SerializeCompressed())

		priv, ok := s.keys[pub]
		if !ok {
			return nil, fmt.Errorf("fakeSigner: no key for %x", pub)
		}

		prevOutFetcher := txscript.NewCannedPrevOutputFetcher(
			sd.Output.PkScript, sd.Output.Value,
		)
		sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)

		sig, err := txscript.RawTxInWitnessSignature(
			tx, sigHashes, sd.InputIndex, sd.Output.Value,
			sd.WitnessScript, sd.HashType, priv,
		)
		if err != nil {
			return nil, err
		}

		// RawTxInWitnessSignature appends the sighash type byte; the
		// htlc scripts' Gen*Witness methods append their own, so
		// strip it here to avoid doubling up.
		sigs[i] = sig[:len(sig)-1]
	}

	return sigs, nil
}
