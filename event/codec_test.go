package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nloop/nloop/swapstate"
)

// roundTrip encodes e, decodes the result, and asserts it equals e. It
// mirrors the round-trip checks in loopdb's codec_test.go.
func roundTrip(t *testing.T, e Event) {
	t.Helper()

	raw, err := Encode(e)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)

	require.Equal(t, e, got)
}

func TestCodecRoundTrip(t *testing.T) {
	preimage := swapstate.PaymentPreimage{1, 2, 3}

	roundTrip(t, NewLoopOutAdded{
		Height: 100,
		LoopOut: swapstate.LoopOut{
			Id:            "swap-1",
			Pair:          swapstate.PairId{BaseAsset: swapstate.AssetBTC, QuoteAsset: swapstate.AssetBTC},
			OnChainAmount: 50_000,
		},
	})
	roundTrip(t, ClaimTxPublished{Txid: "deadbeef"})
	roundTrip(t, OffChainOfferStarted{
		SwapId:  "swap-1",
		Pair:    swapstate.PairId{BaseAsset: swapstate.AssetBTC, QuoteAsset: swapstate.AssetBTC},
		Invoice: "lnbc1...",
		PayParams: PayParams{
			MaxFee:         1_000,
			OutgoingChanId: 42,
		},
	})
	roundTrip(t, OffChainOfferResolved{Preimage: preimage})
	roundTrip(t, NewLoopInAdded{Height: 100, LoopIn: swapstate.LoopIn{Id: "swap-2"}})
	roundTrip(t, SwapTxPublished{TxHex: "0100000000"})
	roundTrip(t, RefundTxPublished{Txid: "cafebabe"})
	roundTrip(t, NewTipReceived{Height: 131})
	roundTrip(t, FinishedSuccessfully{Id: "swap-1"})
	roundTrip(t, FinishedByRefund{Id: "swap-2"})
	roundTrip(t, FinishedByError{Id: "swap-1", Message: "lockup mismatch"})
	roundTrip(t, FinishedByTimeout{Reason: "cannot safely reveal preimage"})
}

func TestCodecUnknownTagRoundTrip(t *testing.T) {
	unknown := UnknownTag{RawTag: Tag(9999), RawBody: []byte(`{"future":true}`)}

	roundTrip(t, unknown)
}

func TestCodecTagFraming(t *testing.T) {
	raw, err := Encode(NewTipReceived{Height: 7})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(raw), 2)
	require.Equal(t, byte(TagNewTipReceived>>8), raw[0])
	require.Equal(t, byte(TagNewTipReceived), raw[1])
}

func TestCodecDecodeShortInput(t *testing.T) {
	_, err := Decode([]byte{0x00})
	require.Error(t, err)
}
