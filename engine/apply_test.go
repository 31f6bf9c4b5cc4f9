package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nloop/nloop/event"
	"github.com/nloop/nloop/swapstate"
)

func TestFoldLoopOutHappyPath(t *testing.T) {
	id := swapstate.SwapId("swap-1")
	preimage := swapstate.PaymentPreimage{1, 2, 3}

	events := []event.Event{
		event.NewLoopOutAdded{
			Height: 100,
			LoopOut: swapstate.LoopOut{
				Id:      id,
				Preimage: preimage,
			},
		},
		event.NewTipReceived{Height: 101},
		event.SwapTxPublished{TxHex: "aa"},
		event.ClaimTxPublished{Txid: "claimtxid"},
		event.OffChainOfferResolved{Preimage: preimage},
		event.FinishedSuccessfully{Id: id},
	}

	state := Fold(events)

	require.Equal(t, swapstate.KindFinished, state.Kind)
	require.Equal(t, swapstate.BlockHeight(101), state.BlockHeight)
	require.Equal(t, "aa", state.LoopOut.LockupTxHex)
	require.Equal(t, "claimtxid", state.LoopOut.ClaimTransactionId)
	require.Equal(t, preimage, state.LoopOut.Preimage)
	require.Equal(t, swapstate.OutcomeSuccess, state.Outcome.Kind)
	require.True(t, state.IsTerminal())
}

func TestFoldLoopInRefundPath(t *testing.T) {
	id := swapstate.SwapId("swap-2")

	events := []event.Event{
		event.NewLoopInAdded{
			Height: 10,
			LoopIn: swapstate.LoopIn{Id: id},
		},
		event.SwapTxPublished{TxHex: "bb"},
		event.NewTipReceived{Height: 500},
		event.RefundTxPublished{Txid: "refundtxid"},
		event.FinishedByRefund{Id: id},
	}

	state := Fold(events)

	require.Equal(t, swapstate.KindFinished, state.Kind)
	require.Equal(t, swapstate.OutcomeRefunded, state.Outcome.Kind)
	require.Equal(t, "refundtxid", state.Outcome.Txid)
}

func TestFoldFinishedByRefundGuardsMissingTxid(t *testing.T) {
	// Scenario: a FinishedByRefund event arrives without a preceding
	// RefundTxPublished having ever been folded (corrupt or reordered
	// stream). The fold must not fabricate a terminal outcome with an
	// empty txid.
	id := swapstate.SwapId("swap-3")

	events := []event.Event{
		event.NewLoopInAdded{Height: 10, LoopIn: swapstate.LoopIn{Id: id}},
		event.FinishedByRefund{Id: id},
	}

	state := Fold(events)

	require.Equal(t, swapstate.KindIn, state.Kind)
	require.False(t, state.IsTerminal())
}

func TestFoldFinishedByTimeoutCarriesReason(t *testing.T) {
	events := []event.Event{
		event.NewLoopOutAdded{Height: 1, LoopOut: swapstate.LoopOut{}},
		event.FinishedByTimeout{Reason: "cannot safely reveal preimage"},
	}

	state := Fold(events)

	require.Equal(t, swapstate.KindFinished, state.Kind)
	require.Equal(t, swapstate.OutcomeTimeout, state.Outcome.Kind)
	require.Equal(t, "cannot safely reveal preimage", state.Outcome.Message)
}

func TestApplyIsTerminalOnceFinished(t *testing.T) {
	events := []event.Event{
		event.NewLoopOutAdded{Height: 1, LoopOut: swapstate.LoopOut{}},
		event.FinishedByError{Message: "boom"},
	}
	state := Fold(events)
	require.True(t, state.IsTerminal())

	// Applying anything further to a terminal state is a no-op at the
	// fold layer; Exec is what actually refuses to process commands
	// against it.
	next := Apply(state, event.NewTipReceived{Height: 999})
	require.Equal(t, state, next)
}

func TestApplyUnknownTagIsNoOp(t *testing.T) {
	state := swapstate.State{Kind: swapstate.KindOut, BlockHeight: 5}
	next := Apply(state, event.UnknownTag{RawTag: 9999, RawBody: []byte("x")})
	require.Equal(t, state, next)
}

func TestApplyDoubleNewLoopOutAddedIgnoresSecond(t *testing.T) {
	first := event.NewLoopOutAdded{
		Height:  1,
		LoopOut: swapstate.LoopOut{Id: "a"},
	}
	second := event.NewLoopOutAdded{
		Height:  2,
		LoopOut: swapstate.LoopOut{Id: "b"},
	}

	state := Apply(Apply(swapstate.Zero, first), second)

	require.Equal(t, swapstate.SwapId("a"), state.LoopOut.Id)
}
