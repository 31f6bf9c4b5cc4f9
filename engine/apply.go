package engine

import (
	"github.com/nloop/nloop/event"
	"github.com/nloop/nloop/swapstate"
)

// Apply is the pure fold: given the current state and the next event in a
// swap's stream, it returns the state that results. Every transition is
// monotone — a recognised event applied against a state it does not expect
// leaves that state unchanged rather than panicking, so that replay of a
// stream written by a slightly different build degrades gracefully.
func Apply(state swapstate.State, ev event.Event) swapstate.State {
	switch e := ev.(type) {
	case event.NewLoopOutAdded:
		if state.Kind != swapstate.KindHasNotStarted {
			return state
		}
		return swapstate.State{
			Kind:        swapstate.KindOut,
			BlockHeight: e.Height,
			LoopOut:     e.LoopOut,
		}

	case event.ClaimTxPublished:
		if state.Kind != swapstate.KindOut {
			return state
		}
		state.LoopOut = state.LoopOut.WithClaimTx(e.Txid)
		return state

	case event.SwapTxPublished:
		switch state.Kind {
		case swapstate.KindOut:
			state.LoopOut = state.LoopOut.WithLockupTx(e.TxHex)
			return state
		case swapstate.KindIn:
			state.LoopIn = state.LoopIn.WithLockupTx(e.TxHex)
			return state
		default:
			return state
		}

	case event.OffChainOfferResolved:
		if state.Kind != swapstate.KindOut {
			return state
		}
		state.LoopOut = state.LoopOut.WithPreimage(e.Preimage)
		return state

	case event.NewLoopInAdded:
		if state.Kind != swapstate.KindHasNotStarted {
			return state
		}
		return swapstate.State{
			Kind:        swapstate.KindIn,
			BlockHeight: e.Height,
			LoopIn:      e.LoopIn,
		}

	case event.RefundTxPublished:
		if state.Kind != swapstate.KindIn {
			return state
		}
		state.LoopIn = state.LoopIn.WithRefundTx(e.Txid)
		return state

	case event.NewTipReceived:
		switch state.Kind {
		case swapstate.KindOut, swapstate.KindIn:
			state.BlockHeight = e.Height
			return state
		default:
			return state
		}

	case event.FinishedSuccessfully:
		return finish(state, swapstate.Outcome{Kind: swapstate.OutcomeSuccess})

	case event.FinishedByError:
		return finish(state, swapstate.Outcome{
			Kind:    swapstate.OutcomeErrored,
			Message: e.Message,
		})

	case event.FinishedByRefund:
		if state.Kind != swapstate.KindIn || state.LoopIn.RefundTransactionId == "" {
			return state
		}
		return finish(state, swapstate.Outcome{
			Kind: swapstate.OutcomeRefunded,
			Txid: state.LoopIn.RefundTransactionId,
		})

	case event.FinishedByTimeout:
		return finish(state, swapstate.Outcome{
			Kind:    swapstate.OutcomeTimeout,
			Message: e.Reason,
		})

	case event.UnknownTag:
		return state

	default:
		return state
	}
}

func finish(state swapstate.State, outcome swapstate.Outcome) swapstate.State {
	if state.Kind != swapstate.KindOut && state.Kind != swapstate.KindIn {
		return state
	}
	return swapstate.State{
		Kind:        swapstate.KindFinished,
		BlockHeight: state.BlockHeight,
		LoopOut:     state.LoopOut,
		LoopIn:      state.LoopIn,
		Outcome:     outcome,
	}
}

// Fold replays a swap's full event history from swapstate.Zero, returning
// the resulting state. Handler uses this after loading a stream; tests use
// it directly to assert the table in Apply without a store.
func Fold(events []event.Event) swapstate.State {
	state := swapstate.Zero
	for _, ev := range events {
		state = Apply(state, ev)
	}
	return state
}
