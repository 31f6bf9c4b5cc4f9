package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nloop/nloop/command"
	"github.com/nloop/nloop/event"
	"github.com/nloop/nloop/swapstate"
)

// memStore is a minimal in-memory EventStore, exercising Handler's
// load/fold/exec/append loop without a real backing database.
type memStore struct {
	mu     sync.Mutex
	events map[swapstate.SwapId][]event.Event
}

func newMemStore() *memStore {
	return &memStore{events: make(map[swapstate.SwapId][]event.Event)}
}

func (s *memStore) Load(_ context.Context, id swapstate.SwapId) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]event.Event(nil), s.events[id]...), nil
}

func (s *memStore) Append(_ context.Context, id swapstate.SwapId,
	expectedVersion int, events []event.Event) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events[id]) != expectedVersion {
		return &ErrConcurrentAppend{SwapId: id, ExpectedVersion: expectedVersion}
	}
	s.events[id] = append(s.events[id], events...)
	return nil
}

func TestHandlerExecuteAppendsAndFolds(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, command.Deps{})

	id := swapstate.SwapId("swap-1")
	cmd := command.NewLoopIn{
		Height: 100,
		LoopIn: validLoopIn(id, 50_000, 900),
	}

	state, err := h.Execute(context.Background(), id, cmd, command.Meta{})
	require.NoError(t, err)
	require.Equal(t, swapstate.KindIn, state.Kind)
	require.Equal(t, id, state.LoopIn.Id)

	stored, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, event.TagNewLoopInAdded, stored[0].Tag())
}

func TestHandlerExecuteOnTerminalStateIsNoOp(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, command.Deps{})

	id := swapstate.SwapId("swap-2")
	store.events[id] = []event.Event{
		event.NewLoopInAdded{Height: 1, LoopIn: swapstate.LoopIn{Id: id}},
		event.FinishedByError{Id: id, Message: "already done"},
	}

	state, err := h.Execute(context.Background(), id,
		command.NewBlock{Height: 2, Chain: swapstate.AssetBTC}, command.Meta{})
	require.NoError(t, err)
	require.True(t, state.IsTerminal())

	stored, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, stored, 2, "terminal state must not accumulate further events")
}

func TestHandlerSubscribeReceivesAppendedEvents(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, command.Deps{})

	id := swapstate.SwapId("swap-3")
	ch, cancel := h.Subscribe(id)
	defer cancel()

	cmd := command.NewLoopIn{
		Height: 1,
		LoopIn: validLoopIn(id, 1, 100),
	}
	_, err := h.Execute(context.Background(), id, cmd, command.Meta{})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		require.Equal(t, event.TagNewLoopInAdded, ev.Tag())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestHandlerExecuteLoadsPriorEventsWrittenOutOfBand(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, command.Deps{})

	id := swapstate.SwapId("swap-4")

	// An event written directly to the store, bypassing the handler.
	// Execute must fold it in before running the next command rather
	// than assuming it owns the only write path.
	store.events[id] = []event.Event{
		event.NewLoopInAdded{Height: 1, LoopIn: swapstate.LoopIn{Id: id}},
	}

	state, err := h.Execute(context.Background(), id,
		command.SwapUpdate{Status: swapstate.StatusInvoiceFailedToPay},
		command.Meta{})
	require.NoError(t, err)
	require.Equal(t, swapstate.KindIn, state.Kind)
}
