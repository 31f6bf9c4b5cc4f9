package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/queue"

	"github.com/nloop/nloop/command"
	"github.com/nloop/nloop/event"
	"github.com/nloop/nloop/swapstate"
)

// maxAppendRetries bounds how many times in total Handler.Execute runs load,
// fold, exec and append for one command, so at most maxAppendRetries-1
// re-runs follow a lost optimistic-concurrency race on append.
// A command is pure enough to safely retry; this only guards against a
// pathological storm of concurrent writers on the same swap.
const maxAppendRetries = 5

// Handler is the aggregate: it orchestrates load, fold, exec and append
// against an EventStore with optimistic concurrency, serialising commands
// for a given swap through a per-swap mutex, and fans out newly appended
// events to subscribers (projections, waiters).
type Handler struct {
	store EventStore
	deps  command.Deps

	locksMu sync.Mutex
	locks   map[swapstate.SwapId]*sync.Mutex

	subsMu sync.Mutex
	subs   map[swapstate.SwapId][]*queue.ConcurrentQueue
}

// NewHandler returns a Handler backed by store, calling out to deps from
// within Exec.
func NewHandler(store EventStore, deps command.Deps) *Handler {
	return &Handler{
		store: store,
		deps:  deps,
		locks: make(map[swapstate.SwapId]*sync.Mutex),
		subs:  make(map[swapstate.SwapId][]*queue.ConcurrentQueue),
	}
}

// Execute runs cmd against id's current state: load the stream, fold it,
// invoke Exec, and append the resulting events with expected-version equal
// to the loaded stream length. On a lost optimistic-concurrency race it
// retries from the top, for at most maxAppendRetries attempts in total.
func (h *Handler) Execute(ctx context.Context, id swapstate.SwapId,
	cmd command.Command, meta command.Meta) (swapstate.State, error) {

	lock := h.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		events, err := h.store.Load(ctx, id)
		if err != nil {
			return swapstate.State{}, fmt.Errorf("load %v: %w", id, err)
		}
		state := Fold(events)

		newEvents, err := Exec(ctx, state, cmd, h.deps, meta)
		if err != nil {
			return state, err
		}
		if len(newEvents) == 0 {
			return state, nil
		}

		err = h.store.Append(ctx, id, len(events), newEvents)
		if err == nil {
			h.publish(id, newEvents)
			return Fold(append(events, newEvents...)), nil
		}

		var conflict *ErrConcurrentAppend
		if !errors.As(err, &conflict) {
			return state, fmt.Errorf("append %v: %w", id, err)
		}
		lastErr = err
	}

	return swapstate.State{}, fmt.Errorf(
		"append %v: exhausted %d attempts: %w", id, maxAppendRetries, lastErr)
}

func (h *Handler) lockFor(id swapstate.SwapId) *sync.Mutex {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()

	lock, ok := h.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[id] = lock
	}
	return lock
}

// Subscribe registers a catch-up-free listener for events appended to id
// from this point on. The returned function unregisters it; callers must
// call it to release the underlying queue goroutine.
func (h *Handler) Subscribe(id swapstate.SwapId) (<-chan event.Event, func()) {
	q := queue.NewConcurrentQueue(10)
	q.Start()

	h.subsMu.Lock()
	h.subs[id] = append(h.subs[id], q)
	h.subsMu.Unlock()

	out := make(chan event.Event, 10)
	go func() {
		defer close(out)
		for item := range q.ChanOut() {
			ev, ok := item.(event.Event)
			if !ok {
				continue
			}
			out <- ev
		}
	}()

	cancel := func() {
		h.subsMu.Lock()
		defer h.subsMu.Unlock()

		subs := h.subs[id]
		for i, sub := range subs {
			if sub == q {
				h.subs[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		q.Stop()
	}

	return out, cancel
}

func (h *Handler) publish(id swapstate.SwapId, events []event.Event) {
	h.subsMu.Lock()
	subs := append([]*queue.ConcurrentQueue(nil), h.subs[id]...)
	h.subsMu.Unlock()

	for _, q := range subs {
		for _, ev := range events {
			q.ChanIn() <- ev
		}
	}
}
