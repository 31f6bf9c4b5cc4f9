package engine

import (
	"context"

	"github.com/nloop/nloop/event"
	"github.com/nloop/nloop/swapstate"
)

// EventStore is the append-only, per-stream persistence collaborator the
// Handler drives. Streams are keyed by swap id; Append enforces optimistic
// concurrency against the version of the stream the caller last observed.
type EventStore interface {
	// Load returns every event recorded for id, in stream order.
	Load(ctx context.Context, id swapstate.SwapId) ([]event.Event, error)

	// Append adds events to id's stream, failing with ErrConcurrentAppend
	// if the stream's current length does not equal expectedVersion.
	Append(ctx context.Context, id swapstate.SwapId, expectedVersion int,
		events []event.Event) error
}

// ErrConcurrentAppend is returned by EventStore.Append when another writer
// appended to the same stream between the caller's Load and its Append.
type ErrConcurrentAppend struct {
	SwapId          swapstate.SwapId
	ExpectedVersion int
}

func (e *ErrConcurrentAppend) Error() string {
	return "concurrent append to swap " + string(e.SwapId)
}
