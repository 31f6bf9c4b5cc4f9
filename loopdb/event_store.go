package loopdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/nloop/nloop/engine"
	"github.com/nloop/nloop/event"
	"github.com/nloop/nloop/swapstate"
)

// byteOrder is the framing order used for every integer key this package
// writes to BoltDB, matching the big-endian convention the tagged event
// codec uses for its own wire framing.
var byteOrder = binary.BigEndian

var swapsBucketKey = []byte("swaps")

// BoltEventStoreConfig holds the on-disk location of a BoltEventStore.
type BoltEventStoreConfig struct {
	// DatabaseFileName is the full path to the database file.
	DatabaseFileName string `long:"dbfile" description:"The full path to the database."`
}

// BoltEventStore is an append-only event store keyed by swap id, backed by
// a single BoltDB file: one nested bucket per swap, one key per event,
// the key being the event's zero-based position in the stream. It
// satisfies engine.EventStore.
type BoltEventStore struct {
	cfg *BoltEventStoreConfig
	db  *bbolt.DB
}

// NewBoltEventStore opens (creating if necessary) a BoltDB file at
// cfg.DatabaseFileName and returns a store ready to serve swap streams.
func NewBoltEventStore(cfg *BoltEventStoreConfig) (*BoltEventStore, error) {
	db, err := bbolt.Open(cfg.DatabaseFileName, 0600, &bbolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(swapsBucketKey)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create swaps bucket: %w", err)
	}

	log.Infof("Opened bolt event store at %v", cfg.DatabaseFileName)

	return &BoltEventStore{cfg: cfg, db: db}, nil
}

// Close releases the underlying BoltDB file handle.
func (s *BoltEventStore) Close() error {
	return s.db.Close()
}

// Load returns every event recorded for id, in stream order. A swap with no
// stream yet returns an empty slice, not an error — NewLoopOut/NewLoopIn
// fold against swapstate.Zero the same way.
func (s *BoltEventStore) Load(_ context.Context,
	id swapstate.SwapId) ([]event.Event, error) {

	var events []event.Event

	err := s.db.View(func(tx *bbolt.Tx) error {
		swap := tx.Bucket(swapsBucketKey).Bucket([]byte(id))
		if swap == nil {
			return nil
		}

		return swap.ForEach(func(_, body []byte) error {
			ev, err := event.Decode(body)
			if err != nil {
				return fmt.Errorf("decode event for %v: %w", id, err)
			}
			events = append(events, ev)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// Append adds events to id's stream, failing with ErrConcurrentAppend if
// the stream's current length does not equal expectedVersion. Every event
// in the call is written in a single BoltDB transaction, so a crash
// midway through never leaves a partially-appended command visible.
func (s *BoltEventStore) Append(_ context.Context, id swapstate.SwapId,
	expectedVersion int, events []event.Event) error {

	return s.db.Update(func(tx *bbolt.Tx) error {
		swap, err := tx.Bucket(swapsBucketKey).CreateBucketIfNotExists(
			[]byte(id),
		)
		if err != nil {
			return fmt.Errorf("open swap bucket for %v: %w", id, err)
		}

		version := swap.Stats().KeyN
		if version != expectedVersion {
			return &engine.ErrConcurrentAppend{
				SwapId:          id,
				ExpectedVersion: expectedVersion,
			}
		}

		for i, ev := range events {
			body, err := event.Encode(ev)
			if err != nil {
				return fmt.Errorf("encode event %d for %v: %w", i, id, err)
			}

			key := versionKey(version + i)
			if err := swap.Put(key, body); err != nil {
				return fmt.Errorf("put event %d for %v: %w", i, id, err)
			}
		}

		return nil
	})
}

func versionKey(version int) []byte {
	b := make([]byte, 8)
	byteOrder.PutUint64(b, uint64(version))
	return b
}
