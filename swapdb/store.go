// Package swapdb adapts the teacher's channeldb bbolt idiom into an
// append-only, optimistic-concurrency event store: swap.EventStore backed
// by a single embedded bbolt file, one sub-bucket per swap stream.
package swapdb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"go.etcd.io/bbolt"

	"github.com/lightningnetwork/lnd/queue"

	"github.com/nloopd/nloop/swap"
)

const (
	dbName           = "nloop.db"
	dbFilePermission = 0600
)

// streamsBucket is the single top-level bucket; each stream gets its own
// nested bucket keyed by its stream key, events keyed by a big-endian
// sequence number within it.
var streamsBucket = []byte("swap-streams")

// byteOrder matches channeldb's own convention for its on-disk integer
// keys: big-endian, so cursor scans over sequence numbers iterate in order.
var byteOrder = binary.BigEndian

// DB is the bbolt-backed event store. It implements swap.EventStore.
type DB struct {
	bolt *bbolt.DB

	subsMu sync.Mutex
	subs   map[string][]*queue.ConcurrentQueue
}

// Open opens (creating if necessary) the event store at dbPath.
func Open(dbPath string) (*DB, error) {
	if !fileExists(dbPath) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(dbPath, dbName)
	bdb, err := bbolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, err
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(streamsBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("swapdb: unable to create store: %w", err)
	}

	log.Infof("Opened swap event store at %v", path)
	return &DB{
		bolt: bdb,
		subs: make(map[string][]*queue.ConcurrentQueue),
	}, nil
}

// Close releases the underlying bbolt file and stops every outstanding
// subscription's queue.
func (d *DB) Close() error {
	d.subsMu.Lock()
	for _, qs := range d.subs {
		for _, q := range qs {
			q.Stop()
		}
	}
	d.subs = nil
	d.subsMu.Unlock()

	return d.bolt.Close()
}

func fileExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// Load returns every event recorded for key, in stream order, along with
// the stream's current version (its length). A key with no stream yet
// returns an empty slice and version 0, matching swap.EventStore's
// zero-state contract.
func (d *DB) Load(key string) ([]swap.Event, int, error) {
	var (
		events  []swap.Event
		version int
	)

	err := d.bolt.View(func(tx *bbolt.Tx) error {
		streams := tx.Bucket(streamsBucket)
		stream := streams.Bucket([]byte(key))
		if stream == nil {
			return nil
		}

		return stream.ForEach(func(_, body []byte) error {
			e, err := swap.DecodeEventFromBytes(body)
			if err != nil {
				return fmt.Errorf("swapdb: corrupt event in stream %q: %w", key, err)
			}
			events = append(events, e)
			version++
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	log.Debugf("Loaded stream %q at version %d: %v", key, version,
		newLogClosure(func() string {
			return spew.Sdump(events)
		}))

	return events, version, nil
}

// Append adds events to the stream at key, succeeding only if the stream's
// current length equals expectedVersion. The whole check-and-append
// happens inside one bbolt write transaction, so it is atomic with respect
// to any other Append racing on the same key.
func (d *DB) Append(key string, expectedVersion int, events []swap.Event) error {
	err := d.bolt.Update(func(tx *bbolt.Tx) error {
		streams := tx.Bucket(streamsBucket)
		stream, err := streams.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}

		if cur := stream.Sequence(); cur != uint64(expectedVersion) {
			return swap.ErrConcurrencyConflict
		}

		for _, e := range events {
			body, err := swap.EncodeEventToBytes(e)
			if err != nil {
				return err
			}

			seq, err := stream.NextSequence()
			if err != nil {
				return err
			}

			var seqKey [8]byte
			byteOrder.PutUint64(seqKey[:], seq-1)
			if err := stream.Put(seqKey[:], body); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Debugf("Appended %d event(s) to stream %q at version %d: %v",
		len(events), key, expectedVersion, newLogClosure(func() string {
			return spew.Sdump(events)
		}))

	d.notifySubscribers(key, events)
	return nil
}
