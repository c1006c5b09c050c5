// Package historylog implements component C of axon: a timestamp-ordered,
// range-queryable record of every committed ingest.
//
// Keys are bigendian_u64(unix_nano) ∥ bigendian_u64(insertion_seq). The
// insertion sequence (bbolt's per-bucket NextSequence counter) breaks ties
// between entries committed within the same nanosecond, in insertion
// order, per spec §4.C.
package historylog

import (
	"encoding/binary"
	"fmt"
	"iter"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/storage"
	"github.com/axonhq/axon/pkg/digest"
)

const keySize = 16 // 8-byte timestamp + 8-byte insertion sequence

// Entry is one ingest record: the digest and size of a committed blob,
// timestamped at insertion.
type Entry struct {
	Timestamp time.Time
	Digest    digest.SHA256
	Size      uint64
}

// Log reads and writes the history bucket of axon.db.
type Log struct {
	db *bolt.DB
}

// New wraps the axon.db handle from a [storage.Engine].
func New(engine *storage.Engine) *Log {
	return &Log{db: engine.Axon}
}

// Append records an ingest at the given timestamp within tx, the same
// transaction as the commit path's other History/Sync/Metrics updates
// (spec §4.G step 3: history and sync appends "must be atomic with
// respect to each other").
func Append(tx *bolt.Tx, timestamp time.Time, d digest.SHA256, size uint64) error {
	bucket := tx.Bucket(storage.BucketHistory)

	seq, err := bucket.NextSequence()
	if err != nil {
		return fmt.Errorf("historylog: next sequence: %w", err)
	}

	key := make([]byte, keySize)
	binary.BigEndian.PutUint64(key[:8], uint64(timestamp.UnixNano())) //nolint:gosec // monotonic timestamps are non-negative
	binary.BigEndian.PutUint64(key[8:], seq)

	value := make([]byte, digest.Size+8)
	copy(value, d[:])
	binary.BigEndian.PutUint64(value[digest.Size:], size)

	if err := bucket.Put(key, value); err != nil {
		return fmt.Errorf("historylog: append: %w", err)
	}

	return nil
}

// Carve returns entries with timestamp in [tick, tock), ascending. A zero
// tock means "no upper bound" (spec §4.C: "tock=None").
func (l *Log) Carve(tick, tock time.Time) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		tx, err := l.db.Begin(false)
		if err != nil {
			yield(Entry{}, fmt.Errorf("historylog: begin carve: %w", err))

			return
		}
		defer func() { _ = tx.Rollback() }()

		cursor := tx.Bucket(storage.BucketHistory).Cursor()

		startKey := make([]byte, 8)
		binary.BigEndian.PutUint64(startKey, uint64(tick.UnixNano())) //nolint:gosec // see Append

		var tockNano uint64
		if !tock.IsZero() {
			tockNano = uint64(tock.UnixNano()) //nolint:gosec // see Append
		}

		for key, value := cursor.Seek(startKey); key != nil; key, value = cursor.Next() {
			nanos := binary.BigEndian.Uint64(key[:8])
			if !tock.IsZero() && nanos >= tockNano {
				return
			}

			entry, err := decodeEntry(key, value)
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

func decodeEntry(key, value []byte) (Entry, error) {
	if len(key) != keySize || len(value) != digest.Size+8 {
		return Entry{}, fmt.Errorf("historylog: corrupt entry (key=%d value=%d bytes)", len(key), len(value))
	}

	d, err := digest.FromBytes(value[:digest.Size])
	if err != nil {
		return Entry{}, fmt.Errorf("historylog: corrupt entry: %w", err)
	}

	nanos := binary.BigEndian.Uint64(key[:8])
	size := binary.BigEndian.Uint64(value[digest.Size:])

	return Entry{
		Timestamp: time.Unix(0, int64(nanos)), //nolint:gosec // see Append
		Digest:    d,
		Size:      size,
	}, nil
}
