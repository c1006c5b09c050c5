// Package syncseq implements component D of axon: the dense, append-only,
// offset-indexed log of ingests used by replicas to catch up.
//
// Offsets are derived from bbolt's per-bucket NextSequence counter, so
// denseness (spec §8 property 6: offsets form 0..N-1 for N commits) holds
// even when concurrent commits for different digests race to append,
// since NextSequence is itself serialized by the write transaction.
package syncseq

import (
	"encoding/binary"
	"fmt"
	"iter"

	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/storage"
	"github.com/axonhq/axon/pkg/digest"
)

// Entry is one append-log record.
type Entry struct {
	Offset uint64
	Digest digest.SHA256
	Size   uint64
}

// Seq reads and writes the axonseqn bucket of axon.db.
type Seq struct {
	db *bolt.DB
}

// New wraps the axon.db handle from a [storage.Engine].
func New(engine *storage.Engine) *Seq {
	return &Seq{db: engine.Axon}
}

// Append adds (d, size) to the sequence within tx and returns its offset.
// bbolt buckets are zero-based and NextSequence starts at 1, so the
// returned offset is NextSequence()-1 to keep offsets 0-based per spec §3.
func Append(tx *bolt.Tx, d digest.SHA256, size uint64) (uint64, error) {
	bucket := tx.Bucket(storage.BucketSyncSeq)

	seq, err := bucket.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("syncseq: next sequence: %w", err)
	}

	offset := seq - 1

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, offset)

	value := make([]byte, digest.Size+8)
	copy(value, d[:])
	binary.BigEndian.PutUint64(value[digest.Size:], size)

	if err := bucket.Put(key, value); err != nil {
		return 0, fmt.Errorf("syncseq: append: %w", err)
	}

	return offset, nil
}

// Iter returns entries at offset >= offs in ascending offset order,
// ending at the current tail. Per spec §4.D this implementation does not
// tail future appends; callers that want to keep following the sequence
// reissue Iter from the last offset seen plus one.
func (s *Seq) Iter(offs uint64) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		tx, err := s.db.Begin(false)
		if err != nil {
			yield(Entry{}, fmt.Errorf("syncseq: begin iter: %w", err))

			return
		}
		defer func() { _ = tx.Rollback() }()

		cursor := tx.Bucket(storage.BucketSyncSeq).Cursor()

		startKey := make([]byte, 8)
		binary.BigEndian.PutUint64(startKey, offs)

		for key, value := cursor.Seek(startKey); key != nil; key, value = cursor.Next() {
			entry, err := decodeEntry(key, value)
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

// Len returns the number of entries appended so far.
func (s *Seq) Len() (uint64, error) {
	var n uint64

	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(storage.BucketSyncSeq).Sequence()

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("syncseq: len: %w", err)
	}

	return n, nil
}

func decodeEntry(key, value []byte) (Entry, error) {
	if len(key) != 8 || len(value) != digest.Size+8 {
		return Entry{}, fmt.Errorf("syncseq: corrupt entry (key=%d value=%d bytes)", len(key), len(value))
	}

	d, err := digest.FromBytes(value[:digest.Size])
	if err != nil {
		return Entry{}, fmt.Errorf("syncseq: corrupt entry: %w", err)
	}

	return Entry{
		Offset: binary.BigEndian.Uint64(key),
		Digest: d,
		Size:   binary.BigEndian.Uint64(value[digest.Size:]),
	}, nil
}
