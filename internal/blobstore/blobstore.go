// Package blobstore implements component A of axon: the chunked,
// prefix-scannable layout of blob bytes over bbolt.
//
// Chunk N of blob D is stored under the composite key D∥bigendian_u64(N)
// in the "blobs" bucket of blob.db. Key order is lexicographic on the full
// composite key; because the chunk index is big-endian, numeric and
// lexicographic order agree, so an ascending bbolt cursor walk over the
// prefix D yields chunks in original insertion order.
package blobstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"

	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/storage"
	"github.com/axonhq/axon/pkg/digest"
)

// ChunkSize is the maximum size of a single stored chunk (16 MiB). The
// final chunk of a blob may be shorter.
const ChunkSize = 16 * 1 << 20

// Store reads and writes chunked blob bytes in blob.db.
type Store struct {
	db *bolt.DB
}

// New wraps the blob.db handle from a [storage.Engine].
func New(engine *storage.Engine) *Store {
	return &Store{db: engine.Blob}
}

// compositeKey builds the 40-byte D∥bigendian_u64(index) key.
func compositeKey(d digest.SHA256, index uint64) []byte {
	key := make([]byte, digest.Size+8)
	copy(key, d[:])
	binary.BigEndian.PutUint64(key[digest.Size:], index)

	return key
}

// PutChunk writes chunk index of blob d. Idempotent under identical input:
// writing the same (d, index, data) twice is a no-op the second time since
// the key is deterministic in d and index.
func (s *Store) PutChunk(d digest.SHA256, index uint64, data []byte) error {
	if len(data) > ChunkSize {
		return fmt.Errorf("blobstore: chunk %d of %s exceeds %d bytes (%d)", index, d, ChunkSize, len(data))
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(storage.BucketBlobs)

		return bucket.Put(compositeKey(d, index), data)
	})
	if err != nil {
		return fmt.Errorf("blobstore: put chunk %d of %s: %w", index, d, err)
	}

	return nil
}

// Scan returns a lazy, restartable sequence of chunk bytes for digest d in
// ascending key order. The sequence is backed by a read-only transaction
// held open for the duration of iteration and closed when the consuming
// range loop ends or breaks. If the transaction cannot be started, the
// error is yielded as the only pair.
func (s *Store) Scan(d digest.SHA256) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		tx, err := s.db.Begin(false)
		if err != nil {
			yield(nil, fmt.Errorf("blobstore: begin scan of %s: %w", d, err))

			return
		}
		defer func() { _ = tx.Rollback() }()

		cursor := tx.Bucket(storage.BucketBlobs).Cursor()
		prefix := d[:]

		for key, value := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, value = cursor.Next() {
			// bbolt values are only valid within the transaction; copy before
			// yielding since the caller may retain the slice across loop iterations.
			chunk := make([]byte, len(value))
			copy(chunk, value)

			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Exists reports whether any chunk is stored under digest d's prefix,
// without materializing any chunk bytes. Used by recovery/diagnostics
// rather than the hot `has` path, which instead consults the size index.
func (s *Store) Exists(d digest.SHA256) (bool, error) {
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(storage.BucketBlobs).Cursor()

		key, _ := cursor.Seek(d[:])
		found = key != nil && bytes.HasPrefix(key, d[:])

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("blobstore: exists %s: %w", d, err)
	}

	return found, nil
}
