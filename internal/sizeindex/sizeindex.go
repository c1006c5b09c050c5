// Package sizeindex implements component B of axon: the digest→size
// mapping whose presence is the authoritative "blob exists" signal. A
// Size Entry exists for a digest iff the blob is fully committed (spec
// §3); nothing else in axon writes this bucket.
package sizeindex

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/storage"
	"github.com/axonhq/axon/pkg/digest"
)

// Index reads and writes the sizes bucket of axon.db.
type Index struct {
	db *bolt.DB
}

// New wraps the axon.db handle from a [storage.Engine].
func New(engine *storage.Engine) *Index {
	return &Index{db: engine.Axon}
}

func encodeSize(size uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, size)

	return buf
}

// Has reports whether digest d has a recorded Size Entry.
func (idx *Index) Has(d digest.SHA256) (bool, error) {
	var found bool

	err := idx.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(storage.BucketSizes).Get(d[:]) != nil

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("sizeindex: has %s: %w", d, err)
	}

	return found, nil
}

// GetSize returns the recorded size for d and true, or (0, false) if no
// Size Entry exists.
func (idx *Index) GetSize(d digest.SHA256) (uint64, bool, error) {
	var (
		size  uint64
		found bool
	)

	err := idx.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(storage.BucketSizes).Get(d[:])
		if value == nil {
			return nil
		}

		found = true
		size = binary.BigEndian.Uint64(value)

		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("sizeindex: get size %s: %w", d, err)
	}

	return size, found, nil
}

// Set installs the Size Entry for d within the given transaction. Callers
// in the commit path (component G) must run this last, after the chunks
// are written and the history/sync/metrics updates are applied, so a
// concurrent or post-crash observer never sees a "present" blob with
// missing chunks.
func Set(tx *bolt.Tx, d digest.SHA256, size uint64) error {
	err := tx.Bucket(storage.BucketSizes).Put(d[:], encodeSize(size))
	if err != nil {
		return fmt.Errorf("sizeindex: set %s: %w", d, err)
	}

	return nil
}
