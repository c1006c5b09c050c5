// Package metricsreg implements component E of axon: the persistent
// counters tracked across restarts ("file:count", "size:bytes"). The
// spec's "hive node at path ('axon', 'metrics')" maps onto the metrics
// bucket of axon.db.
package metricsreg

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/storage"
)

// Counter names.
const (
	FileCount = "file:count"
	SizeBytes = "size:bytes"
)

var knownCounters = []string{FileCount, SizeBytes}

// Register reads and writes the metrics bucket of axon.db. Missing
// counters default to 0, per spec §4.E.
type Register struct {
	db *bolt.DB
}

// New wraps the axon.db handle from a [storage.Engine].
func New(engine *storage.Engine) *Register {
	return &Register{db: engine.Axon}
}

// Get returns the current value of a named counter, defaulting to 0 if
// it has never been set.
func (r *Register) Get(name string) (uint64, error) {
	var value uint64

	err := r.db.View(func(tx *bolt.Tx) error {
		value = get(tx, name)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("metricsreg: get %q: %w", name, err)
	}

	return value, nil
}

// Snapshot returns the current value of every known counter.
func (r *Register) Snapshot() (map[string]uint64, error) {
	out := make(map[string]uint64, len(knownCounters))

	err := r.db.View(func(tx *bolt.Tx) error {
		for _, name := range knownCounters {
			out[name] = get(tx, name)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("metricsreg: snapshot: %w", err)
	}

	return out, nil
}

// IncrBy adds delta to the named counter within tx, the same transaction
// as the rest of the commit path, so the read-modify-write is serialized
// by bbolt's single writer rather than a separate task queue (spec §5's
// "shared-resource policy").
func IncrBy(tx *bolt.Tx, name string, delta uint64) error {
	current := get(tx, name)

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, current+delta)

	if err := tx.Bucket(storage.BucketMetrics).Put([]byte(name), buf); err != nil {
		return fmt.Errorf("metricsreg: incr %q: %w", name, err)
	}

	return nil
}

func get(tx *bolt.Tx, name string) uint64 {
	value := tx.Bucket(storage.BucketMetrics).Get([]byte(name))
	if value == nil {
		return 0
	}

	return binary.BigEndian.Uint64(value)
}
