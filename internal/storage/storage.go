// Package storage wires the two embedded bbolt databases axon persists
// to: axon.db (sizes, history, the sync sequence, metrics) and blob.db
// (chunk bytes). Splitting them mirrors the spec's "two separate KV
// databases" layout and keeps the bulk chunk data out of the smaller,
// more frequently-scanned axon.db file.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names within axon.db.
var (
	BucketSizes   = []byte("sizes")
	BucketHistory = []byte("history")
	BucketSyncSeq = []byte("axonseqn")
	BucketMetrics = []byte("metrics")
)

// Bucket name within blob.db.
var BucketBlobs = []byte("blobs")

// axonBuckets lists every bucket Open must ensure exists in axon.db.
var axonBuckets = [][]byte{BucketSizes, BucketHistory, BucketSyncSeq, BucketMetrics}

// openTimeout bounds how long Open waits for the bbolt file lock, matching
// the teacher's habit of never blocking indefinitely on a file lock.
const openTimeout = 5 * time.Second

// Engine owns the two open bbolt handles that back every axon component.
//
// The service instance owns Engine exclusively; Close must be called
// exactly once during teardown and closes both underlying files.
type Engine struct {
	Axon *bolt.DB
	Blob *bolt.DB
}

// Open creates (if needed) and opens axon.db and blob.db under dir,
// ensuring every bucket axon.db needs exists.
func Open(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create data dir %q: %w", dir, err)
	}

	axonPath := filepath.Join(dir, "axon.db")
	blobPath := filepath.Join(dir, "blob.db")

	axonDB, err := bolt.Open(axonPath, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", axonPath, err)
	}

	blobDB, err := bolt.Open(blobPath, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		_ = axonDB.Close()

		return nil, fmt.Errorf("storage: open %q: %w", blobPath, err)
	}

	err = axonDB.Update(func(tx *bolt.Tx) error {
		for _, name := range axonBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = axonDB.Close()
		_ = blobDB.Close()

		return nil, fmt.Errorf("storage: init axon.db: %w", err)
	}

	err = blobDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(BucketBlobs)

		return err
	})
	if err != nil {
		_ = axonDB.Close()
		_ = blobDB.Close()

		return nil, fmt.Errorf("storage: init blob.db: %w", err)
	}

	return &Engine{Axon: axonDB, Blob: blobDB}, nil
}

// Close closes both underlying databases, joining any errors from each.
func (e *Engine) Close() error {
	axonErr := e.Axon.Close()
	blobErr := e.Blob.Close()

	return errors.Join(axonErr, blobErr)
}
