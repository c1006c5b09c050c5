// Package axon implements component G of the system, the service façade
// that exposes get/has/wants/hashes/history/put/puts/upload/metrics as a
// single capability-checked surface over the storage components.
package axon

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/blobstore"
	"github.com/axonhq/axon/internal/capability"
	"github.com/axonhq/axon/internal/historylog"
	"github.com/axonhq/axon/internal/metricsreg"
	"github.com/axonhq/axon/internal/sizeindex"
	"github.com/axonhq/axon/internal/storage"
	"github.com/axonhq/axon/internal/syncseq"
	"github.com/axonhq/axon/internal/upload"
	"github.com/axonhq/axon/pkg/digest"
)

// Required capabilities, per spec §6.
const (
	CapGet    = "axon:get"
	CapHas    = "axon:has"
	CapUpload = "axon:upload"
)

// checkCap wraps a capability denial in ErrUnauthorized so callers can
// match axon's error taxonomy with a single errors.Is check.
func checkCap(grants capability.Set, required string) error {
	if err := capability.Check(grants, required); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	return nil
}

// Service is the capability-checked entry point onto a single axon
// instance's storage. All methods are safe for concurrent use.
type Service struct {
	engine *storage.Engine

	blobs    *blobstore.Store
	sizes    *sizeindex.Index
	history  *historylog.Log
	sync     *syncseq.Seq
	metrics  *metricsreg.Register
	spoolDir string

	mu       sync.Mutex
	inFlight map[digest.SHA256]chan struct{}
}

// Open wires up a Service over the on-disk layout rooted at dir: dir's
// axon.db and blob.db (via [storage.Open]), plus a spool/ subdirectory
// for in-progress uploads.
func Open(dir string) (*Service, error) {
	engine, err := storage.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("axon: open storage: %w", err)
	}

	spoolDir, err := prepareSpoolDir(dir)
	if err != nil {
		_ = engine.Close()

		return nil, err
	}

	return &Service{
		engine:   engine,
		blobs:    blobstore.New(engine),
		sizes:    sizeindex.New(engine),
		history:  historylog.New(engine),
		sync:     syncseq.New(engine),
		metrics:  metricsreg.New(engine),
		spoolDir: spoolDir,
		inFlight: make(map[digest.SHA256]chan struct{}),
	}, nil
}

// Close releases the underlying storage engine.
func (s *Service) Close() error {
	if err := s.engine.Close(); err != nil {
		return fmt.Errorf("axon: close: %w", err)
	}

	return nil
}

// Has reports whether a blob is stored, requiring CapHas.
func (s *Service) Has(grants capability.Set, d digest.SHA256) (bool, error) {
	if err := checkCap(grants, CapHas); err != nil {
		return false, err
	}

	ok, err := s.sizes.Has(d)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorageFault, err)
	}

	return ok, nil
}

// Get streams a blob's chunks in order, requiring CapGet. It returns
// *NotFoundError if the digest is unknown.
func (s *Service) Get(grants capability.Set, d digest.SHA256) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if err := checkCap(grants, CapGet); err != nil {
			yield(nil, err)

			return
		}

		ok, err := s.sizes.Has(d)
		if err != nil {
			yield(nil, fmt.Errorf("%w: %w", ErrStorageFault, err))

			return
		}

		if !ok {
			yield(nil, &NotFoundError{Digest: d})

			return
		}

		for chunk, err := range s.blobs.Scan(d) {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// Wants filters digests down to those this service does not yet have,
// requiring CapHas.
func (s *Service) Wants(grants capability.Set, digests []digest.SHA256) ([]digest.SHA256, error) {
	if err := checkCap(grants, CapHas); err != nil {
		return nil, err
	}

	var want []digest.SHA256

	for _, d := range digests {
		ok, err := s.sizes.Has(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageFault, err)
		}

		if !ok {
			want = append(want, d)
		}
	}

	return want, nil
}

// Hashes returns the sync sequence starting at offs, requiring CapHas.
func (s *Service) Hashes(grants capability.Set, offs uint64) iter.Seq2[syncseq.Entry, error] {
	return func(yield func(syncseq.Entry, error) bool) {
		if err := checkCap(grants, CapHas); err != nil {
			yield(syncseq.Entry{}, err)

			return
		}

		for entry, err := range s.sync.Iter(offs) {
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

// History returns ingest records in [tick, tock), requiring CapHas. A
// zero tock means unbounded.
func (s *Service) History(grants capability.Set, tick, tock time.Time) iter.Seq2[historylog.Entry, error] {
	return func(yield func(historylog.Entry, error) bool) {
		if err := checkCap(grants, CapHas); err != nil {
			yield(historylog.Entry{}, err)

			return
		}

		for entry, err := range s.history.Carve(tick, tock) {
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

// Metrics returns the current persistent counters, requiring CapHas.
func (s *Service) Metrics(grants capability.Set) (map[string]uint64, error) {
	if err := checkCap(grants, CapHas); err != nil {
		return nil, err
	}

	snap, err := s.metrics.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFault, err)
	}

	return snap, nil
}

// Put stores a single in-memory blob, requiring CapUpload, and returns
// its size and digest.
func (s *Service) Put(ctx context.Context, grants capability.Set, data []byte) (uint64, digest.SHA256, error) {
	if err := checkCap(grants, CapUpload); err != nil {
		return 0, digest.SHA256{}, err
	}

	d := digest.Sum(data)

	chunks := func(yield func([]byte, error) bool) {
		for off := 0; off < len(data); off += blobstore.ChunkSize {
			if !yield(data[off:min(off+blobstore.ChunkSize, len(data))], nil) {
				return
			}
		}
	}

	size, err := s.save(ctx, d, chunks)
	if err != nil {
		return 0, digest.SHA256{}, err
	}

	return size, d, nil
}

// Puts stores each of files independently, requiring CapUpload, in the
// order given, per spec §4.G ("puts just iterates put").
func (s *Service) Puts(ctx context.Context, grants capability.Set, files [][]byte) ([]uint64, []digest.SHA256, error) {
	sizes := make([]uint64, len(files))
	digests := make([]digest.SHA256, len(files))

	for i, data := range files {
		size, d, err := s.Put(ctx, grants, data)
		if err != nil {
			return nil, nil, err
		}

		sizes[i] = size
		digests[i] = d
	}

	return sizes, digests, nil
}

// NewUpload starts a streamed upload session, requiring CapUpload.
func (s *Service) NewUpload(grants capability.Set) (*upload.Session, error) {
	if err := checkCap(grants, CapUpload); err != nil {
		return nil, err
	}

	return upload.NewSession(s.spoolDir), nil
}

// SaveUpload commits a completed upload session, requiring CapUpload,
// and returns its size and digest. The session is closed regardless of
// outcome.
func (s *Service) SaveUpload(ctx context.Context, grants capability.Set, sess *upload.Session) (uint64, digest.SHA256, error) {
	defer func() { _ = sess.Close() }()

	if err := checkCap(grants, CapUpload); err != nil {
		return 0, digest.SHA256{}, err
	}

	d := sess.Digest()

	size, err := s.save(ctx, d, sess.Chunks())
	if err != nil {
		return 0, digest.SHA256{}, err
	}

	return size, d, nil
}

// save implements the commit algorithm of spec §4.G:
//  1. if the digest is already known, return its size (idempotent)
//  2. write chunks to blob storage, yielding between chunks
//  3. append the history entry
//  4. append the sync sequence entry
//  5. update metrics and install the size-index entry last, since its
//     presence is what Has/Wants treat as "committed"
//
// Concurrent saves of the same digest are serialized through inFlight so
// that only one goroutine carries out steps 2-5 at a time; the rest wait
// and then observe the already-committed size, resolving the race the
// spec flags between steps 2 and 5.
func (s *Service) save(ctx context.Context, d digest.SHA256, chunks iter.Seq2[[]byte, error]) (uint64, error) {
	if size, ok, err := s.sizes.GetSize(d); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageFault, err)
	} else if ok {
		return size, nil
	}

	release, err := s.acquire(ctx, d)
	if err != nil {
		return 0, err
	}
	defer release()

	if size, ok, err := s.sizes.GetSize(d); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageFault, err)
	} else if ok {
		return size, nil
	}

	var size uint64

	for chunk, err := range chunks {
		if err != nil {
			return 0, fmt.Errorf("axon: read upload chunks: %w", err)
		}

		if ctx.Err() != nil {
			return 0, ErrCancelled
		}

		if err := s.blobs.PutChunk(d, size/blobstore.ChunkSize, chunk); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrStorageFault, err)
		}

		size += uint64(len(chunk))
	}

	now := time.Now()

	err = s.engine.Axon.Update(func(tx *bolt.Tx) error {
		if err := historylog.Append(tx, now, d, size); err != nil {
			return err
		}

		if _, err := syncseq.Append(tx, d, size); err != nil {
			return err
		}

		if err := metricsreg.IncrBy(tx, metricsreg.FileCount, 1); err != nil {
			return err
		}

		if err := metricsreg.IncrBy(tx, metricsreg.SizeBytes, size); err != nil {
			return err
		}

		return sizeindex.Set(tx, d, size)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageFault, err)
	}

	return size, nil
}

// acquire blocks until no other goroutine is committing d, then marks d
// as in-flight for the caller. The returned func must be called exactly
// once to release it.
func (s *Service) acquire(ctx context.Context, d digest.SHA256) (func(), error) {
	for {
		s.mu.Lock()

		wait, busy := s.inFlight[d]
		if !busy {
			done := make(chan struct{})
			s.inFlight[d] = done
			s.mu.Unlock()

			return func() {
				s.mu.Lock()
				delete(s.inFlight, d)
				s.mu.Unlock()
				close(done)
			}, nil
		}

		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ErrCancelled
		}
	}
}

func prepareSpoolDir(dir string) (string, error) {
	spoolDir := filepath.Join(dir, "spool")

	if err := os.MkdirAll(spoolDir, 0o700); err != nil {
		return "", fmt.Errorf("axon: prepare spool dir: %w", err)
	}

	return spoolDir, nil
}
