// Package upload implements component F of axon: a write-then-commit
// session for large, streamed blobs.
//
// A Session buffers written bytes in memory up to spillThreshold, then
// spills to a temp file, mirroring the spooled-file behavior the original
// implementation gets from Python's tempfile.SpooledTemporaryFile. The
// session tracks a rolling SHA-256 and byte count as data arrives, so
// Digest never has to re-read the buffer.
package upload

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"iter"
	"os"

	"github.com/axonhq/axon/pkg/digest"
)

// spillThreshold is the in-memory buffer ceiling before a session spills
// to a temp file, matching the original's tenmegs SpooledTemporaryFile
// cutoff.
const spillThreshold = 10 * 1 << 20

// chunkSize is the read size Chunks uses to replay spooled bytes to the
// commit function, matching blobstore.ChunkSize.
const chunkSize = 16 * 1 << 20

// Session accumulates bytes written across one or more Write calls and
// exposes their digest, size, and a replayable chunk sequence for the
// commit path (axon.Service.SaveUpload). Close releases the spool file;
// calling it again is a no-op.
type Session struct {
	dir string

	mem      []byte
	spill    *os.File
	spilled  bool
	size     uint64
	rollingH hash.Hash
}

// NewSession starts a session that spills to spillDir if the buffered
// data exceeds the in-memory threshold.
func NewSession(spillDir string) *Session {
	return &Session{
		dir:      spillDir,
		rollingH: sha256.New(),
	}
}

// Write appends p to the session, updating the rolling digest and byte
// count. It never returns a short write.
func (s *Session) Write(p []byte) (int, error) {
	s.rollingH.Write(p)
	s.size += uint64(len(p))

	if s.spilled {
		n, err := s.spill.Write(p)
		if err != nil {
			return n, fmt.Errorf("upload: write spool file: %w", err)
		}

		return n, nil
	}

	if len(s.mem)+len(p) > spillThreshold {
		if err := s.spillToDisk(); err != nil {
			return 0, err
		}

		n, err := s.spill.Write(p)
		if err != nil {
			return n, fmt.Errorf("upload: write spool file: %w", err)
		}

		return n, nil
	}

	s.mem = append(s.mem, p...)

	return len(p), nil
}

func (s *Session) spillToDisk() error {
	file, err := os.CreateTemp(s.dir, "axon-upload-*.spool")
	if err != nil {
		return fmt.Errorf("upload: create spool file: %w", err)
	}

	if _, err := file.Write(s.mem); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())

		return fmt.Errorf("upload: write spool file: %w", err)
	}

	s.spill = file
	s.spilled = true
	s.mem = nil

	return nil
}

// Digest returns the SHA-256 of everything written so far. Safe to call
// before Save, e.g. to short-circuit callers that already hold the blob.
func (s *Session) Digest() digest.SHA256 {
	var sum digest.SHA256

	copy(sum[:], s.rollingH.Sum(nil))

	return sum
}

// Size returns the number of bytes written so far.
func (s *Session) Size() uint64 {
	return s.size
}

// Chunks rewinds the session's buffer and returns it as a lazy sequence
// of up-to-chunkSize byte slices, suitable for handing to a commit
// function. It may only be called once, since spooled files are
// streamed rather than copied.
func (s *Session) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !s.spilled {
			if len(s.mem) == 0 {
				return
			}

			yield(s.mem, nil)

			return
		}

		if _, err := s.spill.Seek(0, io.SeekStart); err != nil {
			yield(nil, fmt.Errorf("upload: rewind spool file: %w", err))

			return
		}

		buf := make([]byte, chunkSize)

		for {
			n, err := s.spill.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}

			if err == io.EOF {
				return
			}

			if err != nil {
				yield(nil, fmt.Errorf("upload: read spool file: %w", err))

				return
			}
		}
	}
}

// Close releases the session's spool file, if any, without committing.
// It is safe to call Close after the chunks have been committed, to
// guarantee cleanup on every exit path. Removal is always attempted, and
// close and removal errors are joined.
func (s *Session) Close() error {
	if s.spill == nil {
		return nil
	}

	name := s.spill.Name()

	closeErr := s.spill.Close()
	removeErr := os.Remove(name)

	s.spill = nil

	var errs []error

	if closeErr != nil {
		errs = append(errs, fmt.Errorf("upload: close spool file: %w", closeErr))
	}

	if removeErr != nil && !os.IsNotExist(removeErr) {
		errs = append(errs, fmt.Errorf("upload: remove spool file: %w", removeErr))
	}

	return errors.Join(errs...)
}
