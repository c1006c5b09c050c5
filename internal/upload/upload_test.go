package upload_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/axonhq/axon/internal/upload"
	"github.com/axonhq/axon/pkg/digest"
)

func drain(t *testing.T, s *upload.Session) []byte {
	t.Helper()

	var buf bytes.Buffer

	for chunk, err := range s.Chunks() {
		if err != nil {
			t.Fatalf("Chunks: %v", err)
		}

		buf.Write(chunk)
	}

	return buf.Bytes()
}

func TestSessionSmallWriteStaysInMemory(t *testing.T) {
	t.Parallel()

	s := upload.NewSession(t.TempDir())
	t.Cleanup(func() { _ = s.Close() })

	data := []byte("hello axon")

	n, err := s.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if n != len(data) {
		t.Fatalf("Write returned %d, want %d", n, len(data))
	}

	if s.Size() != uint64(len(data)) {
		t.Fatalf("Size() = %d, want %d", s.Size(), len(data))
	}

	if s.Digest() != digest.Sum(data) {
		t.Fatalf("Digest() mismatch")
	}

	if got := drain(t, s); !bytes.Equal(got, data) {
		t.Fatalf("Chunks() = %q, want %q", got, data)
	}
}

func TestSessionSpillsPastThreshold(t *testing.T) {
	t.Parallel()

	s := upload.NewSession(t.TempDir())
	t.Cleanup(func() { _ = s.Close() })

	big := bytes.Repeat([]byte{0xAB}, 11*1<<20)

	if _, err := s.Write(big); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if s.Digest() != digest.Sum(big) {
		t.Fatalf("Digest() mismatch after spill")
	}

	got := drain(t, s)
	if !bytes.Equal(got, big) {
		t.Fatalf("Chunks() after spill returned %d bytes, want %d", len(got), len(big))
	}
}

func TestSessionWritesAcrossSpillBoundary(t *testing.T) {
	t.Parallel()

	s := upload.NewSession(t.TempDir())
	t.Cleanup(func() { _ = s.Close() })

	first := bytes.Repeat([]byte{0x01}, 9*1<<20)
	second := bytes.Repeat([]byte{0x02}, 3*1<<20)

	if _, err := s.Write(first); err != nil {
		t.Fatalf("Write first: %v", err)
	}

	if _, err := s.Write(second); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	want := append(append([]byte{}, first...), second...)

	if s.Digest() != digest.Sum(want) {
		t.Fatalf("Digest() mismatch across spill boundary")
	}

	got := drain(t, s)
	if !bytes.Equal(got, want) {
		t.Fatalf("Chunks() across spill boundary mismatched, got %d bytes want %d", len(got), len(want))
	}
}

func TestSessionCloseRemovesSpoolFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := upload.NewSession(dir)

	big := bytes.Repeat([]byte{0xFF}, 11*1<<20)
	if _, err := s.Write(big); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("spool dir has %d entries after Close, want 0: %v", len(entries), entries)
	}
}

func TestSessionChunksSplitAtSixteenMiB(t *testing.T) {
	t.Parallel()

	s := upload.NewSession(t.TempDir())
	t.Cleanup(func() { _ = s.Close() })

	const chunkSize = 16 * 1 << 20

	// 40 MiB: spec scenario S2 expects three chunks of 16/16/8 MiB.
	data := bytes.Repeat([]byte{0xCD}, 40*1<<20)

	if _, err := s.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if s.Digest() != digest.Sum(data) {
		t.Fatalf("Digest() mismatch for 40 MiB upload")
	}

	var sizes []int

	var got []byte

	for chunk, err := range s.Chunks() {
		if err != nil {
			t.Fatalf("Chunks: %v", err)
		}

		sizes = append(sizes, len(chunk))
		got = append(got, chunk...)
	}

	wantSizes := []int{chunkSize, chunkSize, 8 * 1 << 20}

	if len(sizes) != len(wantSizes) {
		t.Fatalf("Chunks() yielded %d chunks (sizes %v), want %d (%v)", len(sizes), sizes, len(wantSizes), wantSizes)
	}

	for i, want := range wantSizes {
		if sizes[i] != want {
			t.Fatalf("chunk %d size = %d, want %d", i, sizes[i], want)
		}
	}

	if !bytes.Equal(got, data) {
		t.Fatalf("Chunks() concatenated mismatches the original %d bytes written", len(data))
	}
}

func TestSessionEmptyYieldsNoChunks(t *testing.T) {
	t.Parallel()

	s := upload.NewSession(t.TempDir())
	t.Cleanup(func() { _ = s.Close() })

	if got := drain(t, s); len(got) != 0 {
		t.Fatalf("Chunks() on empty session = %d bytes, want 0", len(got))
	}
}
