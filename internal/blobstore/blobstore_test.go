package blobstore_test

import (
	"testing"

	"github.com/axonhq/axon/internal/blobstore"
	"github.com/axonhq/axon/internal/storage"
	"github.com/axonhq/axon/pkg/digest"
)

func newTestStore(t *testing.T) *blobstore.Store {
	t.Helper()

	engine, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	t.Cleanup(func() { _ = engine.Close() })

	return blobstore.New(engine)
}

func drain(t *testing.T, store *blobstore.Store, d digest.SHA256) []byte {
	t.Helper()

	var out []byte

	for chunk, err := range store.Scan(d) {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}

		out = append(out, chunk...)
	}

	return out
}

func TestPutChunkAndScanRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	d := digest.Sum([]byte("hello"))

	if err := store.PutChunk(d, 0, []byte("hel")); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}

	if err := store.PutChunk(d, 1, []byte("lo")); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}

	got := drain(t, store, d)
	if string(got) != "hello" {
		t.Fatalf("scan = %q, want %q", got, "hello")
	}
}

func TestScanEmptyDigestYieldsNothing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	d := digest.Sum([]byte("never written"))

	got := drain(t, store, d)
	if len(got) != 0 {
		t.Fatalf("scan of unwritten digest = %q, want empty", got)
	}
}

func TestPutChunkIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	d := digest.Sum([]byte("idempotent"))

	for range 2 {
		if err := store.PutChunk(d, 0, []byte("payload")); err != nil {
			t.Fatalf("PutChunk: %v", err)
		}
	}

	got := drain(t, store, d)
	if string(got) != "payload" {
		t.Fatalf("scan = %q, want %q", got, "payload")
	}
}

func TestPutChunkRejectsOversized(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	d := digest.Sum([]byte("oversized"))

	err := store.PutChunk(d, 0, make([]byte, blobstore.ChunkSize+1))
	if err == nil {
		t.Fatal("PutChunk with oversized chunk succeeded, want error")
	}
}

func TestExists(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	d := digest.Sum([]byte("exists"))

	ok, err := store.Exists(d)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if ok {
		t.Fatal("Exists before write = true, want false")
	}

	if err := store.PutChunk(d, 0, []byte("x")); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}

	ok, err = store.Exists(d)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if !ok {
		t.Fatal("Exists after write = false, want true")
	}
}

// TestScanYieldsChunksInIndexOrder mirrors spec §8 scenario S2: a blob
// split into three chunks (two full-size, one short) must scan back in
// index order with each chunk's own length intact, matching how
// internal/axon.Service.save writes chunk i at index size/ChunkSize.
func TestScanYieldsChunksInIndexOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	d := digest.Sum([]byte("forty mebibytes"))

	first := make([]byte, blobstore.ChunkSize)
	second := make([]byte, blobstore.ChunkSize)
	third := make([]byte, 8*1<<20)

	for i := range first {
		first[i] = 0x01
	}

	for i := range second {
		second[i] = 0x02
	}

	for i := range third {
		third[i] = 0x03
	}

	if err := store.PutChunk(d, 0, first); err != nil {
		t.Fatalf("PutChunk 0: %v", err)
	}

	if err := store.PutChunk(d, 1, second); err != nil {
		t.Fatalf("PutChunk 1: %v", err)
	}

	if err := store.PutChunk(d, 2, third); err != nil {
		t.Fatalf("PutChunk 2: %v", err)
	}

	var sizes []int

	for chunk, err := range store.Scan(d) {
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}

		sizes = append(sizes, len(chunk))
	}

	want := []int{blobstore.ChunkSize, blobstore.ChunkSize, 8 * 1 << 20}

	if len(sizes) != len(want) {
		t.Fatalf("Scan yielded %d chunks (sizes %v), want %d (%v)", len(sizes), sizes, len(want), want)
	}

	for i, w := range want {
		if sizes[i] != w {
			t.Fatalf("chunk %d size = %d, want %d", i, sizes[i], w)
		}
	}
}

func TestScanDoesNotCrossDigestBoundary(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	d1 := digest.Sum([]byte("one"))
	d2 := digest.Sum([]byte("two"))

	if err := store.PutChunk(d1, 0, []byte("111")); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}

	if err := store.PutChunk(d2, 0, []byte("222")); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}

	if got := string(drain(t, store, d1)); got != "111" {
		t.Fatalf("scan d1 = %q, want %q", got, "111")
	}

	if got := string(drain(t, store, d2)); got != "222" {
		t.Fatalf("scan d2 = %q, want %q", got, "222")
	}
}
