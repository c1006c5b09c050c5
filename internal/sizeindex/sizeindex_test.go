package sizeindex_test

import (
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/sizeindex"
	"github.com/axonhq/axon/internal/storage"
	"github.com/axonhq/axon/pkg/digest"
)

func newTestIndex(t *testing.T) (*sizeindex.Index, *storage.Engine) {
	t.Helper()

	engine, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	t.Cleanup(func() { _ = engine.Close() })

	return sizeindex.New(engine), engine
}

func TestHasAndGetSizeBeforeSet(t *testing.T) {
	t.Parallel()

	idx, _ := newTestIndex(t)
	d := digest.Sum([]byte("missing"))

	has, err := idx.Has(d)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}

	if has {
		t.Fatal("Has = true before Set, want false")
	}

	_, found, err := idx.GetSize(d)
	if err != nil {
		t.Fatalf("GetSize: %v", err)
	}

	if found {
		t.Fatal("GetSize found = true before Set, want false")
	}
}

func TestSetThenHasAndGetSize(t *testing.T) {
	t.Parallel()

	idx, engine := newTestIndex(t)
	d := digest.Sum([]byte("present"))

	err := engine.Axon.Update(func(tx *bolt.Tx) error {
		return sizeindex.Set(tx, d, 42)
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	has, err := idx.Has(d)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}

	if !has {
		t.Fatal("Has = false after Set, want true")
	}

	size, found, err := idx.GetSize(d)
	if err != nil {
		t.Fatalf("GetSize: %v", err)
	}

	if !found || size != 42 {
		t.Fatalf("GetSize = (%d, %v), want (42, true)", size, found)
	}
}
