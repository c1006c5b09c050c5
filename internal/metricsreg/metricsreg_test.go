package metricsreg_test

import (
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/metricsreg"
	"github.com/axonhq/axon/internal/storage"
)

func newTestRegister(t *testing.T) (*metricsreg.Register, *storage.Engine) {
	t.Helper()

	engine, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	t.Cleanup(func() { _ = engine.Close() })

	return metricsreg.New(engine), engine
}

func TestGetDefaultsToZero(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegister(t)

	n, err := reg.Get(metricsreg.FileCount)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if n != 0 {
		t.Fatalf("Get(unset) = %d, want 0", n)
	}
}

func TestIncrByAccumulates(t *testing.T) {
	t.Parallel()

	reg, engine := newTestRegister(t)

	incr := func(name string, delta uint64) {
		err := engine.Axon.Update(func(tx *bolt.Tx) error {
			return metricsreg.IncrBy(tx, name, delta)
		})
		if err != nil {
			t.Fatalf("IncrBy: %v", err)
		}
	}

	incr(metricsreg.FileCount, 1)
	incr(metricsreg.FileCount, 1)
	incr(metricsreg.SizeBytes, 4096)

	count, err := reg.Get(metricsreg.FileCount)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if count != 2 {
		t.Fatalf("file:count = %d, want 2", count)
	}

	snap, err := reg.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap[metricsreg.FileCount] != 2 || snap[metricsreg.SizeBytes] != 4096 {
		t.Fatalf("Snapshot = %+v, want file:count=2 size:bytes=4096", snap)
	}
}
