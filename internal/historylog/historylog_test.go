package historylog_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	bolt "go.etcd.io/bbolt"

	"github.com/axonhq/axon/internal/historylog"
	"github.com/axonhq/axon/internal/storage"
	"github.com/axonhq/axon/pkg/digest"
)

func newTestLog(t *testing.T) (*historylog.Log, *storage.Engine) {
	t.Helper()

	engine, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	t.Cleanup(func() { _ = engine.Close() })

	return historylog.New(engine), engine
}

func appendEntry(t *testing.T, engine *storage.Engine, ts time.Time, d digest.SHA256, size uint64) {
	t.Helper()

	err := engine.Axon.Update(func(tx *bolt.Tx) error {
		return historylog.Append(tx, ts, d, size)
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func collect(t *testing.T, log *historylog.Log, tick, tock time.Time) []historylog.Entry {
	t.Helper()

	var out []historylog.Entry

	for entry, err := range log.Carve(tick, tock) {
		if err != nil {
			t.Fatalf("Carve: %v", err)
		}

		out = append(out, entry)
	}

	return out
}

// TestHistoryRange mirrors spec scenario S5.
func TestHistoryRange(t *testing.T) {
	t.Parallel()

	log, engine := newTestLog(t)

	t1 := time.Unix(1000, 0)
	t2 := time.Unix(2000, 0)

	da := digest.Sum([]byte("a"))
	db := digest.Sum([]byte("b"))

	appendEntry(t, engine, t1, da, 1)
	appendEntry(t, engine, t2, db, 1)

	onlyA := collect(t, log, t1, t2)
	if len(onlyA) != 1 || onlyA[0].Digest != da {
		t.Fatalf("Carve(t1, t2) = %+v, want exactly the entry for a", onlyA)
	}

	both := collect(t, log, t1, time.Time{})
	if len(both) != 2 {
		t.Fatalf("Carve(t1, nil) returned %d entries, want 2", len(both))
	}
}

func TestHistorySameTimestampBreaksTiesByInsertionOrder(t *testing.T) {
	t.Parallel()

	log, engine := newTestLog(t)

	ts := time.Unix(5000, 0)

	first := digest.Sum([]byte("first"))
	second := digest.Sum([]byte("second"))

	appendEntry(t, engine, ts, first, 1)
	appendEntry(t, engine, ts, second, 2)

	entries := collect(t, log, ts, time.Time{})
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries[0].Digest != first || entries[1].Digest != second {
		t.Fatalf("entries = %+v, want insertion order [first, second]", entries)
	}
}

func TestHistoryEntriesMatchExactly(t *testing.T) {
	t.Parallel()

	log, engine := newTestLog(t)

	ts := time.Unix(9000, 0)
	d := digest.Sum([]byte("exact"))

	appendEntry(t, engine, ts, d, 42)

	got := collect(t, log, ts, time.Time{})
	want := []historylog.Entry{{Timestamp: ts, Digest: d, Size: 42}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Carve entries mismatch (-want +got):\n%s", diff)
	}
}
