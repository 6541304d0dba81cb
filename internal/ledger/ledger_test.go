package ledger

import (
	"context"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	pebblestore "github.com/iflink/spark/internal/storage/pebble"
	"github.com/iflink/spark/internal/wal"
)

func newMemLedger(t *testing.T) *BlockLedger {
	t.Helper()
	l, err := New(context.Background(), Options{})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func desc(stream int, ref string) BlockDescriptor {
	return BlockDescriptor{StreamID: stream, StorageRef: []byte(ref)}
}

func TestAddThenAllocateDrainsQueues(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()

	if l.HasUnallocatedBlocks() {
		t.Fatalf("fresh ledger has unallocated blocks")
	}
	if err := l.AddBlock(ctx, desc(0, "a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.AddBlock(ctx, desc(0, "b")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !l.HasUnallocatedBlocks() {
		t.Fatalf("blocks not reported as unallocated")
	}

	if err := l.AllocateBlocksToBatch(ctx, 100); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	got := l.GetBlocksOfBatch(100)
	if len(got[0]) != 2 || string(got[0][0].StorageRef) != "a" || string(got[0][1].StorageRef) != "b" {
		t.Fatalf("allocation out of order: %v", got[0])
	}
	if l.HasUnallocatedBlocks() {
		t.Fatalf("queues not drained by allocation")
	}
}

func TestAllocateIgnoresStaleBatchTime(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()

	if err := l.AddBlock(ctx, desc(0, "a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.AllocateBlocksToBatch(ctx, 100); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	// a late block must not leak into a replayed allocation request
	if err := l.AddBlock(ctx, desc(0, "late")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.AllocateBlocksToBatch(ctx, 100); err != nil {
		t.Fatalf("re-allocate: %v", err)
	}
	if err := l.AllocateBlocksToBatch(ctx, 50); err != nil {
		t.Fatalf("stale allocate: %v", err)
	}
	if got := l.GetBlocksOfBatch(100); len(got[0]) != 1 {
		t.Fatalf("stale allocation mutated batch: %v", got[0])
	}
	if !l.HasUnallocatedBlocks() {
		t.Fatalf("late block vanished")
	}

	if err := l.AllocateBlocksToBatch(ctx, 200); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := l.GetBlocksOfBatch(200); len(got[0]) != 1 || string(got[0][0].StorageRef) != "late" {
		t.Fatalf("late block not allocated to next batch: %v", got[0])
	}
}

func TestGetBlocksOfBatchAndStream(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()

	for _, d := range []BlockDescriptor{desc(0, "a"), desc(1, "b"), desc(0, "c")} {
		if err := l.AddBlock(ctx, d); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := l.AllocateBlocksToBatch(ctx, 100); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	s0 := l.GetBlocksOfBatchAndStream(100, 0)
	if len(s0) != 2 || string(s0[0].StorageRef) != "a" || string(s0[1].StorageRef) != "c" {
		t.Fatalf("stream 0: %v", s0)
	}
	if s1 := l.GetBlocksOfBatchAndStream(100, 1); len(s1) != 1 {
		t.Fatalf("stream 1: %v", s1)
	}
	if got := l.GetBlocksOfBatchAndStream(100, 9); len(got) != 0 {
		t.Fatalf("unknown stream non-empty: %v", got)
	}
	if got := l.GetBlocksOfBatchAndStream(999, 0); len(got) != 0 {
		t.Fatalf("unknown batch non-empty: %v", got)
	}
	if got := l.GetBlocksOfBatch(999); len(got) != 0 {
		t.Fatalf("unknown batch map non-empty: %v", got)
	}
}

func TestCleanupRemovesOldBatchesOnly(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.UnixMilli(1_000_000))
	l, err := New(context.Background(), Options{Clock: clk})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()

	if err := l.AddBlock(ctx, desc(0, "a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.AllocateBlocksToBatch(ctx, 30); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := l.AddBlock(ctx, desc(0, "b")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.AllocateBlocksToBatch(ctx, 80); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if err := l.CleanupOldBatches(ctx, 50, true); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if got := l.GetBlocksOfBatch(30); len(got) != 0 {
		t.Fatalf("purged batch still present: %v", got)
	}
	if got := l.GetBlocksOfBatch(80); len(got[0]) != 1 {
		t.Fatalf("surviving batch lost: %v", got)
	}
}

func TestCleanupRejectsFutureThreshold(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.UnixMilli(1_000))
	l, err := New(context.Background(), Options{Clock: clk})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := l.CleanupOldBatches(context.Background(), 1_000, true); err == nil {
		t.Fatalf("future threshold accepted")
	}
}

func openWAL(t *testing.T, dir string) (*pebblestore.DB, *wal.Log) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	w, err := wal.Open(db, "ledger", wal.Options{})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	return db, w
}

func TestRecoveryRestoresStateAndWatermark(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, w := openWAL(t, dir)
	l, err := New(ctx, Options{WAL: w})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	for _, d := range []BlockDescriptor{desc(0, "a"), desc(1, "b")} {
		if err := l.AddBlock(ctx, d); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := l.AllocateBlocksToBatch(ctx, 100); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := l.AddBlock(ctx, desc(0, "pending")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	db2, w2 := openWAL(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	l2, err := New(ctx, Options{WAL: w2})
	if err != nil {
		t.Fatalf("recover ledger: %v", err)
	}

	got := l2.GetBlocksOfBatch(100)
	if len(got[0]) != 1 || string(got[0][0].StorageRef) != "a" {
		t.Fatalf("recovered batch stream 0: %v", got[0])
	}
	if len(got[1]) != 1 || string(got[1][0].StorageRef) != "b" {
		t.Fatalf("recovered batch stream 1: %v", got[1])
	}
	if !l2.HasUnallocatedBlocks() {
		t.Fatalf("pending block lost in recovery")
	}

	// watermark survives: replaying the old batch time must not steal the
	// pending block
	if err := l2.AllocateBlocksToBatch(ctx, 100); err != nil {
		t.Fatalf("re-allocate: %v", err)
	}
	if !l2.HasUnallocatedBlocks() {
		t.Fatalf("watermark not restored")
	}
	if err := l2.AllocateBlocksToBatch(ctx, 200); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := l2.GetBlocksOfBatchAndStream(200, 0); len(got) != 1 || string(got[0].StorageRef) != "pending" {
		t.Fatalf("pending block not allocated after recovery: %v", got)
	}
}

func TestRecoveryHonorsCleanup(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	clk := clocktesting.NewFakeClock(time.UnixMilli(1_000_000))

	db, w := openWAL(t, dir)
	l, err := New(ctx, Options{WAL: w, Clock: clk})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := l.AddBlock(ctx, desc(0, "a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.AllocateBlocksToBatch(ctx, 30); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := l.AllocateBlocksToBatch(ctx, 80); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := l.CleanupOldBatches(ctx, 50, true); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	db2, w2 := openWAL(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	l2, err := New(ctx, Options{WAL: w2, Clock: clk})
	if err != nil {
		t.Fatalf("recover ledger: %v", err)
	}
	if got := l2.GetBlocksOfBatch(30); len(got) != 0 {
		t.Fatalf("cleaned batch resurrected: %v", got)
	}
	if got := l2.GetBlocksOfBatch(80); len(got) == 0 {
		t.Fatalf("surviving batch lost after recovery")
	}
}
