package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"k8s.io/utils/clock"

	"github.com/iflink/spark/internal/wal"
	logpkg "github.com/iflink/spark/pkg/log"
)

// Options configures a BlockLedger.
type Options struct {
	// WAL makes the ledger durable. Nil keeps all state in memory only.
	WAL *wal.Log
	// Clock supplies the current time for cleanup validation. Defaults to
	// the real clock.
	Clock clock.PassiveClock
	// Logger is optional.
	Logger logpkg.Logger
}

// BlockLedger is the receiver-side source of truth for block bookkeeping.
// All methods are safe for concurrent use.
type BlockLedger struct {
	wal    *wal.Log
	clk    clock.PassiveClock
	logger logpkg.Logger

	mu            sync.Mutex
	unallocated   map[int][]BlockDescriptor
	allocated     map[int64]BatchAllocation
	lastAllocated int64
}

// New builds a BlockLedger. When a WAL is configured the surviving events are
// replayed before New returns, so the ledger starts with its pre-crash state.
func New(ctx context.Context, opts Options) (*BlockLedger, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	l := &BlockLedger{
		wal:           opts.WAL,
		clk:           opts.Clock,
		logger:        opts.Logger.With(logpkg.Component("ledger")),
		unallocated:   make(map[int][]BlockDescriptor),
		allocated:     make(map[int64]BatchAllocation),
		lastAllocated: -1,
	}
	if l.wal != nil {
		if err := l.replay(ctx); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *BlockLedger) replay(ctx context.Context) error {
	records, err := l.wal.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("ledger: replay: %w", err)
	}
	for _, rec := range records {
		kind, body, err := decodeEvent(rec)
		if err != nil {
			return fmt.Errorf("ledger: replay: %w", err)
		}
		switch kind {
		case evtBlockAdded:
			var e blockAddedEvent
			if err := json.Unmarshal(body, &e); err != nil {
				return fmt.Errorf("ledger: replay block added: %w", err)
			}
			l.applyBlockAdded(e.Block)
		case evtBatchAllocated:
			var e batchAllocatedEvent
			if err := json.Unmarshal(body, &e); err != nil {
				return fmt.Errorf("ledger: replay batch allocated: %w", err)
			}
			l.applyBatchAllocated(e.Allocation)
		case evtBatchesPurged:
			var e batchesPurgedEvent
			if err := json.Unmarshal(body, &e); err != nil {
				return fmt.Errorf("ledger: replay batches purged: %w", err)
			}
			l.applyBatchesPurged(e.Times)
		}
	}
	l.logger.Info("ledger recovered",
		logpkg.Int("events", len(records)),
		logpkg.Int("batches", len(l.allocated)),
		logpkg.Int64("watermark_ms", l.lastAllocated),
	)
	return nil
}

// AddBlock records a stored block on its stream's unallocated queue. The
// event is logged before the in-memory state changes; a failed append leaves
// the ledger untouched and the block unknown.
func (l *BlockLedger) AddBlock(ctx context.Context, d BlockDescriptor) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.logEvent(ctx, evtBlockAdded, blockAddedEvent{Block: d}); err != nil {
		return fmt.Errorf("ledger: add block: %w", err)
	}
	l.applyBlockAdded(d)
	l.logger.Debug("block added",
		logpkg.Int("stream", d.StreamID),
		logpkg.Int("queued", len(l.unallocated[d.StreamID])),
	)
	return nil
}

// AllocateBlocksToBatch drains every stream's unallocated queue into the
// batch at batchTime and advances the allocation watermark. A batch time at
// or below the watermark is ignored: re-allocation after a scheduler restart
// must not double-assign blocks.
func (l *BlockLedger) AllocateBlocksToBatch(ctx context.Context, batchTime int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if batchTime <= l.lastAllocated {
		l.logger.Debug("allocation ignored: batch time not after watermark",
			logpkg.Int64("batch_ms", batchTime),
			logpkg.Int64("watermark_ms", l.lastAllocated),
		)
		return nil
	}

	alloc := BatchAllocation{
		BatchTime: batchTime,
		Streams:   make(map[int][]BlockDescriptor, len(l.unallocated)),
	}
	for stream, queue := range l.unallocated {
		alloc.Streams[stream] = queue
	}
	if err := l.logEvent(ctx, evtBatchAllocated, batchAllocatedEvent{Allocation: alloc}); err != nil {
		return fmt.Errorf("ledger: allocate batch: %w", err)
	}
	l.applyBatchAllocated(alloc)

	blocks := 0
	for _, q := range alloc.Streams {
		blocks += len(q)
	}
	l.logger.Debug("batch allocated",
		logpkg.Int64("batch_ms", batchTime),
		logpkg.Int("blocks", blocks),
	)
	return nil
}

// GetBlocksOfBatch returns the allocation of batchTime, keyed by stream.
// Unknown batch times yield an empty map.
func (l *BlockLedger) GetBlocksOfBatch(batchTime int64) map[int][]BlockDescriptor {
	l.mu.Lock()
	defer l.mu.Unlock()

	alloc, ok := l.allocated[batchTime]
	if !ok {
		return map[int][]BlockDescriptor{}
	}
	out := make(map[int][]BlockDescriptor, len(alloc.Streams))
	for stream, queue := range alloc.Streams {
		out[stream] = append([]BlockDescriptor(nil), queue...)
	}
	return out
}

// GetBlocksOfBatchAndStream returns one stream's slice of a batch's
// allocation. Unknown batch times or streams yield an empty slice.
func (l *BlockLedger) GetBlocksOfBatchAndStream(batchTime int64, streamID int) []BlockDescriptor {
	l.mu.Lock()
	defer l.mu.Unlock()

	alloc, ok := l.allocated[batchTime]
	if !ok {
		return nil
	}
	return append([]BlockDescriptor(nil), alloc.Streams[streamID]...)
}

// HasUnallocatedBlocks reports whether any stream has blocks awaiting
// allocation.
func (l *BlockLedger) HasUnallocatedBlocks() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, queue := range l.unallocated {
		if len(queue) > 0 {
			return true
		}
	}
	return false
}

// CleanupOldBatches forgets every allocation with a batch time strictly
// before thresholdMs and asks the WAL to reclaim records older than the
// threshold. The threshold must lie in the past. When wait is false the WAL
// reclamation runs in the background.
func (l *BlockLedger) CleanupOldBatches(ctx context.Context, thresholdMs int64, wait bool) error {
	if now := l.clk.Now().UnixMilli(); thresholdMs >= now {
		return fmt.Errorf("ledger: cleanup threshold %d is not in the past (now %d)", thresholdMs, now)
	}

	l.mu.Lock()
	var times []int64
	for t := range l.allocated {
		if t < thresholdMs {
			times = append(times, t)
		}
	}
	if len(times) > 0 {
		if err := l.logEvent(ctx, evtBatchesPurged, batchesPurgedEvent{Times: times}); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("ledger: cleanup: %w", err)
		}
		l.applyBatchesPurged(times)
	}
	l.mu.Unlock()

	if len(times) > 0 {
		l.logger.Debug("batches cleaned up",
			logpkg.Int("batches", len(times)),
			logpkg.Int64("threshold_ms", thresholdMs),
		)
	}
	if l.wal != nil {
		return l.wal.PurgeBefore(thresholdMs, wait)
	}
	return nil
}

// Close releases the WAL, waiting for any background reclamation.
func (l *BlockLedger) Close() error {
	if l.wal != nil {
		return l.wal.Close()
	}
	return nil
}

// logEvent appends the event to the WAL when durability is on. Callers hold
// the mutex, so the append order matches the apply order.
func (l *BlockLedger) logEvent(ctx context.Context, kind byte, body interface{}) error {
	if l.wal == nil {
		return nil
	}
	raw, err := encodeEvent(kind, body)
	if err != nil {
		return err
	}
	return l.wal.Append(ctx, raw)
}

func (l *BlockLedger) applyBlockAdded(d BlockDescriptor) {
	l.unallocated[d.StreamID] = append(l.unallocated[d.StreamID], d)
}

func (l *BlockLedger) applyBatchAllocated(alloc BatchAllocation) {
	for stream := range l.unallocated {
		l.unallocated[stream] = nil
	}
	for stream := range alloc.Streams {
		if _, ok := l.unallocated[stream]; !ok {
			l.unallocated[stream] = nil
		}
	}
	l.allocated[alloc.BatchTime] = alloc
	if alloc.BatchTime > l.lastAllocated {
		l.lastAllocated = alloc.BatchTime
	}
}

func (l *BlockLedger) applyBatchesPurged(times []int64) {
	for _, t := range times {
		delete(l.allocated, t)
	}
}
