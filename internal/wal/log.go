package wal

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"k8s.io/utils/clock"

	pebblestore "github.com/iflink/spark/internal/storage/pebble"
	logpkg "github.com/iflink/spark/pkg/log"
)

// DefaultRotationInterval is the reclamation window when none is configured.
const DefaultRotationInterval = 60 * time.Second

// Options configures a Log.
type Options struct {
	// RotationInterval sets the reclamation window: PurgeBefore only deletes
	// entries whose window closed before the threshold. Defaults to
	// DefaultRotationInterval.
	RotationInterval time.Duration
	// Clock supplies write timestamps. Defaults to the real clock.
	Clock clock.PassiveClock
	// Logger is optional.
	Logger logpkg.Logger
	// PurgeBatchLimit bounds keys deleted per commit during purges.
	PurgeBatchLimit int
}

// Log provides ordered append, sequential replay, and time-based reclamation
// for a named record stream persisted in Pebble.
type Log struct {
	db         *pebblestore.DB
	name       string
	rotation   time.Duration
	clk        clock.PassiveClock
	logger     logpkg.Logger
	batchLimit int

	mu      sync.Mutex
	lastSeq uint64
	purges  sync.WaitGroup
}

// Open initializes a Log and restores the last sequence from metadata.
func Open(db *pebblestore.DB, name string, opts Options) (*Log, error) {
	if db == nil {
		return nil, errors.New("wal: nil db")
	}
	if name == "" {
		return nil, errors.New("wal: empty log name")
	}
	if opts.RotationInterval <= 0 {
		opts.RotationInterval = DefaultRotationInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	if opts.PurgeBatchLimit <= 0 {
		opts.PurgeBatchLimit = 1024
	}
	l := &Log{
		db:         db,
		name:       name,
		rotation:   opts.RotationInterval,
		clk:        opts.Clock,
		logger:     opts.Logger.With(logpkg.Component("wal"), logpkg.Str("log", name)),
		batchLimit: opts.PurgeBatchLimit,
	}
	if meta, err := db.Get(keyMeta(name)); err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return l, nil
}

// Append durably writes one record, assigning the next sequence number.
// The entry and the lastSeq metadata commit in a single atomic batch.
func (l *Log) Append(ctx context.Context, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seq := l.lastSeq + 1
	val := encodeEntry(l.clk.Now().UnixMilli(), payload)
	if err := b.Set(keyEntry(l.name, seq), val, nil); err != nil {
		return err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(keyMeta(l.name), meta[:], nil); err != nil {
		return err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	l.lastSeq = seq
	return nil
}

// ReadAll returns every surviving payload in append order. Entries failing
// checksum validation are skipped.
func (l *Log) ReadAll(ctx context.Context) ([][]byte, error) {
	low, high := entryBounds(l.name)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out [][]byte
	for ok := iter.First(); ok; ok = iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, payload, okDec := decodeEntry(iter.Value())
		if !okDec {
			seq := binary.BigEndian.Uint64(iter.Key()[len(low)-8:])
			l.logger.Warn("skipping corrupt record", logpkg.Uint64("seq", seq))
			continue
		}
		out = append(out, payload)
	}
	return out, nil
}

// PurgeBefore reclaims entries whose rotation window closed before
// thresholdMs. When wait is false the purge runs on a background goroutine
// and errors are only logged.
func (l *Log) PurgeBefore(thresholdMs int64, wait bool) error {
	cutoff := thresholdMs - thresholdMs%l.rotation.Milliseconds()
	if cutoff <= 0 {
		return nil
	}
	if wait {
		return l.purge(cutoff)
	}
	l.purges.Add(1)
	go func() {
		defer l.purges.Done()
		if err := l.purge(cutoff); err != nil {
			l.logger.Error("background purge failed", logpkg.Err(err))
		}
	}()
	return nil
}

// purge deletes entries with write timestamp < cutoffMs in batched commits,
// stopping at the first newer entry.
func (l *Log) purge(cutoffMs int64) error {
	low, high := entryBounds(l.name)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return err
	}
	defer iter.Close()

	deleted := 0
	for ok := iter.First(); ok; {
		b := l.db.NewBatch()
		n := 0
		for ok && n < l.batchLimit {
			ts, _, okDec := decodeEntry(iter.Value())
			if okDec && ts >= cutoffMs {
				ok = false
				break
			}
			// corrupt entries are reclaimed along with expired ones
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return err
			}
			deleted++
			n++
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		if err := l.db.CommitBatch(context.Background(), b); err != nil {
			b.Close()
			return err
		}
		b.Close()
	}
	if deleted > 0 {
		l.logger.Debug("purged records",
			logpkg.Int("deleted", deleted),
			logpkg.Int64("cutoff_ms", cutoffMs),
		)
		_ = l.db.CompactRange(low, high)
	}
	return nil
}

// Close waits for in-flight background purges. The underlying DB is owned by
// the caller and is not closed here.
func (l *Log) Close() error {
	l.purges.Wait()
	return nil
}
