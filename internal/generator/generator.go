package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/iflink/spark/internal/ratelimit"
	logpkg "github.com/iflink/spark/pkg/log"
)

// Defaults applied when Options fields are zero.
const (
	DefaultInterval      = 200 * time.Millisecond
	DefaultQueueCapacity = 10
	defaultPollTimeout   = 100 * time.Millisecond
)

// ErrNotActive is returned by AddData when the generator has not been
// started or has been stopped.
var ErrNotActive = errors.New("generator: not active")

// Listener receives the generator's lifecycle callbacks.
//
// OnAddData and OnGenerateBlock run inside the buffer's critical section and
// must be quick; a slow callback delays both admission and sealing.
// OnPushBlock runs on the dedicated worker goroutine, unsynchronized with
// everything else, and may block on long-latency storage.
type Listener interface {
	OnAddData(item interface{}, metadata interface{})
	OnGenerateBlock(id BlockID)
	OnPushBlock(id BlockID, items []interface{}) error
	OnError(msg string, cause error)
}

// Options configures a BatchGenerator.
type Options struct {
	// Interval is the seal period controlling block granularity.
	Interval time.Duration
	// QueueCapacity bounds the sealed-block hand-off queue.
	QueueCapacity int
	// Limiter gates item admission. Defaults to unlimited.
	Limiter ratelimit.Limiter
	// Clock drives the seal timer. Defaults to the real clock.
	Clock clock.WithTicker
	// Logger is optional.
	Logger logpkg.Logger
	// PollTimeout is the worker's idle wakeup period.
	PollTimeout time.Duration
}

const (
	stateCreated int32 = iota
	stateActive
	stateStopped
)

// BatchGenerator accumulates items and seals them into blocks once per
// interval. Create once, Start once, Stop once.
type BatchGenerator struct {
	producer    int
	interval    time.Duration
	limiter     ratelimit.Limiter
	clk         clock.WithTicker
	listener    Listener
	logger      logpkg.Logger
	pollTimeout time.Duration

	mu     sync.Mutex
	buffer []interface{}

	state  int32
	blocks chan *Block
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a BatchGenerator for the given producer id and listener.
func New(producer int, opts Options, listener Listener) *BatchGenerator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.PerSecond(0)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	return &BatchGenerator{
		producer:    producer,
		interval:    opts.Interval,
		limiter:     opts.Limiter,
		clk:         opts.Clock,
		listener:    listener,
		logger:      opts.Logger.With(logpkg.Component("generator"), logpkg.Int("producer", producer)),
		pollTimeout: opts.PollTimeout,
		blocks:      make(chan *Block, opts.QueueCapacity),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the seal timer and the hand-off worker. It must precede
// AddData and is a no-op when called again.
func (g *BatchGenerator) Start() {
	if !atomic.CompareAndSwapInt32(&g.state, stateCreated, stateActive) {
		g.logger.Warn("start ignored: generator already started")
		return
	}
	g.wg.Add(2)
	go g.runTimer()
	go g.runWorker()
	g.logger.Debug("generator started", logpkg.Dur("interval_ms", g.interval))
}

// Stop halts the timer, seals the remaining partial buffer, and blocks until
// the worker has drained every queued block. Subsequent calls are no-ops.
func (g *BatchGenerator) Stop() {
	if !atomic.CompareAndSwapInt32(&g.state, stateActive, stateStopped) {
		return
	}
	close(g.stopCh)
	g.wg.Wait()
	g.logger.Debug("generator stopped")
}

// AddData blocks on the rate limiter, then appends item to the current
// buffer. The item lands in the block sealed at the end of the current
// interval.
func (g *BatchGenerator) AddData(ctx context.Context, item interface{}) error {
	return g.add(ctx, item, nil, false)
}

// AddDataWithCallback behaves like AddData and additionally invokes the
// listener's OnAddData inside the buffer's critical section, so the callback
// can never race a concurrent seal.
func (g *BatchGenerator) AddDataWithCallback(ctx context.Context, item, metadata interface{}) error {
	return g.add(ctx, item, metadata, true)
}

func (g *BatchGenerator) add(ctx context.Context, item, metadata interface{}, withCallback bool) error {
	if atomic.LoadInt32(&g.state) != stateActive {
		return ErrNotActive
	}
	if err := g.limiter.WaitToPush(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	// re-check under the lock: a concurrent Stop may have won the race
	if atomic.LoadInt32(&g.state) != stateActive {
		return ErrNotActive
	}
	g.buffer = append(g.buffer, item)
	if withCallback {
		g.listener.OnAddData(item, metadata)
	}
	return nil
}

// runTimer fires the seal once per interval. Seals never overlap: they all
// run on this goroutine. On stop it seals the final partial buffer and
// closes the hand-off queue.
func (g *BatchGenerator) runTimer() {
	defer g.wg.Done()
	ticker := g.clk.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case fireTime := <-ticker.C():
			g.seal(fireTime)
		case <-g.stopCh:
			g.seal(g.clk.Now())
			close(g.blocks)
			return
		}
	}
}

// seal swaps the buffer for an empty one and hands the sealed block to the
// worker. The enqueue happens outside the critical section: a full queue
// stalls this goroutine, not item admission.
func (g *BatchGenerator) seal(fireTime time.Time) {
	defer func() {
		if r := recover(); r != nil {
			g.listener.OnError("error while sealing block", fmt.Errorf("%v", r))
		}
	}()

	var blk *Block
	g.mu.Lock()
	if len(g.buffer) > 0 {
		items := g.buffer
		g.buffer = nil
		id := BlockID{Producer: g.producer, IntervalStart: fireTime.Add(-g.interval).UnixMilli()}
		blk = &Block{ID: id, Items: items}
		g.listener.OnGenerateBlock(id)
	}
	g.mu.Unlock()

	if blk != nil {
		g.blocks <- blk
	}
}

// runWorker drains the hand-off queue, invoking OnPushBlock per block. The
// poll timeout keeps the goroutine responsive while the queue is idle. After
// a stop the closed channel delivers every remaining block before the
// receive reports closure, so the drain is complete by exit.
func (g *BatchGenerator) runWorker() {
	defer g.wg.Done()
	for {
		select {
		case blk, ok := <-g.blocks:
			if !ok {
				return
			}
			g.push(blk)
		case <-g.clk.After(g.pollTimeout):
		}
	}
}

func (g *BatchGenerator) push(blk *Block) {
	defer func() {
		if r := recover(); r != nil {
			g.listener.OnError("error while pushing block", fmt.Errorf("%v", r))
		}
	}()
	if err := g.listener.OnPushBlock(blk.ID, blk.Items); err != nil {
		g.listener.OnError("error while pushing block", err)
		return
	}
	g.logger.Debug("pushed block",
		logpkg.Str("block", blk.ID.String()),
		logpkg.Int("items", len(blk.Items)),
	)
}
