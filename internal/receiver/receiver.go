package receiver

import (
	"context"

	"github.com/iflink/spark/internal/generator"
	"github.com/iflink/spark/internal/ledger"
	logpkg "github.com/iflink/spark/pkg/log"
)

// Options configures a Receiver. Generator options are passed through to the
// underlying batch generator.
type Options struct {
	Generator generator.Options
	Logger    logpkg.Logger
}

// Receiver owns one input stream: it runs a batch generator whose sealed
// blocks it stores and registers with the ledger. It is the generator's
// listener, so a slow store applies back-pressure on sealing, never on
// Submit.
type Receiver struct {
	streamID int
	store    BlockStore
	ledger   *ledger.BlockLedger
	logger   logpkg.Logger
	gen      *generator.BatchGenerator
}

// New builds a Receiver for streamID. The stream id doubles as the
// generator's producer id.
func New(streamID int, store BlockStore, led *ledger.BlockLedger, opts Options) *Receiver {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	r := &Receiver{
		streamID: streamID,
		store:    store,
		ledger:   led,
		logger:   opts.Logger.With(logpkg.Component("receiver"), logpkg.Int("stream", streamID)),
	}
	r.gen = generator.New(streamID, opts.Generator, r)
	return r
}

// Start begins sealing and storing blocks.
func (r *Receiver) Start() { r.gen.Start() }

// Stop seals the remaining buffer and waits until every queued block has
// been stored and registered.
func (r *Receiver) Stop() { r.gen.Stop() }

// Submit admits one item into the current block.
func (r *Receiver) Submit(ctx context.Context, item interface{}) error {
	return r.gen.AddData(ctx, item)
}

// SubmitWithMetadata admits one item and reports it through OnAddData with
// the supplied metadata.
func (r *Receiver) SubmitWithMetadata(ctx context.Context, item, metadata interface{}) error {
	return r.gen.AddDataWithCallback(ctx, item, metadata)
}

func (r *Receiver) OnAddData(item, metadata interface{}) {}

func (r *Receiver) OnGenerateBlock(id generator.BlockID) {
	r.logger.Debug("block sealed", logpkg.Str("block", id.String()))
}

// OnPushBlock stores the block then reports it to the ledger. Store first:
// a ledger entry must never point at data that failed to persist.
func (r *Receiver) OnPushBlock(id generator.BlockID, items []interface{}) error {
	ctx := context.Background()
	ref, err := r.store.Store(ctx, id, items)
	if err != nil {
		return err
	}
	return r.ledger.AddBlock(ctx, ledger.BlockDescriptor{StreamID: r.streamID, StorageRef: ref})
}

func (r *Receiver) OnError(msg string, cause error) {
	r.logger.Error(msg, logpkg.Err(cause))
}
