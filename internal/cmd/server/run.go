package serverrun

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/iflink/spark/internal/config"
	"github.com/iflink/spark/internal/generator"
	"github.com/iflink/spark/internal/ledger"
	"github.com/iflink/spark/internal/ratelimit"
	"github.com/iflink/spark/internal/receiver"
	pebblestore "github.com/iflink/spark/internal/storage/pebble"
	"github.com/iflink/spark/internal/wal"
	logpkg "github.com/iflink/spark/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Input is the item source, one item per line. Defaults to stdin.
	Input io.Reader
}

// Run starts the ingestion pipeline and blocks until ctx is cancelled. Items
// read from Input flow through the receiver into stored blocks; the
// scheduler loop allocates them to batches and retires old allocations.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context. We
	// layer a local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	cfg := opts.Config

	logCfg := &logpkg.Config{
		Level:  getenvDefault("SPARK_LOG_LEVEL", cfg.LogLevel),
		Format: getenvDefault("SPARK_LOG_FORMAT", cfg.LogFormat),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		procLogger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)
	slog.SetDefault(logpkg.Slog(procLogger))

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       filepath.Join(opts.DataDir, "store"),
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	var w *wal.Log
	if cfg.Ledger.Durable {
		w, err = wal.Open(db, "ledger", wal.Options{
			RotationInterval: time.Duration(cfg.Ledger.RotationIntervalSec) * time.Second,
			Logger:           procLogger,
		})
		if err != nil {
			return err
		}
	}
	led, err := ledger.New(sctx, ledger.Options{WAL: w, Logger: procLogger})
	if err != nil {
		return err
	}
	defer led.Close()

	procLogger.Info("Starting spark server",
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Bool("durable", cfg.Ledger.Durable),
		logpkg.Int("block_interval_ms", cfg.Receiver.BlockIntervalMs),
		logpkg.Int("queue_capacity", cfg.Receiver.QueueCapacity),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
	)

	rcv := receiver.New(cfg.Receiver.ProducerID, receiver.NewPebbleBlockStore(db), led, receiver.Options{
		Generator: generator.Options{
			Interval:      time.Duration(cfg.Receiver.BlockIntervalMs) * time.Millisecond,
			QueueCapacity: cfg.Receiver.QueueCapacity,
			Limiter:       ratelimit.PerSecond(cfg.Receiver.MaxRatePerSec),
			Logger:        procLogger,
		},
		Logger: procLogger,
	})
	rcv.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ingest(sctx, rcv, opts.Input, procLogger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		schedule(sctx, led, cfg.Scheduler, procLogger)
	}()

	<-sctx.Done()
	// Stop the receiver before closing the ledger/DB so the final blocks
	// still land in storage.
	rcv.Stop()
	wg.Wait()
	return nil
}

// ingest submits one item per input line until EOF or cancellation.
func ingest(ctx context.Context, rcv *receiver.Receiver, in io.Reader, logger logpkg.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := rcv.Submit(ctx, sc.Text()); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("item rejected", logpkg.Err(err))
		}
	}
	if err := sc.Err(); err != nil {
		logger.Warn("input closed", logpkg.Err(err))
	}
}

// schedule periodically allocates pending blocks to batches and retires
// allocations older than the configured age.
func schedule(ctx context.Context, led *ledger.BlockLedger, cfg cfgpkg.SchedulerConfig, logger logpkg.Logger) {
	interval := time.Duration(cfg.BatchIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			batch := now.UnixMilli()
			if err := led.AllocateBlocksToBatch(ctx, batch); err != nil {
				logger.Error("batch allocation failed", logpkg.Err(err))
				continue
			}
			blocks := 0
			for _, q := range led.GetBlocksOfBatch(batch) {
				blocks += len(q)
			}
			if blocks > 0 {
				logger.Info("batch ready",
					logpkg.Int64("batch_ms", batch),
					logpkg.Int("blocks", blocks),
				)
			}
			if threshold := batch - cfg.CleanupAgeMs; threshold > 0 {
				if err := led.CleanupOldBatches(ctx, threshold, false); err != nil {
					logger.Error("batch cleanup failed", logpkg.Err(err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
