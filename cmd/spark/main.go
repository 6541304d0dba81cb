package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	serverrun "github.com/iflink/spark/internal/cmd/server"
	cfgpkg "github.com/iflink/spark/internal/config"
	pebblestore "github.com/iflink/spark/internal/storage/pebble"
	logpkg "github.com/iflink/spark/pkg/log"
)

func main() {
	// Respect SPARK_LOG_LEVEL for CLI output before the server applies its
	// own config.
	level := os.Getenv("SPARK_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "spark",
		Short: "Spark ingestion CLI",
		Long:  "Spark is a single-binary stream ingestion engine. Items read from stdin are sealed into blocks, stored, and tracked in a durable ledger.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the spark ingestion server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			blockIntervalMs, _ := cmd.Flags().GetInt("block-interval-ms")
			queueCapacity, _ := cmd.Flags().GetInt("queue-capacity")
			maxRate, _ := cmd.Flags().GetFloat64("max-rate")
			durable, _ := cmd.Flags().GetBool("durable")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}
			if blockIntervalMs > 0 {
				cfg.Receiver.BlockIntervalMs = blockIntervalMs
			}
			if queueCapacity > 0 {
				cfg.Receiver.QueueCapacity = queueCapacity
			}
			if maxRate > 0 {
				cfg.Receiver.MaxRatePerSec = maxRate
			}
			if cmd.Flags().Changed("durable") {
				cfg.Ledger.Durable = durable
			}

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("config", "", "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", os.Getenv("SPARK_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("SPARK_LOG_FORMAT"), "Log format: text|json (default text)")
	serverStartCmd.Flags().Int("block-interval-ms", 0, "Block seal interval in ms (default 200)")
	serverStartCmd.Flags().Int("queue-capacity", 0, "Sealed-block queue capacity (default 10)")
	serverStartCmd.Flags().Float64("max-rate", 0, "Max admitted items per second (0 = unlimited)")
	serverStartCmd.Flags().Bool("durable", false, "Write-ahead log every ledger mutation")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
