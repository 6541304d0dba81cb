package config

import (
	"os"
	"strconv"
)

// FromEnv overlays SPARK_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("SPARK_RECEIVER_PRODUCER_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Receiver.ProducerID = n
		}
	}
	if v := os.Getenv("SPARK_RECEIVER_BLOCK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Receiver.BlockIntervalMs = n
		}
	}
	if v := os.Getenv("SPARK_RECEIVER_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Receiver.QueueCapacity = n
		}
	}
	if v := os.Getenv("SPARK_RECEIVER_MAX_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Receiver.MaxRatePerSec = f
		}
	}
	if v := os.Getenv("SPARK_LEDGER_DURABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ledger.Durable = b
		}
	}
	if v := os.Getenv("SPARK_LEDGER_ROTATION_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ledger.RotationIntervalSec = n
		}
	}
	if v := os.Getenv("SPARK_SCHEDULER_BATCH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scheduler.BatchIntervalMs = n
		}
	}
	if v := os.Getenv("SPARK_SCHEDULER_CLEANUP_AGE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Scheduler.CleanupAgeMs = n
		}
	}
	if v := os.Getenv("SPARK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SPARK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}
