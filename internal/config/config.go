package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Receiver  ReceiverConfig  `json:"receiver" yaml:"receiver"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	LogLevel  string          `json:"logLevel" yaml:"logLevel"`
	LogFormat string          `json:"logFormat" yaml:"logFormat"`
}

// ReceiverConfig controls the batch generator feeding the receiver.
type ReceiverConfig struct {
	// ProducerID identifies this receiver's generator in block ids.
	ProducerID int `json:"producerId" yaml:"producerId"`
	// BlockIntervalMs is the seal interval controlling block granularity.
	BlockIntervalMs int `json:"blockIntervalMs" yaml:"blockIntervalMs"`
	// QueueCapacity bounds the sealed-block hand-off queue.
	QueueCapacity int `json:"queueCapacity" yaml:"queueCapacity"`
	// MaxRatePerSec throttles item admission; 0 disables throttling.
	MaxRatePerSec float64 `json:"maxRatePerSec" yaml:"maxRatePerSec"`
}

// LedgerConfig controls block bookkeeping durability.
type LedgerConfig struct {
	// Durable enables write-ahead logging of every ledger mutation.
	Durable bool `json:"durable" yaml:"durable"`
	// RotationIntervalSec sets the write-ahead log rotation window.
	RotationIntervalSec int `json:"rotationIntervalSec" yaml:"rotationIntervalSec"`
}

// SchedulerConfig controls the demo batch scheduler loop.
type SchedulerConfig struct {
	// BatchIntervalMs is the spacing between batch allocations.
	BatchIntervalMs int `json:"batchIntervalMs" yaml:"batchIntervalMs"`
	// CleanupAgeMs is how long completed allocations are retained.
	CleanupAgeMs int64 `json:"cleanupAgeMs" yaml:"cleanupAgeMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Receiver: ReceiverConfig{
			BlockIntervalMs: 200,
			QueueCapacity:   10,
		},
		Ledger: LedgerConfig{
			RotationIntervalSec: 60,
		},
		Scheduler: SchedulerConfig{
			BatchIntervalMs: 1000,
			CleanupAgeMs:    60_000,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
