package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/iflink/spark/internal/config"
	pebblestore "github.com/iflink/spark/internal/storage/pebble"
)

func TestGetenvDefault(t *testing.T) {
	_ = os.Setenv("SPARK_TEST_VAR", "env_value")
	t.Cleanup(func() { _ = os.Unsetenv("SPARK_TEST_VAR") })
	if got := getenvDefault("SPARK_TEST_VAR", "default"); got != "env_value" {
		t.Errorf("set var: got %s", got)
	}
	if got := getenvDefault("SPARK_TEST_VAR_NOT_SET", "default"); got != "default" {
		t.Errorf("unset var: got %s", got)
	}
}

func TestOptionsDataDirFallback(t *testing.T) {
	opts := Options{DataDir: ""}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.DataDir == "" {
		t.Error("expected DataDir to be set after fallback")
	}
	if !filepath.IsAbs(opts.DataDir) && !strings.HasPrefix(opts.DataDir, "./") {
		t.Errorf("expected DataDir to be absolute or start with ./, got %s", opts.DataDir)
	}

	opts = Options{DataDir: "/custom/data"}
	if opts.DataDir != "/custom/data" {
		t.Errorf("provided DataDir not preserved: %s", opts.DataDir)
	}
}

// TestRunIntegration drives the full pipeline briefly: items flow from the
// input reader through the receiver into Pebble, then the context cancels.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := cfgpkg.Default()
	cfg.Receiver.BlockIntervalMs = 20
	cfg.Scheduler.BatchIntervalMs = 20
	cfg.Ledger.Durable = true

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := Run(ctx, Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfg,
		Input:   strings.NewReader("one\ntwo\nthree\n"),
	})
	if err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Errorf("expected context cancellation, got %v", err)
	}
}
