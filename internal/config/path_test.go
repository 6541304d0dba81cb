package config

import (
	"strings"
	"testing"
)

func TestDefaultDataDirNonEmpty(t *testing.T) {
	dir := DefaultDataDir()
	if dir == "" {
		t.Fatalf("empty data dir")
	}
}

func TestDefaultDataDirXDGOverride(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	dir := DefaultDataDir()
	if !strings.HasPrefix(dir, "/tmp/xdg-data") {
		t.Fatalf("XDG override ignored: %q", dir)
	}
}
