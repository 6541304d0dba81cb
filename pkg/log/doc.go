// Package log provides the structured logging facade used across the
// receiver components.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by Go's standard
// library slog via a custom handler that preserves the formatter/output
// pipeline, so callers can also obtain a *slog.Logger for libraries that
// speak slog natively.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("generator"))
//	l.Info("sealed block", log.Int64("interval_start_ms", 1200))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level + format).
// RedirectStdLog routes standard library log output (used by Pebble) through
// a Logger instance. No global default logger exists; construct and inject.
package log
