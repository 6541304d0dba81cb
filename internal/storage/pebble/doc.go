// Package pebblestore wraps a Pebble database with the fsync policy and the
// small helper surface the write-ahead log and block store need: atomic
// batches, point reads with value copies, bounded iterators, and range
// compaction after purges. Pebble's internal logging is routed through the
// injected Logger.
package pebblestore
