// Package wal implements the durable append-only log backing the block
// ledger.
//
// # Overview
//
// Records are persisted in Pebble under lexicographically ordered keys so a
// sequential scan replays them in append order:
//   - wal/{name}/m           (metadata: lastSeq)
//   - wal/{name}/e/{seq_be8} (entries)
//
// Each entry is framed as varint(headerLen) | header | payload |
// crc32c(header|payload), where the header is the 8-byte big-endian write
// timestamp in unix milliseconds. The timestamp drives time-based
// reclamation: PurgeBefore deletes entries whose rotation window closed
// before the threshold, either synchronously or on a background goroutine.
//
// Records whose checksum fails to validate during ReadAll are skipped; a
// torn tail after a crash must not poison recovery.
package wal
