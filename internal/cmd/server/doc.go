// Package serverrun wires the ingestion pipeline together for the CLI:
// Pebble storage, the write-ahead log, the block ledger, a receiver fed from
// an input stream, and the batch scheduler loop.
package serverrun
