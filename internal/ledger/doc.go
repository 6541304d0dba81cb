// Package ledger tracks blocks handed off by receivers until they are
// allocated to batches and eventually purged. Every state change is first
// appended to a write-ahead log (when one is configured) and only applied in
// memory after the append succeeds, so replaying the log on startup
// reconstructs the exact pre-crash state: per-stream unallocated queues,
// batch allocations, and the allocation watermark.
package ledger
