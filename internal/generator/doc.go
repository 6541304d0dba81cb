// Package generator implements the receiver-side batch generator: callers
// append opaque items into a buffer, a timer seals the buffer into an
// immutable block once per interval, and a dedicated worker drains sealed
// blocks to the listener's push callback.
//
// # Concurrency
//
// One mutex guards buffer mutation, the seal swap, and the OnAddData /
// OnGenerateBlock callbacks, so an append and a seal never observe a torn
// buffer. The hand-off queue between the timer and the worker is a bounded
// channel: a full queue stalls the timer goroutine (back-pressure on block
// production) while item admission stays open. OnPushBlock runs on the
// worker goroutine only and may block on slow storage without affecting
// sealing.
//
// Stop halts the timer, performs one final seal of the partial buffer, and
// blocks until the worker has drained every queued block.
package generator
