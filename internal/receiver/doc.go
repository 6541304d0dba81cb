// Package receiver connects a batch generator to block storage and the
// ledger. Items submitted to a Receiver are buffered and sealed into blocks
// by the generator; each sealed block is written to the configured BlockStore
// and only then reported to the ledger, so the ledger never references data
// that was not stored.
package receiver
