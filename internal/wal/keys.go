package wal

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - wal/{name}/m           (log metadata: lastSeq)
// - wal/{name}/e/{seq_be8} (entries)

var (
	walPrefix  = []byte("wal/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyMeta builds the log metadata key.
func keyMeta(name string) []byte {
	k := make([]byte, 0, len(name)+8)
	k = append(k, walPrefix...)
	k = append(k, name...)
	k = append(k, metaSuffix...)
	return k
}

// keyEntry builds the entry key with a big-endian sequence for proper ordering.
func keyEntry(name string, seq uint64) []byte {
	k := make([]byte, 0, len(name)+16)
	k = append(k, walPrefix...)
	k = append(k, name...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

// entryBounds returns the [low, high) key range covering all entries of a log.
func entryBounds(name string) (low, high []byte) {
	low = keyEntry(name, 0)
	high = append(keyEntry(name, ^uint64(0)), 0x00)
	return low, high
}
