package wal

import (
	"testing"
)

func TestEntryRoundTrip(t *testing.T) {
	enc := encodeEntry(123456, []byte("payload"))
	ts, payload, ok := decodeEntry(enc)
	if !ok {
		t.Fatalf("decode failed")
	}
	if ts != 123456 {
		t.Fatalf("ts: got %d", ts)
	}
	if string(payload) != "payload" {
		t.Fatalf("payload: got %q", payload)
	}
}

func TestDecodeRejectsBitFlip(t *testing.T) {
	enc := encodeEntry(99, []byte("payload"))
	enc[len(enc)/2] ^= 0x01
	if _, _, ok := decodeEntry(enc); ok {
		t.Fatalf("expected checksum failure")
	}
}

func TestDecodeRejectsTruncation(t *testing.T) {
	enc := encodeEntry(99, []byte("payload"))
	for i := 0; i < len(enc); i++ {
		if _, _, ok := decodeEntry(enc[:i]); ok {
			t.Fatalf("accepted truncated record at %d bytes", i)
		}
	}
}

func TestEmptyPayload(t *testing.T) {
	enc := encodeEntry(7, nil)
	ts, payload, ok := decodeEntry(enc)
	if !ok || ts != 7 || len(payload) != 0 {
		t.Fatalf("empty payload round trip: ok=%v ts=%d payload=%v", ok, ts, payload)
	}
}
