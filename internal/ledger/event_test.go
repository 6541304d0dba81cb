package ledger

import (
	"encoding/json"
	"testing"
)

func TestEventRoundTrip(t *testing.T) {
	in := batchAllocatedEvent{Allocation: BatchAllocation{
		BatchTime: 100,
		Streams: map[int][]BlockDescriptor{
			0: {{StreamID: 0, StorageRef: []byte("ref-a")}},
			1: nil,
		},
	}}
	raw, err := encodeEvent(evtBatchAllocated, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	kind, body, err := decodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if kind != evtBatchAllocated {
		t.Fatalf("kind: got %d", kind)
	}
	var out batchAllocatedEvent
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Allocation.BatchTime != 100 {
		t.Fatalf("batch time: got %d", out.Allocation.BatchTime)
	}
	if got := out.Allocation.Streams[0]; len(got) != 1 || string(got[0].StorageRef) != "ref-a" {
		t.Fatalf("stream 0: got %v", got)
	}
}

func TestDecodeEventRejectsUnknownKind(t *testing.T) {
	if _, _, err := decodeEvent([]byte{42, '{', '}'}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}

func TestDecodeEventRejectsEmptyRecord(t *testing.T) {
	if _, _, err := decodeEvent(nil); err == nil {
		t.Fatalf("empty record accepted")
	}
}
