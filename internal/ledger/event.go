package ledger

import (
	"encoding/json"
	"fmt"
)

// BlockDescriptor records one stored block: the stream it belongs to and an
// opaque reference to where its data lives.
type BlockDescriptor struct {
	StreamID   int    `json:"streamId"`
	StorageRef []byte `json:"storageRef,omitempty"`
}

// BatchAllocation maps the streams of one batch to the blocks allocated to
// them. Streams the ledger knows but that contributed nothing appear with an
// empty slice.
type BatchAllocation struct {
	BatchTime int64                     `json:"batchTime"`
	Streams   map[int][]BlockDescriptor `json:"streams"`
}

// Log event kinds. The wire form is one kind byte followed by the JSON body.
const (
	evtBlockAdded     byte = 1
	evtBatchAllocated byte = 2
	evtBatchesPurged  byte = 3
)

type blockAddedEvent struct {
	Block BlockDescriptor `json:"block"`
}

type batchAllocatedEvent struct {
	Allocation BatchAllocation `json:"allocation"`
}

type batchesPurgedEvent struct {
	Times []int64 `json:"times"`
}

func encodeEvent(kind byte, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", kind, err)
	}
	out := make([]byte, 0, 1+len(raw))
	out = append(out, kind)
	return append(out, raw...), nil
}

// decodeEvent splits a logged record into its kind byte and JSON body.
// Unknown kinds are rejected so a replay never silently drops state.
func decodeEvent(raw []byte) (byte, []byte, error) {
	if len(raw) < 1 {
		return 0, nil, fmt.Errorf("decode event: empty record")
	}
	kind := raw[0]
	if kind < evtBlockAdded || kind > evtBatchesPurged {
		return 0, nil, fmt.Errorf("decode event: unknown kind %d", kind)
	}
	return kind, raw[1:], nil
}
