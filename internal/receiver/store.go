package receiver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/iflink/spark/internal/generator"
	pebblestore "github.com/iflink/spark/internal/storage/pebble"
)

// BlockStore persists a sealed block's items and returns an opaque reference
// that later resolves the data.
type BlockStore interface {
	Store(ctx context.Context, id generator.BlockID, items []interface{}) (ref []byte, err error)
	Fetch(ctx context.Context, ref []byte) ([]interface{}, error)
}

const blockKeyPrefix = "block/"

func blockKey(id generator.BlockID) []byte {
	key := make([]byte, 0, len(blockKeyPrefix)+4+1+8)
	key = append(key, blockKeyPrefix...)
	key = binary.BigEndian.AppendUint32(key, uint32(id.Producer))
	key = append(key, '/')
	return binary.BigEndian.AppendUint64(key, uint64(id.IntervalStart))
}

// PebbleBlockStore keeps block payloads in the shared Pebble instance, keyed
// by producer and interval start so a producer's blocks sort in seal order.
type PebbleBlockStore struct {
	db *pebblestore.DB
}

func NewPebbleBlockStore(db *pebblestore.DB) *PebbleBlockStore {
	return &PebbleBlockStore{db: db}
}

// Store writes the items as one JSON value and returns the key as the
// storage reference.
func (s *PebbleBlockStore) Store(ctx context.Context, id generator.BlockID, items []interface{}) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("blockstore: encode %s: %w", id, err)
	}
	key := blockKey(id)
	if err := s.db.Set(key, val); err != nil {
		return nil, fmt.Errorf("blockstore: write %s: %w", id, err)
	}
	return key, nil
}

// Fetch resolves a reference produced by Store back into the block's items.
func (s *PebbleBlockStore) Fetch(ctx context.Context, ref []byte) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, err := s.db.Get(ref)
	if err != nil {
		return nil, fmt.Errorf("blockstore: read %q: %w", ref, err)
	}
	var items []interface{}
	if err := json.Unmarshal(val, &items); err != nil {
		return nil, fmt.Errorf("blockstore: decode %q: %w", ref, err)
	}
	return items, nil
}
