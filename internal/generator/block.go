package generator

import "fmt"

// BlockID uniquely identifies a sealed block. Producer is the owning
// generator's id; IntervalStart is the start of the sealed interval in unix
// milliseconds. Ids from one generator carry strictly increasing interval
// starts and are never reused.
type BlockID struct {
	Producer      int
	IntervalStart int64
}

// String renders the id in the canonical "input-{producer}-{start}" form.
func (id BlockID) String() string {
	return fmt.Sprintf("input-%d-%d", id.Producer, id.IntervalStart)
}

// Block is an immutable batch of items sealed from the buffer. Ownership
// moves to the hand-off queue and then to the push callback; the generator
// does not retain it.
type Block struct {
	ID    BlockID
	Items []interface{}
}
