package go_parallel_hash_table

import (
	"math"

	"go.uber.org/multierr"
)

// emptyKey marks a free slot. A key with all bits set is never insertable.
const emptyKey = math.MaxUint32

// state is the entry store: the slot array plus its occupancy bookkeeping,
// kept structure-of-arrays so every slot mutation is a single 32-bit atomic
// op. A state is never resized in place; Reshape builds a new one, migrates
// the live entries and swaps the pointer, the same way the frozen-bucket
// hash maps replace their bucket state.
type state struct {
	keys     []uint32
	values   []uint32
	capacity uint32

	// used counts distinct live keys. Only the serialized host side moves
	// it, after each launch has drained.
	used uint32
}

func newState(dev IDevice, capacity uint32) (*state, error) {
	keys, err := dev.AllocateExclusive(capacity)
	if err != nil {
		return nil, err
	}
	values, err := dev.AllocateExclusive(capacity)
	if err != nil {
		return nil, multierr.Append(err, dev.Free(keys))
	}

	for i := range keys {
		keys[i] = emptyKey
	}

	return &state{
		keys:     keys,
		values:   values,
		capacity: capacity,
	}, nil
}

func (s *state) loadFactor() float64 {
	return float64(s.used) / float64(s.capacity)
}

// release frees both slot arrays. The caller must not touch the state
// afterwards.
func (s *state) release(dev IDevice) error {
	err := multierr.Append(dev.Free(s.keys), dev.Free(s.values))
	s.keys, s.values = nil, nil
	return err
}
