package go_parallel_hash_table

import (
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Keep the load factor between these two values: growth is triggered above
// the maximum and lands the table at the minimum.
const (
	minLoadFactor = 0.5
	maxLoadFactor = 0.8
)

var defaultInitialCapacity = uint32(1 << 10)

// FaultPolicy decides what an unrecoverable device fault does to the
// process.
type FaultPolicy byte

const (
	// FaultFatal logs the fault and terminates the process. Default.
	FaultFatal FaultPolicy = iota
	// FaultPanic panics instead, so a capacity-constrained caller can
	// recover at a batch boundary.
	FaultPanic
)

type Stats struct {
	statSet    int64
	statUpdate int64
	statDrop   int64
	statGet    int64
	statGrow   int32
}

// hashTable represent the batched parallel hash table
type hashTable struct {
	// options
	hasherType HasherType
	policy     FaultPolicy

	dev     IDevice
	ownsDev bool
	hasher  IHasher
	stats   Stats

	closed bool
	state  *state
}

// NewTable allocates a sentinel-initialized table of initialCapacity slots.
func NewTable(initialCapacity uint32, opts ...Opt) IHashTable {
	h := &hashTable{
		hasherType: Jenkins,
		policy:     FaultFatal,
	}

	for _, opt := range opts {
		opt(h)
	}

	switch h.hasherType {
	case Jenkins:
		h.hasher = jenkinsHasher{}
	case Murmur:
		h.hasher = murmurHasher{}
	default:
		panic("invalid hasher type")
	}

	if h.dev == nil {
		dev, err := NewPooledDevice()
		if err != nil {
			h.fault("create device", err)
		}
		h.dev = dev
		h.ownsDev = true
	}

	if initialCapacity == 0 {
		initialCapacity = defaultInitialCapacity
	}

	st, err := newState(h.dev, initialCapacity)
	if err != nil {
		h.fault("allocate initial store", err)
	}
	h.state = st

	return h
}

// InsertBatch stages the batch into device visible buffers and claims one
// slot per key in a single parallel launch. The growth decision is taken
// against the projected occupancy before anything touches the store, so a
// finished batch always lands under the load factor ceiling.
func (h *hashTable) InsertBatch(keys, values []uint32) bool {
	n := uint32(len(keys))
	if n == 0 || h.closed {
		return false
	}
	if len(keys) != len(values) {
		zap.L().Error("insert batch with mismatched key/value lengths",
			zap.Int("keys", len(keys)), zap.Int("values", len(values)))
		return false
	}

	projected := h.state.used + n
	if float64(projected)/float64(h.state.capacity) > maxLoadFactor {
		h.Reshape(uint32(math.Ceil(float64(projected) / minLoadFactor)))
	}

	stagedKeys := h.stage(keys)
	defer h.unstage(stagedKeys)
	stagedValues := h.stage(values)
	defer h.unstage(stagedValues)

	var updates uint32
	if err := launch(h.dev, n, h.insertKernel(h.state, stagedKeys, stagedValues, &updates)); err != nil {
		h.fault("insert launch", err)
	}

	h.state.used += n - updates
	h.stats.statSet += int64(n)
	h.stats.statUpdate += int64(updates)
	return true
}

// GetBatch resolves every key against the current store in one parallel
// launch. Absent keys yield unspecified values.
func (h *hashTable) GetBatch(keys []uint32) []uint32 {
	n := uint32(len(keys))
	if n == 0 || h.closed {
		return nil
	}

	stagedKeys := h.stage(keys)
	defer h.unstage(stagedKeys)

	out, err := h.dev.AllocateShared(n)
	if err != nil {
		h.fault("allocate result buffer", err)
	}
	defer h.unstage(out)

	if err := launch(h.dev, n, h.lookupKernel(h.state, stagedKeys, out)); err != nil {
		h.fault("lookup launch", err)
	}

	values := make([]uint32, n)
	if err := h.dev.Copy(values, out); err != nil {
		h.fault("copy result buffer", err)
	}

	h.stats.statGet += int64(n)
	return values
}

// Reshape rehashes every live entry into a fresh store of newCapacity
// slots, one worker per old slot. The old store is released only after the
// launch barrier, when the new one is fully populated and installed.
func (h *hashTable) Reshape(newCapacity uint32) {
	if newCapacity == 0 || h.closed {
		return
	}

	next, err := newState(h.dev, newCapacity)
	if err != nil {
		h.fault("allocate reshaped store", err)
	}

	old := h.state
	if err := launch(h.dev, old.capacity, h.reshapeKernel(old, next)); err != nil {
		if relErr := next.release(h.dev); relErr != nil {
			zap.L().Error("release reshaped store", zap.Error(relErr))
		}
		h.fault("reshape launch", err)
	}

	next.used = old.used
	h.state = next
	h.stats.statGrow++

	if err := old.release(h.dev); err != nil {
		zap.L().Error("release old store", zap.Error(err))
	}
}

func (h *hashTable) Len() uint32 {
	if h.closed {
		return 0
	}
	return h.state.used
}

func (h *hashTable) Capacity() uint32 {
	if h.closed {
		return 0
	}
	return h.state.capacity
}

func (h *hashTable) LoadFactor() float64 {
	if h.closed {
		return 0
	}
	return h.state.loadFactor()
}

func (h *hashTable) GetStats() Stats {
	stats := h.stats
	stats.statDrop = atomic.LoadInt64(&h.stats.statDrop)
	return stats
}

func (h *hashTable) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	err := h.state.release(h.dev)
	h.state = nil
	if h.ownsDev {
		err = multierr.Append(err, h.dev.Close())
	}
	return err
}

// stage copies a host buffer into freshly acquired device visible memory.
func (h *hashTable) stage(src []uint32) []uint32 {
	buf, err := h.dev.AllocateShared(uint32(len(src)))
	if err != nil {
		h.fault("allocate staging buffer", err)
	}
	if err := h.dev.Copy(buf, src); err != nil {
		// give the buffer back before faulting so a recovering caller does
		// not leak it
		h.unstage(buf)
		h.fault("copy staging buffer", err)
	}
	return buf
}

func (h *hashTable) unstage(buf []uint32) {
	if err := h.dev.Free(buf); err != nil {
		zap.L().Error("free staging buffer", zap.Error(err))
	}
}

func (h *hashTable) fault(op string, err error) {
	if h.policy == FaultPanic {
		zap.L().Error("device fault", zap.String("op", op), zap.Error(err))
		panic(fmt.Sprintf("go-parallel-hash-table: %s: %v", op, err))
	}
	zap.L().Fatal("device fault", zap.String("op", op), zap.Error(err))
}

var _ IHashTable = (*hashTable)(nil)
