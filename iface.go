package go_parallel_hash_table

// IHashTable is a fixed-schema uint32 -> uint32 table backed by a single
// shared slot array. Every batch operation runs as one parallel launch on
// the owning device; the caller must serialize InsertBatch / GetBatch /
// Reshape against a single table instance.
type IHashTable interface {
	// InsertBatch inserts (or overwrites in place) every keys[i] -> values[i]
	// pair. It returns false without touching the store when there is
	// nothing to do: an empty batch, mismatched key/value lengths, or a
	// closed table.
	InsertBatch(keys, values []uint32) bool

	// GetBatch returns one value per requested key, in a caller-owned
	// buffer. The value reported for a key that was never inserted is
	// unspecified.
	GetBatch(keys []uint32) []uint32

	// Reshape rehashes every live entry into a freshly allocated store of
	// newCapacity slots. It is also invoked internally by InsertBatch to
	// keep the load factor under its ceiling.
	Reshape(newCapacity uint32)

	Len() uint32
	Capacity() uint32
	LoadFactor() float64

	// utils

	GetStats() Stats
	Close() error
}

// IDevice abstracts the compute device the table lives on: buffer
// allocation, host<->device staging copies, a completion barrier and the
// parallel kernel launch primitive. The table issues no other calls to it.
type IDevice interface {
	// AllocateExclusive returns an n-word buffer owned by the device side
	// only (backing slot arrays).
	AllocateExclusive(n uint32) ([]uint32, error)

	// AllocateShared returns an n-word buffer visible to both sides
	// (staging buffers). Its initial contents are unspecified.
	AllocateShared(n uint32) ([]uint32, error)

	// Free releases a buffer obtained from either allocator.
	Free(buf []uint32) error

	// Copy moves len(dst) words between host and device visible memory.
	Copy(dst, src []uint32) error

	// MaxThreadsPerGroup reports the widest thread group a single launch
	// may use.
	MaxThreadsPerGroup() int

	// Launch runs kernel once per global id in [0, itemCount), spread over
	// groups x threadsPerGroup workers, and blocks until all of them finish.
	Launch(groups, threadsPerGroup int, itemCount uint32, kernel func(id uint32)) error

	// Synchronize is a barrier: it returns once every previously launched
	// worker is observable.
	Synchronize()

	Close() error
}

// IHasher turns a key into its home bucket ordinal. Implementations must
// be pure: the same key hashes identically at every call site.
type IHasher interface {
	Hash(key uint32) uint32
}
