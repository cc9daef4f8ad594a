package go_parallel_hash_table

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomDistinctKeys returns n distinct keys, none equal to the empty
// sentinel.
func randomDistinctKeys(rng *rand.Rand, n int) []uint32 {
	seen := make(map[uint32]struct{}, n)
	keys := make([]uint32, 0, n)
	for len(keys) < n {
		k := rng.Uint32()
		if k == emptyKey {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func Test_HashTable_Insert_Then_Get_Sync(t *testing.T) {
	table := NewTable(8)
	defer table.Close()

	ok := table.InsertBatch([]uint32{1, 2, 3}, []uint32{10, 20, 30})
	assert.True(t, ok)
	assert.Equal(t, uint32(3), table.Len())
	assert.Equal(t, []uint32{10, 20, 30}, table.GetBatch([]uint32{1, 2, 3}))
}

func Test_HashTable_Update_In_Place(t *testing.T) {
	table := NewTable(8)
	defer table.Close()

	assert.True(t, table.InsertBatch([]uint32{5}, []uint32{100}))
	assert.Equal(t, uint32(1), table.Len())

	// second batch with the same key must not grow the occupancy
	assert.True(t, table.InsertBatch([]uint32{5}, []uint32{200}))
	assert.Equal(t, uint32(1), table.Len())
	assert.Equal(t, []uint32{200}, table.GetBatch([]uint32{5}))

	stats := table.GetStats()
	assert.Equal(t, int64(2), stats.statSet)
	assert.Equal(t, int64(1), stats.statUpdate)
}

func Test_HashTable_Proactive_Growth(t *testing.T) {
	table := NewTable(10)
	defer table.Close()

	keys := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	values := []uint32{11, 12, 13, 14, 15, 16, 17, 18, 19}

	// projected load factor 9/10 exceeds the ceiling, so the store must be
	// reshaped to ceil(9/0.5) = 18 slots before any key lands
	assert.True(t, table.InsertBatch(keys, values))
	assert.Equal(t, uint32(9), table.Len())
	assert.GreaterOrEqual(t, table.Capacity(), uint32(18))
	assert.LessOrEqual(t, table.LoadFactor(), 0.8)
	assert.Equal(t, values, table.GetBatch(keys))
	assert.Equal(t, int32(1), table.GetStats().statGrow)
}

func Test_HashTable_Lossless_Growth(t *testing.T) {
	table := NewTable(64)
	defer table.Close()

	rng := rand.New(rand.NewSource(7))
	keys := randomDistinctKeys(rng, 32) // 32/64 stays under the ceiling
	values := make([]uint32, len(keys))
	for i := range values {
		values[i] = rng.Uint32()
	}

	assert.True(t, table.InsertBatch(keys, values))
	assert.Equal(t, uint32(64), table.Capacity(), "no growth expected")
	assert.Equal(t, uint32(len(keys)), table.Len())
	assert.Equal(t, values, table.GetBatch(keys))
}

func Test_HashTable_Load_Factor_Ceiling_Across_Batches(t *testing.T) {
	table := NewTable(16)
	defer table.Close()

	rng := rand.New(rand.NewSource(42))
	keys := randomDistinctKeys(rng, 10_000)
	values := make([]uint32, len(keys))
	for i := range values {
		values[i] = rng.Uint32()
	}

	const batchSize = 700
	for lo := 0; lo < len(keys); lo += batchSize {
		hi := min(lo+batchSize, len(keys))
		require.True(t, table.InsertBatch(keys[lo:hi], values[lo:hi]))
		require.LessOrEqual(t, table.LoadFactor(), 0.8)
	}

	assert.Equal(t, uint32(len(keys)), table.Len())
	assert.Equal(t, values, table.GetBatch(keys))
	assert.Zero(t, table.GetStats().statDrop)
}

func Test_HashTable_Reshape_Preserves_Entries(t *testing.T) {
	table := NewTable(128)
	defer table.Close()

	rng := rand.New(rand.NewSource(3))
	keys := randomDistinctKeys(rng, 64)
	values := make([]uint32, len(keys))
	for i := range values {
		values[i] = rng.Uint32()
	}
	require.True(t, table.InsertBatch(keys, values))

	used := table.Len()
	table.Reshape(4096)
	assert.Equal(t, uint32(4096), table.Capacity())
	assert.Equal(t, used, table.Len())
	assert.Equal(t, values, table.GetBatch(keys))
}

func Test_HashTable_Empty_Batch(t *testing.T) {
	table := NewTable(8)
	defer table.Close()

	assert.False(t, table.InsertBatch(nil, nil))
	assert.Nil(t, table.GetBatch(nil))
	assert.Zero(t, table.Len())
}

func Test_HashTable_Mismatched_Batch(t *testing.T) {
	table := NewTable(8)
	defer table.Close()

	assert.False(t, table.InsertBatch([]uint32{1, 2}, []uint32{10}))
	assert.Zero(t, table.Len())
}

func Test_HashTable_Duplicate_Keys_Within_Batch(t *testing.T) {
	table := NewTable(8)
	defer table.Close()

	// both workers target the same key: one claims the slot, the other
	// lands on the update branch, so the key counts once. No ordering is
	// guaranteed between the two, the surviving value may be either.
	assert.True(t, table.InsertBatch([]uint32{9, 9}, []uint32{1, 2}))
	assert.Equal(t, uint32(1), table.Len())
	assert.Contains(t, []uint32{1, 2}, table.GetBatch([]uint32{9})[0])
}

func Test_HashTable_Murmur_Hasher(t *testing.T) {
	table := NewTable(32, WithHasherType(Murmur))
	defer table.Close()

	rng := rand.New(rand.NewSource(11))
	keys := randomDistinctKeys(rng, 200)
	values := make([]uint32, len(keys))
	for i := range values {
		values[i] = rng.Uint32()
	}

	assert.True(t, table.InsertBatch(keys, values))
	assert.Equal(t, values, table.GetBatch(keys))
}

func Test_HashTable_Closed(t *testing.T) {
	table := NewTable(8)
	require.True(t, table.InsertBatch([]uint32{1}, []uint32{10}))
	require.NoError(t, table.Close())

	assert.False(t, table.InsertBatch([]uint32{2}, []uint32{20}))
	assert.Nil(t, table.GetBatch([]uint32{1}))
	assert.NoError(t, table.Close(), "double close is a no-op")
}

func Test_HashTable_Undersized_Reshape_Drops_Keys(t *testing.T) {
	table := NewTable(16)
	defer table.Close()

	keys := []uint32{1, 2, 3, 4, 5, 6}
	values := []uint32{10, 20, 30, 40, 50, 60}
	require.True(t, table.InsertBatch(keys, values))

	// 6 live keys cannot all land in 4 slots: two probe sequences wrap all
	// the way around and their keys are dropped
	table.Reshape(4)
	assert.Equal(t, int64(2), table.GetStats().statDrop)
	assert.Equal(t, uint32(6), table.Len(), "occupancy bookkeeping is not drop-aware")

	// the next insert grows the store again and the table stays usable
	require.True(t, table.InsertBatch([]uint32{100, 101, 102}, []uint32{1000, 1010, 1020}))
	require.GreaterOrEqual(t, table.Capacity(), uint32(18))
	assert.Equal(t, []uint32{1000, 1010, 1020}, table.GetBatch([]uint32{100, 101, 102}))

	// the four keys that won a slot keep their values; the dropped two
	// report unspecified values
	got := table.GetBatch(keys)
	matches := 0
	for i := range keys {
		if got[i] == values[i] {
			matches++
		}
	}
	assert.GreaterOrEqual(t, matches, 4)
}

// copyFaultDevice fails every staging copy past the first failAfter calls.
type copyFaultDevice struct {
	IDevice
	failAfter int
	calls     int
}

func (d *copyFaultDevice) Copy(dst, src []uint32) error {
	d.calls++
	if d.calls > d.failAfter {
		return assert.AnError
	}
	return d.IDevice.Copy(dst, src)
}

func Test_HashTable_Staging_Released_On_Copy_Fault(t *testing.T) {
	inner, err := NewPooledDevice()
	require.NoError(t, err)
	defer inner.Close()

	budget := NewBudgetDevice(inner, 1*MiB).(*budgetDevice)
	dev := &copyFaultDevice{IDevice: budget}

	table := NewTable(16,
		WithDevice(dev),
		WithFaultPolicy(FaultPanic),
	)
	defer table.Close()

	before := budget.GetInUsed()
	assert.Panics(t, func() {
		table.InsertBatch([]uint32{1, 2, 3}, []uint32{10, 20, 30})
	})
	assert.Equal(t, before, budget.GetInUsed(), "staging buffer must be released on the fault path")
}

func Test_HashTable_Reshape_Releases_New_Store_On_Launch_Fault(t *testing.T) {
	inner, err := NewPooledDevice()
	require.NoError(t, err)

	budget := NewBudgetDevice(inner, 1*MiB).(*budgetDevice)
	table := NewTable(16,
		WithDevice(budget),
		WithFaultPolicy(FaultPanic),
	)
	defer table.Close()
	require.True(t, table.InsertBatch([]uint32{1}, []uint32{10}))

	// a closed device rejects every further launch
	require.NoError(t, inner.Close())

	before := budget.GetInUsed()
	assert.Panics(t, func() { table.Reshape(64) })
	assert.Equal(t, before, budget.GetInUsed(), "failed reshape must release the new store")
	assert.Equal(t, uint32(16), table.Capacity(), "old store stays installed")
}

func Test_HashTable_Budget_Device_Fault_Panics(t *testing.T) {
	inner, err := NewPooledDevice()
	require.NoError(t, err)
	defer inner.Close()

	// enough for the initial store (2 arrays x 16 slots x 4 bytes) and the
	// staging buffers of small batches, not enough to ever grow
	dev := NewBudgetDevice(inner, 8*KiB)

	table := NewTable(16,
		WithDevice(dev),
		WithFaultPolicy(FaultPanic),
	)
	defer table.Close()

	rng := rand.New(rand.NewSource(5))
	keys := randomDistinctKeys(rng, 2048)
	values := make([]uint32, len(keys))

	assert.Panics(t, func() {
		for lo := 0; lo < len(keys); lo += 64 {
			table.InsertBatch(keys[lo:lo+64], values[lo:lo+64])
		}
	}, "growth past the budget must fault")
}
