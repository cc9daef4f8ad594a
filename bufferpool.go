package go_parallel_hash_table

import (
	"math/bits"
	"sync"
)

const maximumPoolCnt = 16

// sharedPools caches staging buffers of various capacities so each batch
// does not pay a fresh allocation for its key/value/result buffers.
//
//	sharedPools[0] is for capacities from 0 upto 256 words
//	sharedPools[1] is for capacities from 257 upto 512 words
//	...
//	sharedPools[n] is for capacities from 2^(n+7)+1 to 2^(n+8) words
var sharedPools [maximumPoolCnt]sync.Pool

func getSharedBuffer(n int) []uint32 {
	id, poolCap := getPoolIDAndCapacity(n)
	if n > poolCap {
		// beyond the largest pool class, allocate directly. putSharedBuffer
		// declines these on the way back.
		return make([]uint32, n)
	}
	if b := sharedPools[id].Get(); b != nil {
		buf := b.([]uint32)
		if cap(buf) >= n {
			return buf[:n]
		}
	}

	// the pool is empty, allocate poolCap words upfront
	return make([]uint32, n, poolCap)
}

func putSharedBuffer(buf []uint32) {
	capacity := cap(buf)
	id, poolCap := getPoolIDAndCapacity(capacity)
	if capacity > poolCap {
		// there is no available pool that can handle this size
		return
	}

	sharedPools[id].Put(buf[:0])
}

// getPoolIDAndCapacity predict the poolId from the given buffer size
// and return the pool maximum capacity
func getPoolIDAndCapacity(size int) (int, int) {
	size--
	size = max(size, 0)
	size >>= 8
	id := bits.Len(uint(size))
	id = min(id, maximumPoolCnt-1)
	return id, 1 << (id + 8)
}
