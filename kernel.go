package go_parallel_hash_table

import "sync/atomic"

// The three kernels below are the only code that touches slot arrays
// concurrently. Workers never talk to each other: the sole synchronization
// point is the compare-and-swap on a slot's key word, whose winner becomes
// that slot's exclusive writer for the rest of the launch.

// insertKernel claims one slot per staged key. Claiming an empty slot is a
// new insertion; meeting the key itself is an in-place value overwrite,
// tallied in updates so the host can keep the occupancy count honest;
// meeting any other key advances the probe. A probe sequence that wraps all
// the way back to its home bucket abandons the key.
func (h *hashTable) insertKernel(st *state, keys, values []uint32, updates *uint32) func(id uint32) {
	return func(id uint32) {
		key := keys[id]
		value := values[id]
		home := h.hasher.Hash(key) % st.capacity
		idx := home

		for {
			cur := atomic.LoadUint32(&st.keys[idx])
			if cur == key {
				atomic.StoreUint32(&st.values[idx], value)
				atomic.AddUint32(updates, 1)
				return
			}
			if cur == emptyKey {
				if atomic.CompareAndSwapUint32(&st.keys[idx], emptyKey, key) {
					atomic.StoreUint32(&st.values[idx], value)
					return
				}
				// lost the claim race, re-inspect the same slot: the winner
				// may have published this very key
				continue
			}

			idx = (idx + 1) % st.capacity
			if idx == home {
				// the whole probe sequence is occupied by other keys; the
				// key is dropped. The load factor ceiling keeps this branch
				// out of reach in practice.
				atomic.AddInt64(&h.stats.statDrop, 1)
				return
			}
		}
	}
}

// reshapeKernel migrates one old slot into the destination store. Distinct
// old slots hold distinct keys, so unlike insertKernel there is no update
// branch: a failed claim always means a foreign key sits there.
func (h *hashTable) reshapeKernel(old, dst *state) func(id uint32) {
	return func(id uint32) {
		key := old.keys[id]
		if key == emptyKey {
			return
		}
		value := old.values[id]
		home := h.hasher.Hash(key) % dst.capacity
		idx := home

		for {
			if atomic.CompareAndSwapUint32(&dst.keys[idx], emptyKey, key) {
				atomic.StoreUint32(&dst.values[idx], value)
				return
			}

			idx = (idx + 1) % dst.capacity
			if idx == home {
				atomic.AddInt64(&h.stats.statDrop, 1)
				return
			}
		}
	}
}

// lookupKernel resolves one staged key. The scan stops on the key itself or
// on the first empty slot; an absent key leaves its output word as staged,
// which is deliberately unspecified. There is no wrap guard: termination
// relies on the load factor ceiling keeping an empty slot reachable.
func (h *hashTable) lookupKernel(st *state, keys, out []uint32) func(id uint32) {
	return func(id uint32) {
		key := keys[id]
		home := h.hasher.Hash(key) % st.capacity
		idx := home

		for {
			cur := atomic.LoadUint32(&st.keys[idx])
			if cur == key {
				out[id] = atomic.LoadUint32(&st.values[idx])
				return
			}
			if cur == emptyKey {
				return
			}

			idx = (idx + 1) % st.capacity
		}
	}
}
