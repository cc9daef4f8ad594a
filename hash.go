package go_parallel_hash_table

import (
	"encoding/binary"

	"github.com/twmb/murmur3"
)

type HasherType byte

const (
	Jenkins HasherType = iota
	Murmur
)

// jenkinsHasher is Bob Jenkins' 6-step 32-bit integer avalanche. The mix is
// fixed on purpose: the host-side and the kernel-side bucket computations
// must agree bit-for-bit, so there is no seed and no per-process state.
type jenkinsHasher struct{}

func (jenkinsHasher) Hash(key uint32) uint32 {
	key = (key + 0x7ed55d16) + (key << 12)
	key = (key ^ 0xc761c23c) ^ (key >> 19)
	key = (key + 0x165667b1) + (key << 5)
	key = (key + 0xd3a2646c) ^ (key << 9)
	key = (key + 0xfd7046c5) + (key << 3)
	key = (key ^ 0xb55a4f09) ^ (key >> 16)
	return key
}

// murmurHasher hashes the little-endian encoding of the key.
type murmurHasher struct{}

func (murmurHasher) Hash(key uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], key)
	return murmur3.Sum32(buf[:])
}

var (
	_ IHasher = jenkinsHasher{}
	_ IHasher = murmurHasher{}
)
