package go_parallel_hash_table

type Opt func(h *hashTable)

// WithDevice injects the compute device the table lives on. The table does
// not close an injected device.
func WithDevice(dev IDevice) Opt {
	return func(h *hashTable) {
		h.dev = dev
	}
}

func WithHasherType(hasherType HasherType) Opt {
	return func(h *hashTable) {
		h.hasherType = hasherType
	}
}

func WithFaultPolicy(policy FaultPolicy) Opt {
	return func(h *hashTable) {
		h.policy = policy
	}
}
