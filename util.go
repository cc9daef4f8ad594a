package go_parallel_hash_table

var (
	B   = int64(1)
	KiB = 1024 * B
	MiB = 1024 * KiB
)
