package go_parallel_hash_table

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	defaultThreadsPerGroup = 1 << 8
	defaultWorkerCnt       = 4 * runtime.GOMAXPROCS(0) // 4 workers per cpu core
)

var (
	ErrCopyLengthMismatch = errors.New("copy length mismatch")
	ErrBudgetExceeded     = errors.New("device memory budget exceeded")
)

// pooledDevice runs kernels on a shared ants goroutine pool. One submitted
// task is one thread group; a launch blocks until every group has drained,
// so a pooledDevice needs no extra work inside Synchronize.
type pooledDevice struct {
	pool            *ants.Pool
	threadsPerGroup int
}

func NewPooledDevice() (IDevice, error) {
	pool, err := ants.NewPool(defaultWorkerCnt, ants.WithPanicHandler(func(v interface{}) {
		zap.L().Error("kernel group panicked", zap.Any("reason", v))
	}))
	if err != nil {
		return nil, err
	}

	return &pooledDevice{
		pool:            pool,
		threadsPerGroup: defaultThreadsPerGroup,
	}, nil
}

func (d *pooledDevice) AllocateExclusive(n uint32) ([]uint32, error) {
	return make([]uint32, n), nil
}

func (d *pooledDevice) AllocateShared(n uint32) ([]uint32, error) {
	return getSharedBuffer(int(n)), nil
}

func (d *pooledDevice) Free(buf []uint32) error {
	putSharedBuffer(buf)
	return nil
}

func (d *pooledDevice) Copy(dst, src []uint32) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%w: dst %d words, src %d words", ErrCopyLengthMismatch, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

func (d *pooledDevice) MaxThreadsPerGroup() int {
	return d.threadsPerGroup
}

func (d *pooledDevice) Launch(groups, threadsPerGroup int, itemCount uint32, kernel func(id uint32)) error {
	var wg sync.WaitGroup
	wg.Add(groups)

	for g := 0; g < groups; g++ {
		first := uint32(g * threadsPerGroup)
		last := first + uint32(threadsPerGroup)
		if last > itemCount {
			last = itemCount
		}

		task := func() {
			defer wg.Done()
			for id := first; id < last; id++ {
				kernel(id)
			}
		}
		if err := d.pool.Submit(task); err != nil {
			// unwind the groups that never got submitted
			for ; g < groups; g++ {
				wg.Done()
			}
			wg.Wait()
			return err
		}
	}

	wg.Wait()
	return nil
}

func (d *pooledDevice) Synchronize() {}

func (d *pooledDevice) Close() error {
	d.pool.Release()
	return nil
}

var _ IDevice = (*pooledDevice)(nil)

// budgetDevice decorates another device with a hard allocation budget, the
// shape a capacity-constrained test bench uses. Every allocation is charged
// 4 bytes per word until freed; exceeding the budget fails the allocation
// instead of growing it.
type budgetDevice struct {
	inner IDevice

	mu       sync.Mutex
	maxBytes int64
	inUsed   int64
}

func NewBudgetDevice(inner IDevice, maxBytes int64) IDevice {
	return &budgetDevice{
		inner:    inner,
		maxBytes: maxBytes,
	}
}

func (d *budgetDevice) charge(n uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sz := 4 * int64(n)
	if d.inUsed+sz > d.maxBytes {
		return fmt.Errorf("%w: in used %d bytes, requested %d bytes, budget %d bytes",
			ErrBudgetExceeded, d.inUsed, sz, d.maxBytes)
	}
	d.inUsed += sz
	return nil
}

// GetInUsed reports the bytes currently charged against the budget.
func (d *budgetDevice) GetInUsed() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inUsed
}

func (d *budgetDevice) AllocateExclusive(n uint32) ([]uint32, error) {
	if err := d.charge(n); err != nil {
		return nil, err
	}
	return d.inner.AllocateExclusive(n)
}

func (d *budgetDevice) AllocateShared(n uint32) ([]uint32, error) {
	if err := d.charge(n); err != nil {
		return nil, err
	}
	return d.inner.AllocateShared(n)
}

func (d *budgetDevice) Free(buf []uint32) error {
	d.mu.Lock()
	d.inUsed -= 4 * int64(len(buf))
	d.mu.Unlock()
	return d.inner.Free(buf)
}

func (d *budgetDevice) Copy(dst, src []uint32) error { return d.inner.Copy(dst, src) }

func (d *budgetDevice) MaxThreadsPerGroup() int { return d.inner.MaxThreadsPerGroup() }

func (d *budgetDevice) Launch(groups, threadsPerGroup int, itemCount uint32, kernel func(id uint32)) error {
	return d.inner.Launch(groups, threadsPerGroup, itemCount, kernel)
}

func (d *budgetDevice) Synchronize() { d.inner.Synchronize() }

func (d *budgetDevice) Close() error { return d.inner.Close() }

var _ IDevice = (*budgetDevice)(nil)
