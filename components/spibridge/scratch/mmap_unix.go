//go:build unix

package scratch

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

type mmapAllocator struct {
	counters
	limit int
}

// NewMmapAllocator returns an allocator whose buffers are anonymous memory mappings locked into
// RAM. The mapping lives outside the Go heap, so its address never changes while the kernel
// reads or writes it, and it is zero-filled by the kernel. A limit <= 0 means DefaultLimit.
func NewMmapAllocator(limit int) Allocator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &mmapAllocator{limit: limit}
}

func (ma *mmapAllocator) Acquire(size int) (*Buffer, error) {
	if err := checkSize(size, ma.limit); err != nil {
		return nil, err
	}
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(ErrAllocationFailure, "mmap %d bytes: %v", size, err)
	}
	if err := unix.Mlock(region); err != nil {
		return nil, multierr.Combine(
			errors.Wrapf(ErrAllocationFailure, "mlock %d bytes: %v", size, err),
			unix.Munmap(region),
		)
	}
	return ma.newBuffer(region, func() error {
		return multierr.Combine(unix.Munlock(region), unix.Munmap(region))
	}), nil
}
