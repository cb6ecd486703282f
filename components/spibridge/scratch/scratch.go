// Package scratch hands out the short-lived transfer buffers used for a single bus transaction.
//
// A Buffer is zeroed when acquired and must be released exactly once by the call that acquired
// it. Use With to tie the release to the end of a function.
package scratch

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

var (
	// ErrAllocationFailure is returned when a bus-eligible buffer cannot be provided.
	ErrAllocationFailure = errors.New("scratch buffer allocation failed")
	// ErrDoubleRelease is returned when a buffer is released more than once.
	ErrDoubleRelease = errors.New("scratch buffer already released")
)

// DefaultLimit is the largest buffer an allocator hands out unless configured otherwise.
const DefaultLimit = 1 << 20

// Allocator provides scratch buffers.
type Allocator interface {
	// Acquire returns a zeroed buffer of exactly size bytes, or an error wrapping
	// ErrAllocationFailure. No partial buffer is retained on failure.
	Acquire(size int) (*Buffer, error)
	Stats() Stats
}

// Stats counts buffers handed out and returned.
type Stats struct {
	Acquired int64
	Released int64
}

// Outstanding is the number of buffers acquired but not yet released.
func (s Stats) Outstanding() int64 {
	return s.Acquired - s.Released
}

// Buffer is one scratch region.
type Buffer struct {
	b        []byte
	free     func() error
	released atomic.Bool
	onFree   func()
}

// Bytes returns the buffer contents. It must not be used after Release.
func (buf *Buffer) Bytes() []byte {
	return buf.b
}

// Len returns the buffer size in bytes.
func (buf *Buffer) Len() int {
	return len(buf.b)
}

// Release returns the buffer to its allocator. Only the first call has an effect.
func (buf *Buffer) Release() error {
	if buf.released.Swap(true) {
		return ErrDoubleRelease
	}
	buf.onFree()
	b := buf.b
	buf.b = nil
	if buf.free == nil {
		clear(b)
		return nil
	}
	return buf.free()
}

// With acquires a buffer of size bytes, calls fn with it and releases it on every path out of fn,
// combining a release error with fn's error.
func With(alloc Allocator, size int, fn func(buf *Buffer) error) (err error) {
	buf, err := alloc.Acquire(size)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, buf.Release())
	}()
	return fn(buf)
}

type counters struct {
	acquired atomic.Int64
	released atomic.Int64
}

func (c *counters) Stats() Stats {
	return Stats{Acquired: c.acquired.Load(), Released: c.released.Load()}
}

func (c *counters) newBuffer(b []byte, free func() error) *Buffer {
	c.acquired.Inc()
	return &Buffer{b: b, free: free, onFree: func() { c.released.Inc() }}
}

func checkSize(size, limit int) error {
	if size <= 0 {
		return errors.Wrapf(ErrAllocationFailure, "invalid size %d", size)
	}
	if size > limit {
		return errors.Wrapf(ErrAllocationFailure, "%d bytes exceeds the %d byte limit", size, limit)
	}
	return nil
}

type heapAllocator struct {
	counters
	limit int
}

// NewHeapAllocator returns an allocator backed by ordinary Go memory. It suits backends that copy
// the buffer before handing it to the controller (periph) and tests. A limit <= 0 means
// DefaultLimit.
func NewHeapAllocator(limit int) Allocator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &heapAllocator{limit: limit}
}

func (ha *heapAllocator) Acquire(size int) (*Buffer, error) {
	if err := checkSize(size, ha.limit); err != nil {
		return nil, err
	}
	return ha.newBuffer(make([]byte, size), nil), nil
}
