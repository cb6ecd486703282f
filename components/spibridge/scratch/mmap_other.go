//go:build !unix

package scratch

// NewMmapAllocator falls back to heap buffers where anonymous mappings are unavailable.
func NewMmapAllocator(limit int) Allocator {
	return NewHeapAllocator(limit)
}
