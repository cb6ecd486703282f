package inject

import (
	"go.viam.com/spibridge/components/spibridge/scratch"
)

// Allocator is an injected scratch allocator.
type Allocator struct {
	scratch.Allocator
	AcquireFunc func(size int) (*scratch.Buffer, error)
}

// Acquire calls the injected AcquireFunc or the real version.
func (a *Allocator) Acquire(size int) (*scratch.Buffer, error) {
	if a.AcquireFunc == nil {
		return a.Allocator.Acquire(size)
	}
	return a.AcquireFunc(size)
}
