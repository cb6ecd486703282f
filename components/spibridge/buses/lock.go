package buses

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// busMutexes holds one mutex per bus number so every SPI value in this process that refers to the
// same physical controller serializes on the same lock.
var busMutexes = struct {
	mu sync.Mutex
	m  map[int]*sync.Mutex
}{m: map[int]*sync.Mutex{}}

func sharedMutex(bus int) *sync.Mutex {
	busMutexes.mu.Lock()
	defer busMutexes.mu.Unlock()
	mu, ok := busMutexes.m[bus]
	if !ok {
		mu = &sync.Mutex{}
		busMutexes.m[bus] = mu
	}
	return mu
}

// BusLock is the exclusive lock for one bus controller. Within the process it is a mutex shared by
// bus number; when a lock directory is configured it additionally holds an advisory flock on
// <dir>/spi<bus>.lock so cooperating processes are excluded too.
type BusLock struct {
	bus  int
	mu   *sync.Mutex
	path string
	f    *os.File
}

// NewBusLock returns the lock for the given bus. An empty lockDir disables the cross-process lock.
func NewBusLock(bus int, lockDir string) *BusLock {
	l := &BusLock{bus: bus, mu: sharedMutex(bus)}
	if lockDir != "" {
		l.path = filepath.Join(lockDir, "spi"+strconv.Itoa(bus)+".lock")
	}
	return l
}

// Lock blocks until the bus is exclusively held.
func (l *BusLock) Lock() error {
	l.mu.Lock()
	if l.path == "" {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		l.mu.Unlock()
		return errors.Wrapf(err, "failed to open lock file for SPI bus %d", l.bus)
	}
	if err := flockExclusive(f); err != nil {
		l.mu.Unlock()
		return multierr.Combine(errors.Wrapf(err, "failed to lock SPI bus %d", l.bus), f.Close())
	}
	l.f = f
	return nil
}

// Unlock releases the bus. It must only be called after a successful Lock.
func (l *BusLock) Unlock() error {
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	return multierr.Combine(flockRelease(f), f.Close())
}
