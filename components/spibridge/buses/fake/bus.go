// Package fake implements a simulated SPI bus for testing. The bus loops transmitted bytes back to
// the next receive and instruments its lock so tests can observe lock windows and transaction
// counts.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"periph.io/x/conn/v3/spi"

	"go.viam.com/spibridge/components/spibridge/buses"
)

// Record describes one submitted transfer.
type Record struct {
	Addr        buses.Address
	Mode        spi.Mode
	Dir         buses.Direction
	Len         int
	SpeedHz     uint32
	BitsPerWord uint8
	CSHold      bool
}

// Bus is a loopback SPI bus. The zero value is not usable; use NewBus.
type Bus struct {
	bus int

	lock sync.Mutex

	holders      atomic.Int32
	maxHolders   atomic.Int32
	overlaps     atomic.Int64
	lockCount    atomic.Int64
	transactions atomic.Int64
	closed       atomic.Bool

	mu      sync.Mutex
	pending []byte
	records []Record
	failErr error
	hold    time.Duration
}

var _ buses.SPI = (*Bus)(nil)

// NewBus returns a loopback bus with the given controller number.
func NewBus(bus int) *Bus {
	return &Bus{bus: bus}
}

// Opener returns a buses.Opener that hands out this bus for its own bus number.
func (b *Bus) Opener() buses.Opener {
	return func(bus int) (buses.SPI, error) {
		if bus != b.bus {
			return nil, errors.Errorf("no fake SPI bus %d", bus)
		}
		return b, nil
	}
}

// FailWith makes every following transfer report err. A nil err restores normal operation.
func (b *Bus) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failErr = err
}

// HoldFor makes every transfer keep the bus for d, widening lock windows in concurrency tests.
func (b *Bus) HoldFor(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hold = d
}

// Preload queues bytes for the next receive as if a peer had produced them.
func (b *Bus) Preload(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append([]byte(nil), data...)
}

// Bus returns the controller number.
func (b *Bus) Bus() int {
	return b.bus
}

// OpenHandle locks the bus.
func (b *Bus) OpenHandle() (buses.SPIHandle, error) {
	if b.closed.Load() {
		return nil, errors.New("fake SPI bus closed")
	}
	b.lock.Lock()
	b.lockCount.Inc()
	if n := b.holders.Inc(); n > 1 {
		b.overlaps.Inc()
	}
	for {
		cur, peak := b.holders.Load(), b.maxHolders.Load()
		if cur <= peak || b.maxHolders.CompareAndSwap(peak, cur) {
			break
		}
	}
	return &handle{bus: b}, nil
}

// Close marks the bus closed.
func (b *Bus) Close(ctx context.Context) error {
	b.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (b *Bus) Closed() bool {
	return b.closed.Load()
}

// LockCount returns how many times the bus lock was taken.
func (b *Bus) LockCount() int64 {
	return b.lockCount.Load()
}

// Transactions returns how many transfers were submitted.
func (b *Bus) Transactions() int64 {
	return b.transactions.Load()
}

// Overlaps returns how many times the lock was observed held by more than one handle.
func (b *Bus) Overlaps() int64 {
	return b.overlaps.Load()
}

// MaxHolders returns the largest number of simultaneous lock holders observed.
func (b *Bus) MaxHolders() int32 {
	return b.maxHolders.Load()
}

// Records returns a copy of every submitted transfer.
func (b *Bus) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record(nil), b.records...)
}

type handle struct {
	bus      *Bus
	isClosed bool
}

func (h *handle) Submit(ctx context.Context, addr buses.Address, mode spi.Mode, t *buses.Transfer) (int, error) {
	if h.isClosed {
		return 0, errors.New("can't use Submit() on an already closed SPIHandle")
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}
	b := h.bus
	b.transactions.Inc()

	b.mu.Lock()
	hold := b.hold
	failErr := b.failErr
	b.records = append(b.records, Record{
		Addr:        addr,
		Mode:        mode,
		Dir:         t.Dir,
		Len:         t.Len,
		SpeedHz:     t.SpeedHz,
		BitsPerWord: t.BitsPerWord,
		CSHold:      t.CSHold,
	})
	b.mu.Unlock()

	if hold > 0 {
		time.Sleep(hold)
	}
	if failErr != nil {
		return 0, failErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t.Dir == buses.Transmit {
		b.pending = append([]byte(nil), t.Buf[:t.Len]...)
		return t.Len, nil
	}
	if b.pending == nil {
		// An idle peer clocks out zeros for the whole transfer.
		clear(t.Buf[:t.Len])
		return t.Len, nil
	}
	n := copy(t.Buf[:t.Len], b.pending)
	b.pending = nil
	return n, nil
}

func (h *handle) Close() error {
	if h.isClosed {
		return errors.New("SPIHandle already closed")
	}
	h.isClosed = true
	h.bus.holders.Dec()
	h.bus.lock.Unlock()
	return nil
}
