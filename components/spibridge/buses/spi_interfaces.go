// Package buses offers shareable SPI buses for Linux systems.
package buses

import (
	"context"

	"periph.io/x/conn/v3/spi"
)

// SPI represents a shareable SPI bus controller. Every SPI value for the same bus number shares
// one lock, so a handle excludes all other users of the physical bus, not just other users of
// one peer.
type SPI interface {
	// Bus returns the controller number, e.g. 5 for /dev/spidev5.*.
	Bus() int
	// OpenHandle locks the shared bus and returns a handle interface that MUST be closed when done.
	OpenHandle() (SPIHandle, error)
	Close(ctx context.Context) error
}

// SPIHandle is similar to an io handle. It MUST be closed to release the bus.
type SPIHandle interface {
	// Submit performs a single SPI transfer against the peer at addr, that is, the complete
	// transaction from chipselect enable to chipselect disable (unless the transfer asks for the
	// chip select to be held). The transfer's speed and word width must already be resolved.
	// mode is the signalling mode for this transfer only. It returns the number of bytes the
	// controller moved.
	Submit(ctx context.Context, addr Address, mode spi.Mode, t *Transfer) (int, error)

	// Close closes the handle and releases the lock on the bus.
	Close() error
}

// Opener opens the SPI controller with the given bus number.
type Opener func(bus int) (SPI, error)
