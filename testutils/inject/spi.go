// Package inject provides function-field fakes of the bridge's collaborators for tests.
package inject

import (
	"context"

	"periph.io/x/conn/v3/spi"

	"go.viam.com/spibridge/components/spibridge/buses"
)

// SPI is an injected SPI bus.
type SPI struct {
	buses.SPI
	BusFunc        func() int
	OpenHandleFunc func() (buses.SPIHandle, error)
	CloseFunc      func(ctx context.Context) error
}

// Bus calls the injected Bus or the real version.
func (s *SPI) Bus() int {
	if s.BusFunc == nil {
		return s.SPI.Bus()
	}
	return s.BusFunc()
}

// OpenHandle calls the injected OpenHandle or the real version.
func (s *SPI) OpenHandle() (buses.SPIHandle, error) {
	if s.OpenHandleFunc == nil {
		return s.SPI.OpenHandle()
	}
	return s.OpenHandleFunc()
}

// Close calls the injected Close or the real version.
func (s *SPI) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		return s.SPI.Close(ctx)
	}
	return s.CloseFunc(ctx)
}

// SPIHandle is an injected locked SPI bus.
type SPIHandle struct {
	buses.SPIHandle
	SubmitFunc func(ctx context.Context, addr buses.Address, mode spi.Mode, t *buses.Transfer) (int, error)
	CloseFunc  func() error
}

// Submit calls the injected SubmitFunc or the real version.
func (h *SPIHandle) Submit(ctx context.Context, addr buses.Address, mode spi.Mode, t *buses.Transfer) (int, error) {
	if h.SubmitFunc == nil {
		return h.SPIHandle.Submit(ctx, addr, mode, t)
	}
	return h.SubmitFunc(ctx, addr, mode, t)
}

// Close calls the injected CloseFunc or the real version.
func (h *SPIHandle) Close() error {
	if h.CloseFunc == nil {
		return h.SPIHandle.Close()
	}
	return h.CloseFunc()
}
