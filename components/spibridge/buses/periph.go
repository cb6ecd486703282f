package buses

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"go.viam.com/spibridge/logging"
)

var (
	hostInitOnce sync.Once
	errHostInit  error
)

// InitHost loads the periph host drivers exactly once per process.
func InitHost() error {
	hostInitOnce.Do(func() {
		_, errHostInit = host.Init()
	})
	return errHostInit
}

type periphBus struct {
	bus    int
	lock   *BusLock
	logger logging.Logger
}

type periphHandle struct {
	bus      *periphBus
	isClosed bool
}

// NewPeriphOpener returns an Opener for controllers driven through periph's spireg registry.
func NewPeriphOpener(lockDir string, logger logging.Logger) Opener {
	return func(bus int) (SPI, error) {
		if err := InitHost(); err != nil {
			return nil, errors.Wrap(err, "failed to initialize periph host drivers")
		}
		return &periphBus{bus: bus, lock: NewBusLock(bus, lockDir), logger: logger}, nil
	}
}

func (pb *periphBus) Bus() int {
	return pb.bus
}

func (pb *periphBus) OpenHandle() (SPIHandle, error) {
	if err := pb.lock.Lock(); err != nil {
		return nil, err
	}
	return &periphHandle{bus: pb}, nil
}

func (pb *periphBus) Close(ctx context.Context) error {
	return nil
}

func (ph *periphHandle) Submit(ctx context.Context, addr Address, mode spi.Mode, t *Transfer) (n int, err error) {
	if ph.isClosed {
		return 0, errors.New("can't use Submit() on an already closed SPIHandle")
	}
	if addr.Bus != ph.bus.bus {
		return 0, errors.Errorf("peer %s is not on SPI bus %d", addr, ph.bus.bus)
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if t.WordDelay != 0 {
		ph.bus.logger.Debugw("periph backend ignores inter-word delay", "peer", addr, "delay", t.WordDelay)
	}

	port, err := spireg.Open(addr.String())
	if err != nil {
		return 0, err
	}
	defer func() {
		err = multierr.Combine(err, port.Close())
	}()
	conn, err := port.Connect(physic.Hertz*physic.Frequency(t.SpeedHz), mode, int(t.BitsPerWord))
	if err != nil {
		return 0, err
	}

	pkt := spi.Packet{BitsPerWord: t.BitsPerWord, KeepCS: t.CSHold}
	if t.Dir == Receive {
		pkt.R = t.Buf[:t.Len]
	} else {
		pkt.W = t.Buf[:t.Len]
	}
	if err := conn.TxPackets([]spi.Packet{pkt}); err != nil {
		return 0, err
	}
	// periph reports failure as an error only; a completed packet moved every byte.
	return t.Len, nil
}

func (ph *periphHandle) Close() error {
	if ph.isClosed {
		return errors.New("SPIHandle already closed")
	}
	ph.isClosed = true
	return ph.bus.lock.Unlock()
}
