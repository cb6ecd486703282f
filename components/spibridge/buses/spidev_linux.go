//go:build linux

package buses

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/spi"

	"go.viam.com/spibridge/logging"
)

// spidev driver IOCTL control codes.
const (
	iocRdMode32 = 0x80046b05
	iocWrMode32 = 0x40046b05
)

// iocTransfer mirrors struct spi_ioc_transfer from linux/spi/spidev.h.
type iocTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Length         uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

// iocMessage returns SPI_IOC_MESSAGE(n).
func iocMessage(n int) uint32 {
	const (
		sizeBits  = 14
		sizeShift = 16
	)
	size := uint32(n * binary.Size(iocTransfer{}))
	if n < 0 || size > (1<<sizeBits) {
		return iocMessage(0)
	}
	return 0x40006b00 | (size << sizeShift)
}

type spidevBus struct {
	bus    int
	devDir string
	lock   *BusLock
	logger logging.Logger
}

type spidevHandle struct {
	bus      *spidevBus
	isClosed bool
}

// NewSpidevOpener returns an Opener for controllers driven directly through the spidev character
// devices in devDir (usually /dev). Unlike the periph backend it honours per-transfer clock speed,
// inter-word delay and chip-select hold, and reports the byte count returned by the kernel.
func NewSpidevOpener(devDir, lockDir string, logger logging.Logger) Opener {
	if devDir == "" {
		devDir = "/dev"
	}
	return func(bus int) (SPI, error) {
		return &spidevBus{bus: bus, devDir: devDir, lock: NewBusLock(bus, lockDir), logger: logger}, nil
	}
}

func (sb *spidevBus) Bus() int {
	return sb.bus
}

func (sb *spidevBus) OpenHandle() (SPIHandle, error) {
	if err := sb.lock.Lock(); err != nil {
		return nil, err
	}
	return &spidevHandle{bus: sb}, nil
}

func (sb *spidevBus) Close(ctx context.Context) error {
	return nil
}

func ioctl(fd uintptr, op uintptr, arg unsafe.Pointer) (uintptr, error) {
	r1, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, uintptr(arg))
	if errno != 0 {
		return 0, errno
	}
	return r1, nil
}

func (sh *spidevHandle) Submit(ctx context.Context, addr Address, mode spi.Mode, t *Transfer) (n int, err error) {
	if sh.isClosed {
		return 0, errors.New("can't use Submit() on an already closed SPIHandle")
	}
	if addr.Bus != sh.bus.bus {
		return 0, errors.Errorf("peer %s is not on SPI bus %d", addr, sh.bus.bus)
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(filepath.Join(sh.bus.devDir, addr.DevName()), os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	fd := f.Fd()

	// The mode lives on the spidev node and is seen by every other user of it, so it is forced
	// only for this transfer and put back before the bus is released.
	var priorMode uint32
	if _, err := ioctl(fd, iocRdMode32, unsafe.Pointer(&priorMode)); err != nil {
		return 0, errors.Wrap(err, "failed to read spidev mode")
	}
	wantMode := (priorMode &^ 0x3) | uint32(mode&0x3)
	if wantMode != priorMode {
		if _, err := ioctl(fd, iocWrMode32, unsafe.Pointer(&wantMode)); err != nil {
			return 0, errors.Wrap(err, "failed to set spidev mode")
		}
		defer func() {
			restore := priorMode
			_, rerr := ioctl(fd, iocWrMode32, unsafe.Pointer(&restore))
			err = multierr.Combine(err, errors.Wrap(rerr, "failed to restore spidev mode"))
		}()
	}

	xfer := iocTransfer{
		Length:         uint32(t.Len),
		SpeedHz:        t.SpeedHz,
		BitsPerWord:    t.BitsPerWord,
		WordDelayUsecs: wordDelayMicros(t.WordDelay),
	}
	if t.CSHold {
		xfer.CSChange = 1
	}
	bufPtr := uint64(uintptr(unsafe.Pointer(&t.Buf[0])))
	if t.Dir == Receive {
		xfer.RxBuf = bufPtr
	} else {
		xfer.TxBuf = bufPtr
	}
	moved, err := ioctl(fd, uintptr(iocMessage(1)), unsafe.Pointer(&xfer))
	runtime.KeepAlive(t.Buf)
	if err != nil {
		return 0, err
	}
	return int(moved), nil
}

func (sh *spidevHandle) Close() error {
	if sh.isClosed {
		return errors.New("SPIHandle already closed")
	}
	sh.isClosed = true
	return sh.bus.lock.Unlock()
}

func wordDelayMicros(d time.Duration) uint8 {
	us := d.Microseconds()
	switch {
	case us <= 0:
		return 0
	case us > 255:
		return 255
	default:
		return uint8(us)
	}
}
