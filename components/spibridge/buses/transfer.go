package buses

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/spi"
)

// Direction is the data direction of a transfer, or the set of directions a peer supports.
type Direction int

const (
	// Receive clocks data in from the peer.
	Receive Direction = 1 << iota
	// Transmit clocks data out to the peer.
	Transmit
)

// CanReceive reports whether d includes Receive.
func (d Direction) CanReceive() bool {
	return d&Receive != 0
}

// CanTransmit reports whether d includes Transmit.
func (d Direction) CanTransmit() bool {
	return d&Transmit != 0
}

func (d Direction) String() string {
	switch d {
	case Receive:
		return "receive"
	case Transmit:
		return "transmit"
	case Receive | Transmit:
		return "receive+transmit"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Address locates one peer: a bus controller number and a chip select on it.
type Address struct {
	Bus        int `json:"bus"`
	ChipSelect int `json:"chip_select"`
}

// String returns the periph port name for the address, e.g. "SPI5.3".
func (a Address) String() string {
	return fmt.Sprintf("SPI%d.%d", a.Bus, a.ChipSelect)
}

// DevName returns the spidev node name for the address, e.g. "spidev5.3".
func (a Address) DevName() string {
	return fmt.Sprintf("spidev%d.%d", a.Bus, a.ChipSelect)
}

// ParseDevName parses a spidev node name such as "spidev5.3".
func ParseDevName(name string) (Address, bool) {
	var addr Address
	n, _ := fmt.Sscanf(name, "spidev%d.%d", &addr.Bus, &addr.ChipSelect)
	if n != 2 || addr.Bus < 0 || addr.ChipSelect < 0 {
		return Address{}, false
	}
	return addr, name == addr.DevName()
}

// ParsePortName parses a periph port name such as "SPI5.3".
func ParsePortName(name string) (Address, bool) {
	var addr Address
	n, _ := fmt.Sscanf(name, "SPI%d.%d", &addr.Bus, &addr.ChipSelect)
	if n != 2 || addr.Bus < 0 || addr.ChipSelect < 0 {
		return Address{}, false
	}
	return addr, name == addr.String()
}

// Transfer describes a single bus transaction. A Transfer is built fresh for every call and must
// not be reused once submitted.
type Transfer struct {
	// Len is the number of bytes to move. Buf must be at least Len bytes long.
	Len int
	// Dir is either Receive or Transmit.
	Dir Direction
	Buf []byte

	// SpeedHz and BitsPerWord of zero mean "use the bound peer's value".
	SpeedHz     uint32
	BitsPerWord uint8
	// WordDelay is the pause inserted between words.
	WordDelay time.Duration
	// CSHold keeps chip select asserted after the transfer completes.
	CSHold bool

	// When OverrideMode is set, Mode replaces the peer's signalling mode for this transfer only.
	OverrideMode bool
	Mode         spi.Mode
}

// Validate checks the transfer is well formed before it is handed to a controller.
func (t *Transfer) Validate() error {
	if t.Len <= 0 {
		return errors.Errorf("invalid transfer length %d", t.Len)
	}
	if len(t.Buf) < t.Len {
		return errors.Errorf("transfer buffer holds %d bytes, need %d", len(t.Buf), t.Len)
	}
	if t.Dir != Receive && t.Dir != Transmit {
		return errors.Errorf("transfer direction must be receive or transmit, got %s", t.Dir)
	}
	if t.SpeedHz == 0 || t.BitsPerWord == 0 {
		return errors.New("transfer speed and word width must be resolved before submission")
	}
	return nil
}
