// Package peer describes the SPI peers a bridge can drive and the handle recorded when one is bound.
package peer

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/spi"

	"go.viam.com/spibridge/components/spibridge/buses"
)

// Profile holds the fixed protocol parameters for one kind of peer.
type Profile struct {
	Name      string
	Direction buses.Direction
	// FrameSize is the only read length the peer answers. Zero means reads are unsupported or
	// variable.
	FrameSize int

	SpeedHz     uint32
	BitsPerWord uint8
	Mode        spi.Mode

	// FixedTransferParams puts SpeedHz and BitsPerWord on every transfer instead of deferring to
	// the bound peer's recorded values.
	FixedTransferParams bool
	// When ForceTransferMode is set every transfer runs in TransferMode regardless of the peer's
	// mode.
	ForceTransferMode bool
	TransferMode      spi.Mode
	CSHold            bool
	WordDelay         time.Duration

	// DefaultAddress is used by static binding when no address is configured.
	DefaultAddress buses.Address
	// DefaultMatch is the peer name scanned for when no match is configured.
	DefaultMatch string
}

const leptonSpeedHz = 12500000

var (
	// Lepton is the FLIR Lepton thermal camera VoSPI interface: fixed 164 byte packets read with
	// 16 bit words in mode 3.
	Lepton = Profile{
		Name:           "lepton",
		Direction:      buses.Receive,
		FrameSize:      164,
		SpeedHz:        leptonSpeedHz,
		BitsPerWord:    16,
		Mode:           spi.Mode3,
		DefaultAddress: buses.Address{Bus: 5, ChipSelect: 3},
		DefaultMatch:   "spidev",
	}

	// ST7735 is the ST7735 TFT display controller: variable length writes of 8 bit words, always
	// clocked in mode 0.
	ST7735 = Profile{
		Name:                "st7735",
		Direction:           buses.Transmit,
		SpeedHz:             12500000,
		BitsPerWord:         8,
		Mode:                spi.Mode0,
		FixedTransferParams: true,
		ForceTransferMode:   true,
		TransferMode:        spi.Mode0,
		DefaultMatch:        "spidev",
	}

	// Loopback is a peer wired MISO to MOSI. It reads like a Lepton but in 8 bit words and also
	// accepts writes.
	Loopback = Profile{
		Name:        "loopback",
		Direction:   buses.Receive | buses.Transmit,
		FrameSize:   164,
		SpeedHz:     1000000,
		BitsPerWord: 8,
		Mode:        spi.Mode0,
	}
)

var profiles = map[string]Profile{
	Lepton.Name:   Lepton,
	ST7735.Name:   ST7735,
	Loopback.Name: Loopback,
}

// ProfileByName looks up a built in profile.
func ProfileByName(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, errors.Errorf("unknown peer profile %q, expected one of %s", name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

// ProfileNames lists the built in profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithOverrides returns a copy of p with any non-zero override applied.
func (p Profile) WithOverrides(speedHz uint32, bitsPerWord uint8, mode *int) Profile {
	if speedHz != 0 {
		p.SpeedHz = speedHz
	}
	if bitsPerWord != 0 {
		p.BitsPerWord = bitsPerWord
	}
	if mode != nil {
		p.Mode = spi.Mode(*mode)
	}
	return p
}

// Apply records the profile's protocol parameters on a handle for the peer at addr.
func (p Profile) Apply(name string, addr buses.Address) Handle {
	return Handle{
		Name:        name,
		Addr:        addr,
		MaxSpeedHz:  p.SpeedHz,
		BitsPerWord: p.BitsPerWord,
		Mode:        p.Mode,
	}
}

// Handle is the bound peer. Values are copies; the binding owns the authoritative one.
type Handle struct {
	Name        string
	Addr        buses.Address
	MaxSpeedHz  uint32
	BitsPerWord uint8
	Mode        spi.Mode
}
