package binding

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/spibridge/components/spibridge/buses"
	"go.viam.com/spibridge/components/spibridge/buses/fake"
	"go.viam.com/spibridge/components/spibridge/peer"
	"go.viam.com/spibridge/logging"
)

var leptonAddr = buses.Address{Bus: 5, ChipSelect: 3}

func TestDynamicBinding(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	bus := fake.NewBus(5)

	b, err := NewDynamic(bus.Opener(), peer.Lepton, leptonAddr, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.State(), test.ShouldEqual, Unbound)
	_, ok := b.Peer()
	test.That(t, ok, test.ShouldBeFalse)

	t.Run("probe of another address is refused", func(t *testing.T) {
		err := b.Probe(ctx, PeerInfo{Name: "other", Addr: buses.Address{Bus: 5, ChipSelect: 0}})
		test.That(t, errors.Is(err, ErrPeerMismatch), test.ShouldBeTrue)
		test.That(t, b.IsBound(), test.ShouldBeFalse)
	})

	t.Run("bind of a peer on another bus is refused", func(t *testing.T) {
		err := b.Bind(ctx, PeerInfo{Name: "elsewhere", Addr: buses.Address{Bus: 6}})
		test.That(t, errors.Is(err, ErrPeerMismatch), test.ShouldBeTrue)
		test.That(t, b.IsBound(), test.ShouldBeFalse)
	})

	t.Run("probe binds with profile parameters", func(t *testing.T) {
		test.That(t, b.Probe(ctx, PeerInfo{Name: "lepton0", Addr: leptonAddr}), test.ShouldBeNil)
		test.That(t, b.State(), test.ShouldEqual, Bound)
		h, ok := b.Peer()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, h, test.ShouldResemble, peer.Lepton.Apply("lepton0", leptonAddr))
	})

	t.Run("second bind conflicts and leaves the binding unchanged", func(t *testing.T) {
		before, _ := b.Peer()
		err := b.Bind(ctx, PeerInfo{Name: "intruder", Addr: buses.Address{Bus: 5, ChipSelect: 1}})
		test.That(t, errors.Is(err, ErrBindingConflict), test.ShouldBeTrue)
		after, ok := b.Peer()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, after.MaxSpeedHz, test.ShouldEqual, before.MaxSpeedHz)
		test.That(t, after.BitsPerWord, test.ShouldEqual, before.BitsPerWord)
		test.That(t, after.Mode, test.ShouldEqual, before.Mode)
		test.That(t, after, test.ShouldResemble, before)
	})

	t.Run("bind on another bus while bound is a conflict", func(t *testing.T) {
		before, _ := b.Peer()
		err := b.Bind(ctx, PeerInfo{Name: "elsewhere", Addr: buses.Address{Bus: 6}})
		test.That(t, errors.Is(err, ErrBindingConflict), test.ShouldBeTrue)
		after, ok := b.Peer()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, after, test.ShouldResemble, before)
	})

	t.Run("removing a peer we don't own has no effect", func(t *testing.T) {
		err := b.Remove(ctx, buses.Address{Bus: 5, ChipSelect: 1})
		test.That(t, errors.Is(err, ErrPeerMismatch), test.ShouldBeTrue)
		test.That(t, b.IsBound(), test.ShouldBeTrue)
	})

	t.Run("remove unbinds", func(t *testing.T) {
		test.That(t, b.Remove(ctx, leptonAddr), test.ShouldBeNil)
		test.That(t, b.State(), test.ShouldEqual, Unbound)
		test.That(t, errors.Is(b.Remove(ctx, leptonAddr), ErrNotBound), test.ShouldBeTrue)
	})

	test.That(t, b.Close(ctx), test.ShouldBeNil)
	test.That(t, bus.Closed(), test.ShouldBeTrue)
	test.That(t, bus.Transactions(), test.ShouldEqual, int64(0))
}

func TestStaticBinding(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	bus := fake.NewBus(5)

	b, err := NewStatic(ctx, bus.Opener(), peer.Lepton, leptonAddr, logger)
	test.That(t, err, test.ShouldBeNil)
	h, ok := b.Peer()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, h.Name, test.ShouldEqual, "SPI5.3")
	test.That(t, h.BitsPerWord, test.ShouldEqual, uint8(16))
	test.That(t, b.Bus().Bus(), test.ShouldEqual, 5)

	err = b.Bind(ctx, PeerInfo{Name: "elsewhere", Addr: buses.Address{Bus: 4}})
	test.That(t, errors.Is(err, ErrBindingConflict), test.ShouldBeTrue)

	test.That(t, b.Close(ctx), test.ShouldBeNil)
	test.That(t, b.IsBound(), test.ShouldBeFalse)

	_, err = NewStatic(ctx, bus.Opener(), peer.Lepton, buses.Address{Bus: 6}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBindWaitsForBusLock(t *testing.T) {
	ctx := context.Background()
	bus := fake.NewBus(5)
	b, err := NewDynamic(bus.Opener(), peer.Lepton, leptonAddr, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	inFlight, err := bus.OpenHandle()
	test.That(t, err, test.ShouldBeNil)

	done := make(chan error, 1)
	go func() {
		done <- b.Bind(ctx, PeerInfo{Name: "lepton", Addr: leptonAddr})
	}()
	select {
	case <-done:
		t.Fatal("bind completed while a transaction held the bus")
	case <-time.After(50 * time.Millisecond):
	}
	test.That(t, b.IsBound(), test.ShouldBeFalse)

	test.That(t, inFlight.Close(), test.ShouldBeNil)
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, b.IsBound(), test.ShouldBeTrue)
	test.That(t, bus.Overlaps(), test.ShouldEqual, int64(0))
}

type mapEnumerator map[int][]PeerInfo

func (m mapEnumerator) Peers(ctx context.Context, bus int) ([]PeerInfo, error) {
	if bus == 9 {
		return nil, errors.New("controller 9 is broken")
	}
	return m[bus], nil
}

func TestScannedBinding(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	enum := mapEnumerator{
		0: {{Name: "ads7955", Addr: buses.Address{Bus: 0, ChipSelect: 0}}},
		2: {
			{Name: "spi_max3111", Addr: buses.Address{Bus: 2, ChipSelect: 0}},
			{Name: "spidev", Addr: buses.Address{Bus: 2, ChipSelect: 1}},
		},
		3: {{Name: "spidev", Addr: buses.Address{Bus: 3, ChipSelect: 0}}},
	}

	bus := fake.NewBus(2)
	b, err := NewScanned(ctx, bus.Opener(), enum, peer.ST7735, "spidev", 4, logger)
	test.That(t, err, test.ShouldBeNil)
	h, ok := b.Peer()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, h.Addr, test.ShouldResemble, buses.Address{Bus: 2, ChipSelect: 1})
	test.That(t, h.Name, test.ShouldEqual, "SPI2.1")

	_, err = Scan(ctx, enum, "ili9341", 4, logger)
	test.That(t, errors.Is(err, ErrNoPeerFound), test.ShouldBeTrue)

	_, err = Scan(ctx, enum, "ili9341", 10, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "controller 9 is broken")

	found, err := Scan(ctx, mapEnumerator{1: {{Name: "x", Aliases: []string{"spi1.0"}, Addr: buses.Address{Bus: 1}}}}, "spi1.0", 2, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found.Name, test.ShouldEqual, "x")
}

func TestSysfsEnumerator(t *testing.T) {
	root := t.TempDir()
	for dir, modalias := range map[string]string{
		"spi0.0": "spi:ads7955\n",
		"spi1.0": "spi:spidev\n",
		"spi1.1": "spi:st7735\n",
	} {
		test.That(t, os.MkdirAll(filepath.Join(root, dir), 0o755), test.ShouldBeNil)
		test.That(t, os.WriteFile(filepath.Join(root, dir, "modalias"), []byte(modalias), 0o644), test.ShouldBeNil)
	}

	peers, err := SysfsEnumerator{Root: root}.Peers(context.Background(), 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, peers, test.ShouldResemble, []PeerInfo{
		{Name: "spidev", Aliases: []string{"spi1.0"}, Addr: buses.Address{Bus: 1, ChipSelect: 0}},
		{Name: "st7735", Aliases: []string{"spi1.1"}, Addr: buses.Address{Bus: 1, ChipSelect: 1}},
	})

	peers, err = SysfsEnumerator{Root: root}.Peers(context.Background(), 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, peers, test.ShouldBeEmpty)
}
