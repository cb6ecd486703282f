package binding

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"periph.io/x/conn/v3/spi/spireg"

	"go.viam.com/spibridge/components/spibridge/buses"
	"go.viam.com/spibridge/logging"
)

// DefaultMaxBus is how many controller numbers a scan tries when none is configured.
const DefaultMaxBus = 10

// Enumerator lists the peers present on one bus controller.
type Enumerator interface {
	Peers(ctx context.Context, bus int) ([]PeerInfo, error)
}

// Scan walks controllers 0 through maxBus-1 and returns the first peer whose name or one of whose
// aliases equals match. Every peer seen is logged.
func Scan(ctx context.Context, enum Enumerator, match string, maxBus int, logger logging.Logger) (PeerInfo, error) {
	if maxBus <= 0 {
		maxBus = DefaultMaxBus
	}
	for bus := 0; bus < maxBus; bus++ {
		if err := ctx.Err(); err != nil {
			return PeerInfo{}, err
		}
		peers, err := enum.Peers(ctx, bus)
		if err != nil {
			return PeerInfo{}, errors.Wrapf(err, "failed to list peers on SPI bus %d", bus)
		}
		if len(peers) == 0 {
			continue
		}
		logger.Debugw("found SPI controller", "bus", bus, "peers", len(peers))
		for _, p := range peers {
			logger.Debugw("found SPI peer", "name", p.Name, "aliases", p.Aliases, "addr", p.Addr)
		}
		if found, ok := lo.Find(peers, func(p PeerInfo) bool {
			return p.Name == match || lo.Contains(p.Aliases, match)
		}); ok {
			return found, nil
		}
	}
	return PeerInfo{}, errors.Wrapf(ErrNoPeerFound, "no peer named %q on SPI buses 0-%d", match, maxBus-1)
}

// SysfsEnumerator lists peers from the kernel's SPI bus directory, naming each by its modalias
// without the "spi:" prefix (e.g. "spidev"). The device directory name (e.g. "spi0.1") is an alias.
type SysfsEnumerator struct {
	// Root defaults to /sys/bus/spi/devices.
	Root string
}

// Peers implements Enumerator.
func (se SysfsEnumerator) Peers(ctx context.Context, bus int) ([]PeerInfo, error) {
	root := se.Root
	if root == "" {
		root = "/sys/bus/spi/devices"
	}
	dirs, err := filepath.Glob(filepath.Join(root, "spi*.*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	var peers []PeerInfo
	for _, dir := range dirs {
		devName := filepath.Base(dir)
		addr, ok := buses.ParseDevName("spidev" + strings.TrimPrefix(devName, "spi"))
		if !ok || addr.Bus != bus {
			continue
		}
		modalias, err := os.ReadFile(filepath.Join(dir, "modalias"))
		if err != nil {
			return nil, err
		}
		peers = append(peers, PeerInfo{
			Name:    strings.TrimPrefix(strings.TrimSpace(string(modalias)), "spi:"),
			Aliases: []string{devName},
			Addr:    addr,
		})
	}
	return peers, nil
}

// PeriphEnumerator lists peers from periph's SPI port registry. Ports are named "SPI<bus>.<cs>"
// and carry their device node (e.g. "/dev/spidev0.1") as an alias.
type PeriphEnumerator struct{}

// Peers implements Enumerator.
func (PeriphEnumerator) Peers(ctx context.Context, bus int) ([]PeerInfo, error) {
	if err := buses.InitHost(); err != nil {
		return nil, err
	}
	var peers []PeerInfo
	for _, ref := range spireg.All() {
		addr, ok := buses.ParsePortName(ref.Name)
		if !ok || addr.Bus != bus {
			continue
		}
		peers = append(peers, PeerInfo{Name: ref.Name, Aliases: append([]string(nil), ref.Aliases...), Addr: addr})
	}
	return peers, nil
}
