//go:build !linux

package buses

import (
	"github.com/pkg/errors"

	"go.viam.com/spibridge/logging"
)

// NewSpidevOpener returns an Opener that always fails; spidev only exists on Linux.
func NewSpidevOpener(devDir, lockDir string, logger logging.Logger) Opener {
	return func(bus int) (SPI, error) {
		return nil, errors.New("the spidev backend is only supported on linux")
	}
}
