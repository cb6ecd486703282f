//go:build !unix

package buses

import (
	"os"

	"github.com/pkg/errors"
)

var errNoFlock = errors.New("cross-process SPI bus locks are only supported on unix systems")

func flockExclusive(f *os.File) error {
	return errNoFlock
}

func flockRelease(f *os.File) error {
	return errNoFlock
}
