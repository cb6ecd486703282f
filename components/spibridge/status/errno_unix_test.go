//go:build unix

package status

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"golang.org/x/sys/unix"

	"go.viam.com/spibridge/components/spibridge/binding"
	"go.viam.com/spibridge/components/spibridge/scratch"
)

func TestErrno(t *testing.T) {
	for _, tc := range []struct {
		err   error
		errno unix.Errno
	}{
		{nil, 0},
		{errors.Wrap(ErrNotReady, "read"), unix.ENODEV},
		{errors.Wrapf(ErrInvalidRequest, "length %d", 100), unix.EINVAL},
		{errors.Wrap(scratch.ErrAllocationFailure, "mlock"), unix.ENOMEM},
		{errors.Wrap(ErrTransportFailure, "ioctl"), unix.EIO},
		{ErrBoundaryCopy, unix.EFAULT},
		{binding.ErrBindingConflict, unix.EBUSY},
		{errors.New("whoops"), unix.EIO},
	} {
		test.That(t, Errno(tc.err), test.ShouldEqual, tc.errno)
	}
}
