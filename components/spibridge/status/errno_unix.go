//go:build unix

package status

import "golang.org/x/sys/unix"

// Errno maps the code to the errno a byte-stream caller would see.
func (c Code) Errno() unix.Errno {
	switch c {
	case OK:
		return 0
	case NotReady:
		return unix.ENODEV
	case InvalidArgument:
		return unix.EINVAL
	case ResourceExhausted:
		return unix.ENOMEM
	case PartialCopy:
		return unix.EFAULT
	case BindingConflict:
		return unix.EBUSY
	case TransportFailure, Unknown:
		return unix.EIO
	default:
		return unix.EIO
	}
}

// Errno returns the errno for err.
func Errno(err error) unix.Errno {
	return Of(err).Errno()
}
