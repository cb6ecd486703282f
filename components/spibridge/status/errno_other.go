//go:build !unix && !plan9

package status

import "syscall"

// Errno maps the code to the errno a byte-stream caller would see. Off unix these are the
// syscall package's stand-in values.
func (c Code) Errno() syscall.Errno {
	switch c {
	case OK:
		return 0
	case NotReady:
		return syscall.ENODEV
	case InvalidArgument:
		return syscall.EINVAL
	case ResourceExhausted:
		return syscall.ENOMEM
	case PartialCopy:
		return syscall.EFAULT
	case BindingConflict:
		return syscall.EBUSY
	case TransportFailure, Unknown:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

// Errno returns the errno for err.
func Errno(err error) syscall.Errno {
	return Of(err).Errno()
}
