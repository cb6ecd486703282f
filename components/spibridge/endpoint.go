package spibridge

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"go.viam.com/spibridge/components/spibridge/binding"
	"go.viam.com/spibridge/components/spibridge/buses"
	"go.viam.com/spibridge/components/spibridge/peer"
	"go.viam.com/spibridge/components/spibridge/scratch"
	"go.viam.com/spibridge/logging"
)

// Endpoint implements the byte-stream operations of a bridge's device entry. It keeps no state
// between calls: each accepted read or write is one scratch buffer and one bus transaction.
type Endpoint struct {
	binding  *binding.Binding
	profile  peer.Profile
	executor *Executor
	alloc    scratch.Allocator
	logger   logging.Logger
}

// NewEndpoint returns an endpoint for the peer bound in b.
func NewEndpoint(b *binding.Binding, exec *Executor, alloc scratch.Allocator, logger logging.Logger) *Endpoint {
	return &Endpoint{binding: b, profile: b.Profile(), executor: exec, alloc: alloc, logger: logger}
}

// Open does nothing; the endpoint is stateless.
func (ep *Endpoint) Open(ctx context.Context) error {
	return nil
}

// Release does nothing; the endpoint is stateless.
func (ep *Endpoint) Release(ctx context.Context) error {
	return nil
}

func (ep *Endpoint) transfer(dir buses.Direction, buf *scratch.Buffer) *buses.Transfer {
	t := &buses.Transfer{
		Len:       buf.Len(),
		Dir:       dir,
		Buf:       buf.Bytes(),
		CSHold:    ep.profile.CSHold,
		WordDelay: ep.profile.WordDelay,
	}
	if ep.profile.FixedTransferParams {
		t.SpeedHz = ep.profile.SpeedHz
		t.BitsPerWord = ep.profile.BitsPerWord
	}
	if ep.profile.ForceTransferMode {
		t.OverrideMode = true
		t.Mode = ep.profile.TransferMode
	}
	return t
}

// ReadTo reads one frame of length bytes from the peer and copies it to w. The count returned is
// the number of bytes the controller moved minus any that could not be delivered to w; a short
// delivery also returns ErrBoundaryCopy.
func (ep *Endpoint) ReadTo(ctx context.Context, length int, w io.Writer) (int, error) {
	if !ep.profile.Direction.CanReceive() {
		return 0, errors.Wrapf(ErrInvalidRequest, "%s peers cannot be read", ep.profile.Name)
	}
	if length != ep.profile.FrameSize {
		return 0, errors.Wrapf(ErrInvalidRequest, "read length must be %d, not %d", ep.profile.FrameSize, length)
	}
	if !ep.binding.IsBound() {
		return 0, ErrNotReady
	}

	var delivered int
	err := scratch.With(ep.alloc, length, func(buf *scratch.Buffer) error {
		transferred, err := ep.executor.Execute(ctx, ep.transfer(buses.Receive, buf))
		if err != nil {
			return err
		}
		if transferred > length {
			transferred = length
		}
		delivered, err = w.Write(buf.Bytes()[:transferred])
		if uncopied := transferred - delivered; uncopied > 0 || err != nil {
			ep.logger.Debugw("could not deliver whole frame", "transferred", transferred, "uncopied", uncopied, "error", err)
			return errors.Wrapf(ErrBoundaryCopy, "delivered %d of %d bytes", delivered, transferred)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrBoundaryCopy) {
		return 0, err
	}
	return delivered, err
}

// Read reads one frame into p. len(p) must equal the peer's frame size.
func (ep *Endpoint) Read(ctx context.Context, p []byte) (int, error) {
	return ep.ReadTo(ctx, len(p), &sliceWriter{p: p})
}

// WriteFrom copies length bytes from r into a scratch buffer and transmits them. If r cannot
// supply length bytes nothing is transmitted and ErrBoundaryCopy is returned.
func (ep *Endpoint) WriteFrom(ctx context.Context, length int, r io.Reader) (int, error) {
	if !ep.profile.Direction.CanTransmit() {
		return 0, errors.Wrapf(ErrInvalidRequest, "%s peers cannot be written", ep.profile.Name)
	}
	if length < 0 {
		return 0, errors.Wrapf(ErrInvalidRequest, "negative write length %d", length)
	}
	if !ep.binding.IsBound() {
		return 0, ErrNotReady
	}
	if length == 0 {
		return 0, nil
	}

	var written int
	err := scratch.With(ep.alloc, length, func(buf *scratch.Buffer) error {
		if copied, err := io.ReadFull(r, buf.Bytes()); err != nil {
			return errors.Wrapf(ErrBoundaryCopy, "read %d of %d bytes from caller: %v", copied, length, err)
		}
		n, err := ep.executor.Execute(ctx, ep.transfer(buses.Transmit, buf))
		if err != nil {
			return err
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Write transmits p.
func (ep *Endpoint) Write(ctx context.Context, p []byte) (int, error) {
	return ep.WriteFrom(ctx, len(p), bytes.NewReader(p))
}

// sliceWriter fills a caller slice without growing it.
type sliceWriter struct {
	p   []byte
	off int
}

func (sw *sliceWriter) Write(b []byte) (int, error) {
	n := copy(sw.p[sw.off:], b)
	sw.off += n
	if n < len(b) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
