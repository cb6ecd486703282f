// Package spibridge exposes one SPI peer as a byte-stream device entry.
//
// A Bridge owns a peer binding, an Executor that runs one transfer at a time under the bus lock,
// and an Endpoint implementing the open/read/write/release operations its device entry serves.
package spibridge

import (
	"context"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/spibridge/components/spibridge/binding"
	"go.viam.com/spibridge/components/spibridge/buses"
	"go.viam.com/spibridge/components/spibridge/status"
	"go.viam.com/spibridge/logging"
)

// The error kinds a bridge returns. See status.Of for the matching caller-visible codes.
var (
	ErrNotReady         = status.ErrNotReady
	ErrInvalidRequest   = status.ErrInvalidRequest
	ErrTransportFailure = status.ErrTransportFailure
	ErrBoundaryCopy     = status.ErrBoundaryCopy
)

// StatusOf returns the caller-visible status for err.
func StatusOf(err error) status.Code {
	return status.Of(err)
}

// Executor runs transfers against the bound peer, one at a time per bus.
type Executor struct {
	binding *binding.Binding
	logger  logging.Logger
}

// NewExecutor returns an executor for the peer bound in b.
func NewExecutor(b *binding.Binding, logger logging.Logger) *Executor {
	return &Executor{binding: b, logger: logger}
}

// Execute takes the bus lock, runs t against the bound peer and releases the lock. Zero speed or
// word width on t are filled from the peer. The peer's mode is used unless t overrides it; an
// override lasts only for this transaction.
//
// The context is only checked before the transfer is submitted. Once submitted it runs until the
// controller finishes or fails.
func (e *Executor) Execute(ctx context.Context, t *buses.Transfer) (n int, err error) {
	ctx, span := trace.StartSpan(ctx, "spibridge::Executor::Execute")
	defer span.End()

	handle, err := e.binding.Bus().OpenHandle()
	if err != nil {
		return 0, errors.Wrap(ErrTransportFailure, err.Error())
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()

	p, ok := e.binding.Peer()
	if !ok {
		return 0, ErrNotReady
	}
	if t.SpeedHz == 0 {
		t.SpeedHz = p.MaxSpeedHz
	}
	if t.BitsPerWord == 0 {
		t.BitsPerWord = p.BitsPerWord
	}
	mode := p.Mode
	if t.OverrideMode {
		mode = t.Mode
	}
	span.AddAttributes(
		trace.StringAttribute("addr", p.Addr.String()),
		trace.StringAttribute("dir", t.Dir.String()),
		trace.Int64Attribute("len", int64(t.Len)),
	)

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err = handle.Submit(ctx, p.Addr, mode, t)
	if err != nil {
		e.logger.Debugw("SPI transaction failed", "addr", p.Addr, "dir", t.Dir, "len", t.Len, "error", err)
		return 0, errors.Wrapf(ErrTransportFailure, "%s transfer of %d bytes to %s: %v", t.Dir, t.Len, p.Addr, err)
	}
	return n, nil
}
