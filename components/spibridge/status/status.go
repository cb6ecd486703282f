// Package status defines the error kinds a bridge reports to its callers and maps them to
// caller-visible status codes.
package status

import (
	"github.com/pkg/errors"

	"go.viam.com/spibridge/components/spibridge/binding"
	"go.viam.com/spibridge/components/spibridge/scratch"
)

var (
	// ErrNotReady is returned when a transaction is requested while no peer is bound.
	ErrNotReady = errors.New("no SPI peer is bound")
	// ErrInvalidRequest is returned for requests the peer's protocol cannot answer, such as a read
	// of anything but the frame size.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTransportFailure is returned when the bus controller reports a failed transaction.
	ErrTransportFailure = errors.New("SPI transport failure")
	// ErrBoundaryCopy is returned when fewer bytes crossed the caller boundary than intended.
	ErrBoundaryCopy = errors.New("caller buffer copy incomplete")
)

// Code is a caller-visible status.
type Code int

// The status codes.
const (
	OK Code = iota
	NotReady
	InvalidArgument
	ResourceExhausted
	TransportFailure
	PartialCopy
	BindingConflict
	Unknown
)

var codeNames = map[Code]string{
	OK:                "ok",
	NotReady:          "not-ready",
	InvalidArgument:   "invalid-argument",
	ResourceExhausted: "resource-exhausted",
	TransportFailure:  "transport-failure",
	PartialCopy:       "partial-copy",
	BindingConflict:   "binding-conflict",
	Unknown:           "unknown",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return codeNames[Unknown]
}

// Of returns the status code for err. A nil error is OK.
func Of(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrNotReady):
		return NotReady
	case errors.Is(err, ErrInvalidRequest):
		return InvalidArgument
	case errors.Is(err, scratch.ErrAllocationFailure):
		return ResourceExhausted
	case errors.Is(err, ErrTransportFailure):
		return TransportFailure
	case errors.Is(err, ErrBoundaryCopy):
		return PartialCopy
	case errors.Is(err, binding.ErrBindingConflict):
		return BindingConflict
	default:
		return Unknown
	}
}
