// Package deventry registers named byte-stream device entries and dispatches callers to them.
package deventry

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

var (
	// ErrEntryExists is returned when creating an entry under a name already in use.
	ErrEntryExists = errors.New("device entry already exists")
	// ErrNoSuchEntry is returned when removing or looking up an unknown entry.
	ErrNoSuchEntry = errors.New("no such device entry")
)

// Ops are the operations a device entry is bound to.
type Ops interface {
	Open(ctx context.Context) error
	ReadTo(ctx context.Context, length int, w io.Writer) (int, error)
	WriteFrom(ctx context.Context, length int, r io.Reader) (int, error)
	Release(ctx context.Context) error
}

// A Registrar creates and removes device entries.
type Registrar interface {
	Create(ctx context.Context, name string, ops Ops) error
	Remove(ctx context.Context, name string) error
}

// MemRegistrar keeps entries in memory. The zero value is ready to use.
type MemRegistrar struct {
	mu      sync.RWMutex
	entries map[string]Ops
}

// NewMemRegistrar returns an empty registrar.
func NewMemRegistrar() *MemRegistrar {
	return &MemRegistrar{}
}

// Create implements Registrar.
func (mr *MemRegistrar) Create(ctx context.Context, name string, ops Ops) error {
	if name == "" {
		return errors.New("device entry name cannot be empty")
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if _, ok := mr.entries[name]; ok {
		return errors.Wrap(ErrEntryExists, name)
	}
	if mr.entries == nil {
		mr.entries = map[string]Ops{}
	}
	mr.entries[name] = ops
	return nil
}

// Remove implements Registrar.
func (mr *MemRegistrar) Remove(ctx context.Context, name string) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if _, ok := mr.entries[name]; !ok {
		return errors.Wrap(ErrNoSuchEntry, name)
	}
	delete(mr.entries, name)
	return nil
}

// Lookup returns the ops for name.
func (mr *MemRegistrar) Lookup(name string) (Ops, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	ops, ok := mr.entries[name]
	if !ok {
		return nil, errors.Wrap(ErrNoSuchEntry, name)
	}
	return ops, nil
}

// Names lists the registered entries in sorted order.
func (mr *MemRegistrar) Names() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	names := lo.Keys(mr.entries)
	sort.Strings(names)
	return names
}

// ReadEntry runs one open/read/release sequence against ops.
func ReadEntry(ctx context.Context, ops Ops, length int, w io.Writer) (n int, err error) {
	if err := ops.Open(ctx); err != nil {
		return 0, err
	}
	defer func() {
		err = multierr.Combine(err, ops.Release(ctx))
	}()
	return ops.ReadTo(ctx, length, w)
}

// WriteEntry runs one open/write/release sequence against ops.
func WriteEntry(ctx context.Context, ops Ops, length int, r io.Reader) (n int, err error) {
	if err := ops.Open(ctx); err != nil {
		return 0, err
	}
	defer func() {
		err = multierr.Combine(err, ops.Release(ctx))
	}()
	return ops.WriteFrom(ctx, length, r)
}
