package inject

import (
	"context"

	"go.viam.com/spibridge/deventry"
)

// Registrar is an injected device entry registrar.
type Registrar struct {
	deventry.Registrar
	CreateFunc func(ctx context.Context, name string, ops deventry.Ops) error
	RemoveFunc func(ctx context.Context, name string) error
}

// Create calls the injected CreateFunc or the real version.
func (r *Registrar) Create(ctx context.Context, name string, ops deventry.Ops) error {
	if r.CreateFunc == nil {
		return r.Registrar.Create(ctx, name, ops)
	}
	return r.CreateFunc(ctx, name, ops)
}

// Remove calls the injected RemoveFunc or the real version.
func (r *Registrar) Remove(ctx context.Context, name string) error {
	if r.RemoveFunc == nil {
		return r.Registrar.Remove(ctx, name)
	}
	return r.RemoveFunc(ctx, name)
}
