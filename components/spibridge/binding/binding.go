// Package binding tracks which SPI peer, if any, a bridge currently owns.
//
// A Binding is either unbound or bound to exactly one peer. Binding while bound is refused and
// leaves the current peer untouched. Every transition takes the bus lock so it can never land in
// the middle of a transaction on the same bus.
package binding

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/spibridge/components/spibridge/buses"
	"go.viam.com/spibridge/components/spibridge/peer"
	"go.viam.com/spibridge/logging"
)

var (
	// ErrBindingConflict is returned when binding while a peer is already bound.
	ErrBindingConflict = errors.New("a peer is already bound")
	// ErrNotBound is returned when removing a peer while unbound.
	ErrNotBound = errors.New("no peer is bound")
	// ErrPeerMismatch is returned when removing or probing a peer this binding does not own.
	ErrPeerMismatch = errors.New("peer is not the one this binding owns")
	// ErrNoPeerFound is returned when a scan finds no matching peer.
	ErrNoPeerFound = errors.New("no matching SPI peer found")
)

// State is the binding state.
type State int

const (
	// Unbound means no peer is recorded and no transaction may run.
	Unbound State = iota
	// Bound means exactly one peer is recorded.
	Bound
)

func (s State) String() string {
	if s == Bound {
		return "bound"
	}
	return "unbound"
}

// PeerInfo identifies a peer offered for binding.
type PeerInfo struct {
	Name    string
	Aliases []string
	Addr    buses.Address
}

// Binding is the peer binding state machine for one bridge.
type Binding struct {
	bus     buses.SPI
	profile peer.Profile
	// want restricts Probe to one address; nil accepts any peer on the bus.
	want   *buses.Address
	logger logging.Logger

	mu      sync.RWMutex
	current *peer.Handle
}

func newBinding(bus buses.SPI, profile peer.Profile, want *buses.Address, logger logging.Logger) *Binding {
	return &Binding{bus: bus, profile: profile, want: want, logger: logger}
}

// NewDynamic returns an unbound binding for the peer at addr. Probe and Remove events drive it.
func NewDynamic(open buses.Opener, profile peer.Profile, addr buses.Address, logger logging.Logger) (*Binding, error) {
	bus, err := open(addr.Bus)
	if err != nil {
		return nil, err
	}
	return newBinding(bus, profile, &addr, logger), nil
}

// NewStatic synthesizes a peer at addr and binds it immediately.
func NewStatic(
	ctx context.Context,
	open buses.Opener,
	profile peer.Profile,
	addr buses.Address,
	logger logging.Logger,
) (*Binding, error) {
	b, err := NewDynamic(open, profile, addr, logger)
	if err != nil {
		return nil, err
	}
	if err := b.Bind(ctx, PeerInfo{Name: addr.String(), Addr: addr}); err != nil {
		return nil, multierr.Combine(err, b.bus.Close(ctx))
	}
	return b, nil
}

// NewScanned scans buses 0 through maxBus-1 in order and binds the first peer whose name or one of
// whose aliases equals match.
func NewScanned(
	ctx context.Context,
	open buses.Opener,
	enum Enumerator,
	profile peer.Profile,
	match string,
	maxBus int,
	logger logging.Logger,
) (*Binding, error) {
	info, err := Scan(ctx, enum, match, maxBus, logger)
	if err != nil {
		return nil, err
	}
	return NewStatic(ctx, open, profile, info.Addr, logger)
}

// Bus returns the bus the bound peer lives on.
func (b *Binding) Bus() buses.SPI {
	return b.bus
}

// Profile returns the protocol parameters applied at bind time.
func (b *Binding) Profile() peer.Profile {
	return b.profile
}

// State returns the current state.
func (b *Binding) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return Unbound
	}
	return Bound
}

// IsBound reports whether a peer is bound.
func (b *Binding) IsBound() bool {
	return b.State() == Bound
}

// Peer returns a copy of the bound peer's handle.
func (b *Binding) Peer() (peer.Handle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return peer.Handle{}, false
	}
	return *b.current, true
}

// Bind records info as the bound peer, applying the profile's protocol parameters.
func (b *Binding) Bind(ctx context.Context, info PeerInfo) (err error) {
	handle, err := b.bus.OpenHandle()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.logger.Infow("already have an SPI peer, refusing bind", "bound", b.current.Name, "offered", info.Name)
		return errors.Wrapf(ErrBindingConflict, "cannot bind %s while %s is bound", info.Name, b.current.Name)
	}
	if info.Addr.Bus != b.bus.Bus() {
		return errors.Wrapf(ErrPeerMismatch, "%s is not on SPI bus %d", info.Addr, b.bus.Bus())
	}
	h := b.profile.Apply(info.Name, info.Addr)
	b.current = &h
	b.logger.Infow("SPI peer bound",
		"peer", h.Name, "addr", h.Addr, "speed_hz", h.MaxSpeedHz, "bits_per_word", h.BitsPerWord, "mode", h.Mode)
	return nil
}

// Unbind forgets the bound peer if it lives at addr.
func (b *Binding) Unbind(ctx context.Context, addr buses.Address) (err error) {
	handle, err := b.bus.OpenHandle()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return ErrNotBound
	}
	if b.current.Addr != addr {
		b.logger.Infow("asked to remove an SPI peer we aren't using", "bound", b.current.Addr, "requested", addr)
		return errors.Wrapf(ErrPeerMismatch, "bound peer is %s, not %s", b.current.Addr, addr)
	}
	b.logger.Infow("SPI peer unbound", "peer", b.current.Name)
	b.current = nil
	return nil
}

// Probe handles a discovery event announcing a peer. Peers at other addresses are refused with
// ErrPeerMismatch.
func (b *Binding) Probe(ctx context.Context, info PeerInfo) error {
	if b.want != nil && info.Addr != *b.want {
		return errors.Wrapf(ErrPeerMismatch, "expected %s, probed %s", *b.want, info.Addr)
	}
	return b.Bind(ctx, info)
}

// Remove handles a discovery event announcing a peer went away.
func (b *Binding) Remove(ctx context.Context, addr buses.Address) error {
	return b.Unbind(ctx, addr)
}

// Close unbinds any bound peer and closes the bus.
func (b *Binding) Close(ctx context.Context) error {
	var err error
	if h, ok := b.Peer(); ok {
		err = b.Unbind(ctx, h.Addr)
	}
	return multierr.Combine(err, b.bus.Close(ctx))
}
