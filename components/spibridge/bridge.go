package spibridge

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/spibridge/components/spibridge/binding"
	"go.viam.com/spibridge/components/spibridge/buses"
	"go.viam.com/spibridge/components/spibridge/peer"
	"go.viam.com/spibridge/components/spibridge/scratch"
	"go.viam.com/spibridge/deventry"
	"go.viam.com/spibridge/discovery"
	"go.viam.com/spibridge/logging"
)

// Dependencies are the collaborators a bridge is built from. Any left nil is derived from the
// Config.
type Dependencies struct {
	OpenBus    buses.Opener
	Enumerator binding.Enumerator
	Allocator  scratch.Allocator
	Registrar  deventry.Registrar
}

// Bridge is one running driver instance: a bound peer exposed as a device entry.
type Bridge struct {
	name      string
	binding   *binding.Binding
	executor  *Executor
	endpoint  *Endpoint
	alloc     scratch.Allocator
	registrar deventry.Registrar
	watcher   *discovery.Watcher
	logger    logging.Logger
}

// NewBridge binds the configured peer and creates its device entry. If any step fails everything
// already done is undone.
func NewBridge(ctx context.Context, conf Config, deps Dependencies, logger logging.Logger) (*Bridge, error) {
	if err := conf.Validate(conf.Name); err != nil {
		return nil, err
	}
	if deps.Registrar == nil {
		return nil, errors.New("a device entry registrar is required")
	}
	profile, err := peer.ProfileByName(conf.Profile)
	if err != nil {
		return nil, err
	}
	profile = profile.WithOverrides(conf.SpeedHz, conf.BitsPerWord, conf.Mode)

	if deps.OpenBus == nil {
		deps.OpenBus, err = openerFor(conf, logger)
		if err != nil {
			return nil, err
		}
	}
	if deps.Allocator == nil {
		deps.Allocator, err = allocatorFor(conf)
		if err != nil {
			return nil, err
		}
	}

	b, err := newBinding(ctx, conf, deps, profile, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to bind %s peer for %q", profile.Name, conf.Name)
	}

	br := &Bridge{
		name:      conf.Name,
		binding:   b,
		alloc:     deps.Allocator,
		registrar: deps.Registrar,
		logger:    logger,
	}
	br.executor = NewExecutor(b, logger)
	br.endpoint = NewEndpoint(b, br.executor, deps.Allocator, logger)

	if conf.Binding.Strategy == StrategyDynamic {
		br.watcher, err = discovery.NewWatcher(ctx, conf.devDir(), conf.Binding.address(profile.DefaultAddress), b, logger)
		if err != nil {
			return nil, multierr.Combine(err, b.Close(ctx))
		}
	}

	if err := deps.Registrar.Create(ctx, conf.Name, br.endpoint); err != nil {
		var closeErr error
		if br.watcher != nil {
			closeErr = br.watcher.Close()
		}
		return nil, multierr.Combine(
			errors.Wrapf(err, "failed to create device entry %q", conf.Name),
			closeErr,
			b.Close(ctx),
		)
	}
	logger.Infow("SPI bridge started", "name", conf.Name, "profile", profile.Name, "state", b.State())
	return br, nil
}

func newBinding(
	ctx context.Context,
	conf Config,
	deps Dependencies,
	profile peer.Profile,
	logger logging.Logger,
) (*binding.Binding, error) {
	bc := conf.Binding
	switch bc.Strategy {
	case StrategyDynamic:
		return binding.NewDynamic(deps.OpenBus, profile, bc.address(profile.DefaultAddress), logger)
	case StrategyScan:
		enum := deps.Enumerator
		if enum == nil {
			if bc.Enumerator == EnumeratorPeriph {
				enum = binding.PeriphEnumerator{}
			} else {
				enum = binding.SysfsEnumerator{Root: bc.SysfsDir}
			}
		}
		return binding.NewScanned(ctx, deps.OpenBus, enum, profile, bc.match(profile), bc.maxBus(), logger)
	default:
		return binding.NewStatic(ctx, deps.OpenBus, profile, bc.address(profile.DefaultAddress), logger)
	}
}

func openerFor(conf Config, logger logging.Logger) (buses.Opener, error) {
	switch conf.Backend {
	case BackendSpidev:
		return buses.NewSpidevOpener(conf.devDir(), conf.LockDir, logger), nil
	case BackendPeriph, "":
		if err := buses.InitHost(); err != nil {
			return nil, err
		}
		return buses.NewPeriphOpener(conf.LockDir, logger), nil
	default:
		return nil, errors.Errorf("unknown SPI backend %q", conf.Backend)
	}
}

func allocatorFor(conf Config) (scratch.Allocator, error) {
	limit, err := conf.maxTransferBytes()
	if err != nil {
		return nil, err
	}
	if conf.Allocator == AllocatorHeap {
		return scratch.NewHeapAllocator(limit), nil
	}
	return scratch.NewMmapAllocator(limit), nil
}

// Name returns the device entry name.
func (br *Bridge) Name() string {
	return br.name
}

// Binding returns the bridge's peer binding.
func (br *Bridge) Binding() *binding.Binding {
	return br.binding
}

// Endpoint returns the operations the device entry is bound to.
func (br *Bridge) Endpoint() *Endpoint {
	return br.endpoint
}

// Allocator returns the scratch allocator, mostly so tests can check its counters.
func (br *Bridge) Allocator() scratch.Allocator {
	return br.alloc
}

// Close removes the device entry, unbinds the peer and closes the bus.
func (br *Bridge) Close(ctx context.Context) error {
	err := br.registrar.Remove(ctx, br.name)
	if br.watcher != nil {
		err = multierr.Combine(err, br.watcher.Close())
	}
	err = multierr.Combine(err, br.binding.Close(ctx))
	br.logger.Infow("SPI bridge stopped", "name", br.name)
	return err
}
