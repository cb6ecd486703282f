package spibridge

import (
	"fmt"
	"math"

	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/spibridge/components/spibridge/binding"
	"go.viam.com/spibridge/components/spibridge/buses"
	"go.viam.com/spibridge/components/spibridge/peer"
	"go.viam.com/spibridge/components/spibridge/scratch"
)

// Backends, binding strategies, enumerators and allocators a Config may name.
const (
	BackendPeriph = "periph"
	BackendSpidev = "spidev"

	StrategyStatic  = "static"
	StrategyScan    = "scan"
	StrategyDynamic = "dynamic"

	EnumeratorSysfs  = "sysfs"
	EnumeratorPeriph = "periph"

	AllocatorMmap = "mmap"
	AllocatorHeap = "heap"
)

// DefaultDevDir is where spidev nodes are looked for when a Config names no dev_dir.
const DefaultDevDir = "/dev"

// A Config describes one bridge: the peer it drives, how it finds that peer and the entry it is
// exposed as.
type Config struct {
	// Name is the device entry name.
	Name    string        `json:"name"`
	Profile string        `json:"profile"`
	Backend string        `json:"backend,omitempty"`
	Binding BindingConfig `json:"binding"`

	// Overrides of the profile's protocol parameters.
	SpeedHz     uint32 `json:"speed_hz,omitempty"`
	BitsPerWord uint8  `json:"bits_per_word,omitempty"`
	Mode        *int   `json:"mode,omitempty"`

	Allocator string `json:"allocator,omitempty"`
	// MaxTransfer caps the scratch buffer of a single transfer, e.g. "64KiB". Defaults to
	// scratch.DefaultLimit.
	MaxTransfer string `json:"max_transfer,omitempty"`
	LockDir     string `json:"lock_dir,omitempty"`
	DevDir      string `json:"dev_dir,omitempty"`
}

// BindingConfig selects how the bridge's peer is bound.
type BindingConfig struct {
	Strategy   string `json:"strategy"`
	Bus        *int   `json:"bus,omitempty"`
	ChipSelect *int   `json:"chip_select,omitempty"`

	// Scan only.
	Match      string `json:"match,omitempty"`
	MaxBus     int    `json:"max_bus,omitempty"`
	Enumerator string `json:"enumerator,omitempty"`
	SysfsDir   string `json:"sysfs_dir,omitempty"`
}

func checkOneOf(path, field, value string, allowed ...string) error {
	if value == "" || lo.Contains(allowed, value) {
		return nil
	}
	return utils.NewConfigValidationError(path, errors.Errorf("%s must be one of %v, got %q", field, allowed, value))
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.Profile == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "profile")
	}
	if _, err := peer.ProfileByName(conf.Profile); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if err := checkOneOf(path, "backend", conf.Backend, BackendPeriph, BackendSpidev); err != nil {
		return err
	}
	if err := checkOneOf(path, "allocator", conf.Allocator, AllocatorMmap, AllocatorHeap); err != nil {
		return err
	}
	if conf.Mode != nil && (*conf.Mode < 0 || *conf.Mode > 3) {
		return utils.NewConfigValidationError(path, errors.Errorf("mode must be between 0 and 3, got %d", *conf.Mode))
	}
	if conf.BitsPerWord > 32 {
		return utils.NewConfigValidationError(path, errors.Errorf("bits_per_word must be at most 32, got %d", conf.BitsPerWord))
	}
	if _, err := conf.maxTransferBytes(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return conf.Binding.Validate(fmt.Sprintf("%s.%s", path, "binding"))
}

// Validate ensures all parts of the config are valid.
func (conf *BindingConfig) Validate(path string) error {
	switch conf.Strategy {
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "strategy")
	case StrategyDynamic:
		if conf.Bus == nil {
			return utils.NewConfigValidationFieldRequiredError(path, "bus")
		}
		if conf.ChipSelect == nil {
			return utils.NewConfigValidationFieldRequiredError(path, "chip_select")
		}
	case StrategyStatic:
		if (conf.Bus == nil) != (conf.ChipSelect == nil) {
			return utils.NewConfigValidationError(path, errors.New("bus and chip_select must be set together"))
		}
	case StrategyScan:
		if conf.MaxBus < 0 {
			return utils.NewConfigValidationError(path, errors.New("max_bus cannot be negative"))
		}
		if err := checkOneOf(path, "enumerator", conf.Enumerator, EnumeratorSysfs, EnumeratorPeriph); err != nil {
			return err
		}
	default:
		return checkOneOf(path, "strategy", conf.Strategy, StrategyStatic, StrategyScan, StrategyDynamic)
	}
	for _, v := range []*int{conf.Bus, conf.ChipSelect} {
		if v != nil && *v < 0 {
			return utils.NewConfigValidationError(path, errors.New("bus and chip_select cannot be negative"))
		}
	}
	return nil
}

func (conf *Config) maxTransferBytes() (int, error) {
	if conf.MaxTransfer == "" {
		return scratch.DefaultLimit, nil
	}
	size, err := units.RAMInBytes(conf.MaxTransfer)
	if err != nil {
		return 0, errors.Wrap(err, "invalid max_transfer")
	}
	if size <= 0 || size > math.MaxInt32 {
		return 0, errors.Errorf("max_transfer must be between 1 byte and 2GiB, got %q", conf.MaxTransfer)
	}
	return int(size), nil
}

func (conf *Config) devDir() string {
	if conf.DevDir == "" {
		return DefaultDevDir
	}
	return conf.DevDir
}

// address returns the configured address, falling back to def.
func (conf *BindingConfig) address(def buses.Address) buses.Address {
	if conf.Bus == nil || conf.ChipSelect == nil {
		return def
	}
	return buses.Address{Bus: *conf.Bus, ChipSelect: *conf.ChipSelect}
}

func (conf *BindingConfig) match(profile peer.Profile) string {
	if conf.Match != "" {
		return conf.Match
	}
	return profile.DefaultMatch
}

func (conf *BindingConfig) maxBus() int {
	if conf.MaxBus > 0 {
		return conf.MaxBus
	}
	return binding.DefaultMaxBus
}
