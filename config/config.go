// Package config defines the structures to configure the SPI bridge daemon and its bridges.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/spibridge/components/spibridge"
	"go.viam.com/spibridge/logging"
)

// DefaultBindAddress is where device entries are served when no address is configured.
const DefaultBindAddress = "localhost:8080"

// A Config describes the daemon: which bridges to run and how to serve them.
type Config struct {
	ConfigFilePath string `json:"-"`

	Bridges   []spibridge.Config            `json:"bridges"`
	Network   NetworkConfig                 `json:"network"`
	LogConfig []logging.LoggerPatternConfig `json:"log,omitempty"`
	Debug     bool                          `json:"debug,omitempty"`
}

// NetworkConfig describes how device entries are served.
type NetworkConfig struct {
	BindAddress string `json:"bind_address,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (nc *NetworkConfig) Validate(path string) error {
	if nc.BindAddress == "" {
		nc.BindAddress = DefaultBindAddress
	}
	return nil
}

// Ensure validates the config and fills in defaults.
func (c *Config) Ensure() error {
	if len(c.Bridges) == 0 {
		return utils.NewConfigValidationFieldRequiredError("", "bridges")
	}
	seen := map[string]int{}
	for idx := range c.Bridges {
		path := fmt.Sprintf("%s.%d", "bridges", idx)
		if err := c.Bridges[idx].Validate(path); err != nil {
			return err
		}
		if prev, ok := seen[c.Bridges[idx].Name]; ok {
			return utils.NewConfigValidationError(path,
				errors.Errorf("name %q already used by bridges.%d", c.Bridges[idx].Name, prev))
		}
		seen[c.Bridges[idx].Name] = idx
	}
	if err := c.Network.Validate("network"); err != nil {
		return err
	}
	for idx, lc := range c.LogConfig {
		if _, err := logging.LevelFromString(lc.Level); err != nil {
			return utils.NewConfigValidationError(fmt.Sprintf("%s.%d", "log", idx), err)
		}
	}
	return nil
}
