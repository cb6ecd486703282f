package spibridge

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/spibridge/components/spibridge/peer"
	"go.viam.com/spibridge/components/spibridge/scratch"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Name:    "lepton0",
		Profile: "lepton",
		Binding: BindingConfig{Strategy: StrategyStatic},
	}
	test.That(t, valid.Validate("bridges.0"), test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing name", func(c *Config) { c.Name = "" }, `"name" is required`},
		{"missing profile", func(c *Config) { c.Profile = "" }, `"profile" is required`},
		{"unknown profile", func(c *Config) { c.Profile = "bme280" }, "lepton, loopback, st7735"},
		{"bad backend", func(c *Config) { c.Backend = "bitbang" }, "backend must be one of"},
		{"bad allocator", func(c *Config) { c.Allocator = "dma" }, "allocator must be one of"},
		{"bad mode", func(c *Config) { c.Mode = intPtr(4) }, "mode must be between 0 and 3"},
		{"wide words", func(c *Config) { c.BitsPerWord = 64 }, "bits_per_word"},
		{"unparsable limit", func(c *Config) { c.MaxTransfer = "lots" }, "invalid max_transfer"},
		{"zero limit", func(c *Config) { c.MaxTransfer = "0" }, "max_transfer must be between"},
		{"missing strategy", func(c *Config) { c.Binding.Strategy = "" }, `"strategy" is required`},
		{"unknown strategy", func(c *Config) { c.Binding.Strategy = "magic" }, "strategy must be one of"},
		{"half an address", func(c *Config) { c.Binding.Bus = intPtr(1) }, "must be set together"},
		{"negative bus", func(c *Config) {
			c.Binding.Bus = intPtr(-1)
			c.Binding.ChipSelect = intPtr(0)
		}, "cannot be negative"},
		{"dynamic without bus", func(c *Config) { c.Binding.Strategy = StrategyDynamic }, `"bus" is required`},
		{"dynamic without chip select", func(c *Config) {
			c.Binding.Strategy = StrategyDynamic
			c.Binding.Bus = intPtr(0)
		}, `"chip_select" is required`},
		{"bad enumerator", func(c *Config) {
			c.Binding.Strategy = StrategyScan
			c.Binding.Enumerator = "udev"
		}, "enumerator must be one of"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conf := valid
			tc.mutate(&conf)
			err := conf.Validate("bridges.0")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
			test.That(t, err.Error(), test.ShouldContainSubstring, "bridges.0")
		})
	}

	sized := valid
	sized.MaxTransfer = "64KiB"
	size, err := sized.maxTransferBytes()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, size, test.ShouldEqual, 64*1024)
	size, err = valid.maxTransferBytes()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, size, test.ShouldEqual, scratch.DefaultLimit)

	test.That(t, valid.devDir(), test.ShouldEqual, DefaultDevDir)
	sized.DevDir = "/tmp/dev"
	test.That(t, sized.devDir(), test.ShouldEqual, "/tmp/dev")

	scan := Config{Name: "d", Profile: "st7735", Binding: BindingConfig{Strategy: StrategyScan, MaxBus: 4}}
	test.That(t, scan.Validate("bridges.1"), test.ShouldBeNil)
	test.That(t, scan.Binding.match(mustProfile(t, "st7735")), test.ShouldEqual, "spidev")
	test.That(t, scan.Binding.maxBus(), test.ShouldEqual, 4)
}

func mustProfile(t *testing.T, name string) peer.Profile {
	t.Helper()
	p, err := peer.ProfileByName(name)
	test.That(t, err, test.ShouldBeNil)
	return p
}
