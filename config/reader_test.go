package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/spibridge/components/spibridge"
	"go.viam.com/spibridge/logging"
)

const sampleConfig = `{
	"bridges": [
		{
			"name": "lepton0",
			"profile": "lepton",
			"backend": "spidev",
			"binding": {"strategy": "static", "bus": ${LEPTON_BUS}, "chip_select": 3},
			"lock_dir": "${SPIBRIDGE_TEST_LOCK_DIR:-/run/lock}"
		},
		{
			"name": "display",
			"profile": "st7735",
			"binding": {"strategy": "scan"},
			"mode": 3
		}
	],
	"log": [{"pattern": "spibridge.*", "level": "debug"}]
}`

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("LEPTON_BUS", "5")

	path := filepath.Join(t.TempDir(), "config.json")
	test.That(t, os.WriteFile(path, []byte(sampleConfig), 0o600), test.ShouldBeNil)

	cfg, err := Read(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Network.BindAddress, test.ShouldEqual, DefaultBindAddress)
	test.That(t, cfg.Bridges, test.ShouldHaveLength, 2)

	lepton := cfg.Bridges[0]
	test.That(t, lepton.Backend, test.ShouldEqual, spibridge.BackendSpidev)
	test.That(t, *lepton.Binding.Bus, test.ShouldEqual, 5)
	test.That(t, *lepton.Binding.ChipSelect, test.ShouldEqual, 3)
	test.That(t, lepton.LockDir, test.ShouldEqual, "/run/lock")

	test.That(t, cfg.Bridges[1].Binding.Strategy, test.ShouldEqual, spibridge.StrategyScan)
	test.That(t, *cfg.Bridges[1].Mode, test.ShouldEqual, 3)
	test.That(t, cfg.LogConfig, test.ShouldResemble, []logging.LoggerPatternConfig{{Pattern: "spibridge.*", Level: "debug"}})

	_, err = Read(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromReaderErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name   string
		json   string
		errMsg string
	}{
		{"not json", `{"bridges": [`, "failed to decode"},
		{"unknown field", `{"bridges": [], "robots": 1}`, "robots"},
		{"no bridges", `{}`, `"bridges" is required`},
		{"invalid bridge", `{"bridges": [{"name": "a", "profile": "lepton"}]}`, `"strategy" is required`},
		{
			"duplicate names",
			`{"bridges": [
				{"name": "a", "profile": "lepton", "binding": {"strategy": "static"}},
				{"name": "a", "profile": "st7735", "binding": {"strategy": "scan"}}
			]}`,
			"already used by bridges.0",
		},
		{
			"bad log level",
			`{"bridges": [{"name": "a", "profile": "lepton", "binding": {"strategy": "static"}}],
			  "log": [{"pattern": "*", "level": "loud"}]}`,
			"loud",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader(context.Background(), "", strings.NewReader(tc.json), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}
}
