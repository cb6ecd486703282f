package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestFileCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spibridge.log")
	core, closer := NewFileCore(path, 0)

	logger, observed := NewObservedTestLogger(t)
	logger.SetLevel(INFO)
	teed := Tee(logger, core)
	test.That(t, teed.GetLevel(), test.ShouldEqual, INFO)

	teed.Debugw("dropped", "bus", 1)
	teed.Infow("peer bound", "bus", 5)
	test.That(t, teed.Sync(), test.ShouldBeNil)
	test.That(t, closer.Close(), test.ShouldBeNil)

	test.That(t, observed.FilterMessage("peer bound").Len(), test.ShouldEqual, 1)
	test.That(t, observed.FilterMessage("dropped").Len(), test.ShouldEqual, 0)

	raw, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	test.That(t, lines, test.ShouldHaveLength, 1)
	var entry map[string]interface{}
	test.That(t, json.Unmarshal([]byte(lines[0]), &entry), test.ShouldBeNil)
	test.That(t, entry["msg"], test.ShouldEqual, "peer bound")
	test.That(t, entry["level"], test.ShouldEqual, "INFO")
	test.That(t, entry["bus"], test.ShouldEqual, 5.0)
}
