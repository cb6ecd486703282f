package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

// FakeSPISysfs builds a /sys/bus/spi/devices lookalike in a temporary directory. peers maps a
// device directory name such as "spi1.0" to the modalias name the kernel would report.
func FakeSPISysfs(t *testing.T, peers map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for dev, name := range peers {
		dir := filepath.Join(root, dev)
		test.That(t, os.MkdirAll(dir, 0o755), test.ShouldBeNil)
		test.That(t, os.WriteFile(filepath.Join(dir, "modalias"), []byte("spi:"+name+"\n"), 0o644), test.ShouldBeNil)
	}
	return root
}
