package spibridge

import (
	"testing"

	"go.viam.com/spibridge/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}
