package buses

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestBusLockSharedAcrossValues(t *testing.T) {
	// Two locks for the same bus number must exclude each other.
	first := NewBusLock(901, "")
	second := NewBusLock(901, "")
	test.That(t, first.Lock(), test.ShouldBeNil)

	acquired := make(chan struct{})
	go func() {
		if err := second.Lock(); err != nil {
			t.Error(err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}
	test.That(t, first.Unlock(), test.ShouldBeNil)
	<-acquired
	test.That(t, second.Unlock(), test.ShouldBeNil)

	// A different bus is independent.
	other := NewBusLock(902, "")
	test.That(t, first.Lock(), test.ShouldBeNil)
	test.That(t, other.Lock(), test.ShouldBeNil)
	test.That(t, other.Unlock(), test.ShouldBeNil)
	test.That(t, first.Unlock(), test.ShouldBeNil)
}
