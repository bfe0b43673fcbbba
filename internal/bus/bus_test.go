package bus

import "testing"

func TestWakeIsNonBlockingAndCoalesces(t *testing.T) {
	t.Parallel()

	b := New()
	b.Wake()
	b.Wake() // pending wake already queued; must not block or panic

	select {
	case <-b.C():
	default:
		t.Fatal("expected a pending wake")
	}

	select {
	case <-b.C():
		t.Fatal("coalesced wakes should surface only once")
	default:
	}
}

func TestWakeAfterDrainSignalsAgain(t *testing.T) {
	t.Parallel()

	b := New()
	b.Wake()
	<-b.C()
	b.Wake()

	select {
	case <-b.C():
	default:
		t.Fatal("expected a second wake after drain")
	}
}
