package ratelimit

import (
	"testing"
	"time"
)

func TestFirstReservationIsImmediate(t *testing.T) {
	p := NewPerLabel(6)
	delay, cancel := p.Reserve("acc1")
	defer cancel()
	if delay > 50*time.Millisecond {
		t.Errorf("first reservation delayed %v, want ~0", delay)
	}
}

func TestSecondReservationWaits(t *testing.T) {
	p := NewPerLabel(6) // one token every 10s

	_, cancel1 := p.Reserve("acc1")
	defer cancel1()
	delay, cancel2 := p.Reserve("acc1")
	defer cancel2()

	if delay < 9*time.Second || delay > 11*time.Second {
		t.Errorf("second reservation delay = %v, want ~10s", delay)
	}
}

func TestLabelsAreIndependent(t *testing.T) {
	p := NewPerLabel(6)

	_, cancel1 := p.Reserve("acc1")
	defer cancel1()
	delay, cancel2 := p.Reserve("acc2")
	defer cancel2()

	if delay > 50*time.Millisecond {
		t.Errorf("acc2 delayed %v by acc1's reservation", delay)
	}
}

func TestCancelReturnsToken(t *testing.T) {
	p := NewPerLabel(6)

	_, cancel := p.Reserve("acc1")
	cancel()

	delay, cancel2 := p.Reserve("acc1")
	defer cancel2()
	if delay > 50*time.Millisecond {
		t.Errorf("reservation after cancel delayed %v, want ~0", delay)
	}
}
