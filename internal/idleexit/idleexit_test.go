package idleexit

import (
	"testing"
	"time"
)

type fakeTracker struct{ idle time.Duration }

func (f fakeTracker) IdleSince() time.Duration { return f.idle }

func TestSupervisorStopWithoutFiring(t *testing.T) {
	s := New(fakeTracker{idle: 0})
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	select {
	case <-s.Timeout():
		t.Fatal("Timeout fired despite Stop")
	default:
	}
}

func TestSupervisorFiresTimeoutWhenIdle(t *testing.T) {
	s := newWithInterval(fakeTracker{idle: Threshold + time.Second}, 10*time.Millisecond)
	go s.Run()

	select {
	case <-s.Timeout():
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout did not fire for an idle tracker")
	}
}

func TestSupervisorDoesNotFireWhenActive(t *testing.T) {
	s := newWithInterval(fakeTracker{idle: 0}, 10*time.Millisecond)
	go s.Run()
	defer s.Stop()

	select {
	case <-s.Timeout():
		t.Fatal("Timeout fired despite recent activity")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestThresholdConstant(t *testing.T) {
	if Threshold != 5*time.Minute {
		t.Errorf("Threshold = %v, want 5m", Threshold)
	}
	if TickInterval != 60*time.Second {
		t.Errorf("TickInterval = %v, want 60s", TickInterval)
	}
}
