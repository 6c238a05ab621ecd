// Package idleexit implements the idle-exit supervisor: a periodic task
// that asks the process to quit once it has gone too long without a
// method call.
package idleexit

import (
	"time"
)

const (
	// TickInterval is how often the supervisor checks for idleness.
	TickInterval = 60 * time.Second
	// Threshold is how long the service may sit idle before the
	// supervisor requests a quit.
	Threshold = 5 * time.Minute
)

// IdleTracker reports how long it has been since the last method call;
// internal/svcbus.Bus implements it.
type IdleTracker interface {
	IdleSince() time.Duration
}

// Supervisor runs the 60-second tick and signals once on Timeout when
// the service has been idle past Threshold, then stops itself —
// matching the one-shot "remove the source after firing" behavior of
// the timeout it replaces.
type Supervisor struct {
	tracker  IdleTracker
	interval time.Duration
	timeout  chan struct{}
	stop     chan struct{}
}

// New builds a Supervisor polling tracker every TickInterval.
func New(tracker IdleTracker) *Supervisor {
	return newWithInterval(tracker, TickInterval)
}

func newWithInterval(tracker IdleTracker, interval time.Duration) *Supervisor {
	return &Supervisor{
		tracker:  tracker,
		interval: interval,
		timeout:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Timeout delivers a single value the first time idleness exceeds
// Threshold; the channel is never closed. The top-level event loop
// selects on this channel alongside SIGTERM.
func (s *Supervisor) Timeout() <-chan struct{} {
	return s.timeout
}

// Run drives the tick loop until Stop is called or a timeout fires. It
// is meant to be launched with `go s.Run()`.
func (s *Supervisor) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.tracker.IdleSince() > Threshold {
				select {
				case s.timeout <- struct{}{}:
				default:
				}
				return
			}
		case <-s.stop:
			return
		}
	}
}

// Stop terminates Run without firing a timeout.
func (s *Supervisor) Stop() {
	close(s.stop)
}
