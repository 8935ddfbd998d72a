package types

import "time"

// Clock is the time source used by signals, threads and the pool. Tests swap
// it for a mock to drive timed waits deterministically.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration

	// NewTimer arms a one-shot timer firing after d
	NewTimer(d time.Duration) Timer
}

// Timer is a one-shot timer created by a Clock
type Timer interface {
	C() <-chan time.Time

	// Stop reports whether the timer was stopped before it fired
	Stop() bool
}

// RealClock is the wall clock
type RealClock struct{}

// NewRealClock returns the wall clock
func NewRealClock() Clock {
	return RealClock{}
}

// Now implements Clock
func (RealClock) Now() time.Time { return time.Now() }

// Since implements Clock
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewTimer implements Clock
func (RealClock) NewTimer(d time.Duration) Timer {
	return wallTimer{t: time.NewTimer(d)}
}

type wallTimer struct {
	t *time.Timer
}

func (w wallTimer) C() <-chan time.Time { return w.t.C }

func (w wallTimer) Stop() bool { return w.t.Stop() }
