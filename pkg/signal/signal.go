// Package signal provides a reusable cross-thread binary event with manual or
// automatic reset semantics.
//
// A manual-reset Signal stays signaled after Trigger and releases every current
// and future waiter until Reset is called. An auto-reset Signal releases at most
// one waiter per Trigger and returns to unsignaled atomically with that release;
// a Trigger with nobody waiting is kept until the next waiter consumes it.
//
// Waiting is built on a condition variable. Bounded waits arm a timer from the
// configured Clock that wakes the condition on expiry, so no caller ever polls.
package signal

import (
	"sync"
	"time"

	"github.com/jzx17/threadpool/pkg/types"
)

// Infinite makes Wait block until the signal is triggered
const Infinite time.Duration = -1

// ResetMode defines how a Signal returns to unsignaled
type ResetMode int32

const (
	// ManualReset keeps the signal set until Reset is called
	ManualReset ResetMode = iota
	// AutoReset clears the signal as it releases a single waiter
	AutoReset
)

// String returns the string representation of ResetMode
func (m ResetMode) String() string {
	switch m {
	case ManualReset:
		return "manual"
	case AutoReset:
		return "auto"
	default:
		return "unknown"
	}
}

type state int

const (
	unsignaled state = iota
	signaledOne
	signaledAll
)

// Signal is a binary event shared between threads
type Signal struct {
	mu      sync.Mutex
	cond    *sync.Cond
	mode    ResetMode
	state   state
	waiters int
	closed  bool
	clock   types.Clock
}

// New creates an unsignaled Signal using the real clock
func New(mode ResetMode) *Signal {
	return NewWithClock(mode, types.NewRealClock())
}

// NewWithClock creates an unsignaled Signal whose bounded waits use clock
func NewWithClock(mode ResetMode, clock types.Clock) *Signal {
	if clock == nil {
		clock = types.NewRealClock()
	}
	s := &Signal{
		mode:  mode,
		clock: clock,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Mode returns the reset mode
func (s *Signal) Mode() ResetMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Trigger sets the signal, waking one waiter (auto reset) or all of them (manual reset)
func (s *Signal) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ManualReset {
		s.state = signaledAll
		s.cond.Broadcast()
		return
	}
	s.state = signaledOne
	s.cond.Signal()
}

// Reset forces the signal back to unsignaled
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.state = unsignaled
}

// IsSet reports whether the signal is currently set
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != unsignaled
}

// Wait blocks until the signal is triggered or timeout elapses and reports
// whether it was signaled. A negative timeout waits forever, zero only checks.
func (s *Signal) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consume() {
		return true
	}
	if timeout == 0 {
		return false
	}

	s.waiters++
	defer s.leave()

	expired := false
	if timeout > 0 {
		timer := s.clock.NewTimer(timeout)
		stop := make(chan struct{})
		defer func() {
			close(stop)
			timer.Stop()
		}()
		go func() {
			select {
			case <-timer.C():
				s.mu.Lock()
				expired = true
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-stop:
			}
		}()
	}

	for {
		s.cond.Wait()
		if s.consume() {
			return true
		}
		if expired {
			return false
		}
	}
}

// consume takes the signal if it is set; caller holds mu
func (s *Signal) consume() bool {
	switch s.state {
	case signaledAll:
		return true
	case signaledOne:
		s.state = unsignaled
		return true
	default:
		return false
	}
}

// leave drops the caller from the waiter count; caller holds mu
func (s *Signal) leave() {
	s.waiters--
	if s.waiters == 0 && s.closed {
		s.cond.Broadcast()
	}
}

// Waiters returns the number of callers blocked in Wait
func (s *Signal) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters
}

// Close releases every waiter and blocks until none remain. The signal is left
// permanently set in manual-reset mode so later waits return immediately.
func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.mode = ManualReset
	s.state = signaledAll
	s.cond.Broadcast()
	for s.waiters > 0 {
		s.cond.Wait()
	}
}
