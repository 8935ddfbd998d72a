package testutils

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/jzx17/threadpool/pkg/types"
)

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// ClockWrapper adapts a quartz mock to types.Clock
type ClockWrapper struct {
	mock *quartz.Mock
}

var _ types.Clock = (*ClockWrapper)(nil)

// NewClockWrapper creates a new ClockWrapper
func NewClockWrapper(mock *quartz.Mock) *ClockWrapper {
	return &ClockWrapper{mock: mock}
}

// Now returns the mock time
func (c *ClockWrapper) Now() time.Time {
	return c.mock.Now()
}

// Since returns the mock time elapsed since t
func (c *ClockWrapper) Since(t time.Time) time.Duration {
	return c.mock.Since(t)
}

// NewTimer creates a timer that fires when the mock is advanced past d
func (c *ClockWrapper) NewTimer(d time.Duration) types.Timer {
	return mockTimer{t: c.mock.NewTimer(d)}
}

type mockTimer struct {
	t *quartz.Timer
}

func (m mockTimer) C() <-chan time.Time { return m.t.C }

func (m mockTimer) Stop() bool { return m.t.Stop() }
