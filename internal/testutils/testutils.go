// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"sync"
	"sync/atomic"
	"time"
)

// RecordingTask is a types.Task that counts how it was invoked.
// Execute optionally sleeps and then blocks until the gate is closed.
type RecordingTask struct {
	id        string
	delay     time.Duration
	gate      <-chan struct{}
	onExecute func()

	executions int32
	abandons   int32

	startOnce sync.Once
	started   chan struct{}
	doneOnce  sync.Once
	done      chan struct{}
}

// NewRecordingTask creates a task that returns immediately
func NewRecordingTask(id string) *RecordingTask {
	return &RecordingTask{
		id:      id,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// WithDelay makes Execute sleep for d
func (r *RecordingTask) WithDelay(d time.Duration) *RecordingTask {
	r.delay = d
	return r
}

// WithGate makes Execute block until gate is closed
func (r *RecordingTask) WithGate(gate <-chan struct{}) *RecordingTask {
	r.gate = gate
	return r
}

// OnExecute sets a callback run inside Execute before the delay
func (r *RecordingTask) OnExecute(fn func()) *RecordingTask {
	r.onExecute = fn
	return r
}

// ID returns the task ID
func (r *RecordingTask) ID() string {
	return r.id
}

// Execute implements types.Task
func (r *RecordingTask) Execute() {
	atomic.AddInt32(&r.executions, 1)
	r.startOnce.Do(func() { close(r.started) })
	defer r.doneOnce.Do(func() { close(r.done) })

	if r.onExecute != nil {
		r.onExecute()
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.gate != nil {
		<-r.gate
	}
}

// Abandon implements types.Task
func (r *RecordingTask) Abandon() {
	atomic.AddInt32(&r.abandons, 1)
	r.doneOnce.Do(func() { close(r.done) })
}

// Executions returns how many times Execute was called
func (r *RecordingTask) Executions() int {
	return int(atomic.LoadInt32(&r.executions))
}

// Abandons returns how many times Abandon was called
func (r *RecordingTask) Abandons() int {
	return int(atomic.LoadInt32(&r.abandons))
}

// Started is closed when Execute begins
func (r *RecordingTask) Started() <-chan struct{} {
	return r.started
}

// Done is closed when Execute returns or Abandon is called
func (r *RecordingTask) Done() <-chan struct{} {
	return r.done
}

// WaitDone waits for the task to finish, reporting false on timeout
func (r *RecordingTask) WaitDone(timeout time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ConcurrencyGauge tracks the current and peak number of concurrent callers
type ConcurrencyGauge struct {
	current int32
	peak    int32
}

// Enter records a caller entering the measured section
func (g *ConcurrencyGauge) Enter() {
	n := atomic.AddInt32(&g.current, 1)
	for {
		peak := atomic.LoadInt32(&g.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&g.peak, peak, n) {
			return
		}
	}
}

// Leave records a caller leaving the measured section
func (g *ConcurrencyGauge) Leave() {
	atomic.AddInt32(&g.current, -1)
}

// Peak returns the highest concurrency observed
func (g *ConcurrencyGauge) Peak() int {
	return int(atomic.LoadInt32(&g.peak))
}
