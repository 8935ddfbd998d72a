package worker

import (
	"context"
	"fmt"
	"sync/atomic"
)

// taskIDCounter is the global task ID counter
var taskIDCounter int64

// TaskStatus defines the outcome of a FuncTask
type TaskStatus int32

const (
	// TaskPending represents a task that has neither run nor been abandoned
	TaskPending TaskStatus = iota
	// TaskExecuted represents a task whose function has returned
	TaskExecuted
	// TaskAbandoned represents a task discarded by the pool
	TaskAbandoned
)

// String returns the string representation of TaskStatus
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskExecuted:
		return "executed"
	case TaskAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// FuncTask is a types.Task backed by a function. Its outcome is observable
// through Status and Done.
type FuncTask struct {
	id        string
	fn        func()
	onAbandon func()
	status    int32
	done      chan struct{}
}

// NewFuncTask creates a new function task
func NewFuncTask(fn func()) *FuncTask {
	id := atomic.AddInt64(&taskIDCounter, 1)
	return NewFuncTaskWithID(fmt.Sprintf("task-%d", id), fn)
}

// NewFuncTaskWithID creates a function task with custom ID
func NewFuncTaskWithID(id string, fn func()) *FuncTask {
	return &FuncTask{
		id:   id,
		fn:   fn,
		done: make(chan struct{}),
	}
}

// OnAbandon sets a function run when the pool abandons the task
func (t *FuncTask) OnAbandon(fn func()) *FuncTask {
	t.onAbandon = fn
	return t
}

// Execute executes the task
func (t *FuncTask) Execute() {
	defer t.finish(TaskExecuted)
	if t.fn != nil {
		t.fn()
	}
}

// Abandon releases the task without running it
func (t *FuncTask) Abandon() {
	defer t.finish(TaskAbandoned)
	if t.onAbandon != nil {
		t.onAbandon()
	}
}

func (t *FuncTask) finish(status TaskStatus) {
	if atomic.CompareAndSwapInt32(&t.status, int32(TaskPending), int32(status)) {
		close(t.done)
	}
}

// ID returns the task ID
func (t *FuncTask) ID() string {
	return t.id
}

// Status returns the task outcome so far
func (t *FuncTask) Status() TaskStatus {
	return TaskStatus(atomic.LoadInt32(&t.status))
}

// Done is closed once the task has been executed or abandoned
func (t *FuncTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task is done or ctx is cancelled
func (t *FuncTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completion is implemented by tasks that expose a done channel
type Completion interface {
	Done() <-chan struct{}
}

// WaitAll blocks until every task is done or ctx is cancelled
func WaitAll[T Completion](ctx context.Context, tasks ...T) error {
	for _, task := range tasks {
		select {
		case <-task.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
