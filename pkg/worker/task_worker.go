package worker

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/threadpool/pkg/signal"
	"github.com/jzx17/threadpool/pkg/thread"
	"github.com/jzx17/threadpool/pkg/types"
	"github.com/rs/zerolog"
)

// WorkerState defines the state of a TaskWorker
type WorkerState int32

const (
	// WorkerStateIdle represents a worker parked in the idle list
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents a worker holding a task
	WorkerStateWorking
	// WorkerStateDying represents a worker told to exit
	WorkerStateDying
	// WorkerStateTerminated represents a worker whose thread has been joined
	WorkerStateTerminated
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateDying:
		return "dying"
	case WorkerStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// taskEntry is the pool's handle for a submitted task
type taskEntry struct {
	task     types.Task
	queuedAt time.Time
}

// TaskWorker is the run loop of one pool thread. It waits for the pool to
// assign a task, runs it, and asks the pool for the next one before parking.
type TaskWorker struct {
	id    int
	name  string
	pool  *Pool
	state int32 // atomic state

	work    *signal.Signal
	current atomic.Pointer[taskEntry]
	die     atomic.Bool

	thread *thread.Thread
	bound  atomic.Pointer[thread.Thread]

	killOnce sync.Once

	// statistics
	totalProcessed int64
	totalPanicked  int64
	lastTaskTime   int64 // Unix nanosecond timestamp

	clock  types.Clock
	logger zerolog.Logger
}

func newTaskWorker(id int, pool *Pool) *TaskWorker {
	name := fmt.Sprintf("%s-%d", pool.config.NamePrefix, id)
	return &TaskWorker{
		id:     id,
		name:   name,
		pool:   pool,
		state:  int32(WorkerStateIdle),
		work:   signal.NewWithClock(signal.AutoReset, pool.config.Clock),
		clock:  pool.config.Clock,
		logger: pool.logger.With().Str("worker", name).Logger(),
	}
}

// start binds the worker to a new OS thread
func (w *TaskWorker) start(config *thread.Config) error {
	th, err := thread.Start(w, config)
	if err != nil {
		return err
	}
	w.thread = th
	return nil
}

// ID returns the worker index within its pool
func (w *TaskWorker) ID() int {
	return w.id
}

// Name returns the worker name
func (w *TaskWorker) Name() string {
	return w.name
}

// State returns the current worker state
func (w *TaskWorker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

func (w *TaskWorker) setState(state WorkerState) {
	atomic.StoreInt32(&w.state, int32(state))
}

// assignWork hands entry to an idle worker. Caller holds the pool lock.
func (w *TaskWorker) assignWork(entry *taskEntry) {
	w.setState(WorkerStateWorking)
	w.current.Store(entry)
	w.work.Trigger()
}

// PreRun binds the worker to its thread
func (w *TaskWorker) PreRun(t *thread.Thread) {
	w.bound.Store(t)
}

// Run waits for assigned work until the worker is killed
func (w *TaskWorker) Run(*thread.Thread) {
	for !w.die.Load() {
		w.work.Wait(signal.Infinite)

		entry := w.current.Swap(nil)
		for entry != nil {
			w.execute(entry)
			entry = w.pool.returnOrFetchNext(w)
		}
	}
}

// PostRun clears the thread binding
func (w *TaskWorker) PostRun(*thread.Thread) {
	w.bound.Store(nil)
}

// execute runs a single task and records the outcome
func (w *TaskWorker) execute(entry *taskEntry) {
	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastTaskTime, startTime.UnixNano())

	err := w.executeTask(entry.task)

	atomic.AddInt64(&w.totalProcessed, 1)
	if err != nil {
		atomic.AddInt64(&w.totalPanicked, 1)
		w.pool.handlePanic(w, err)
	}
	w.pool.recordExecuted(w, entry, w.clock.Since(startTime))
}

// executeTask executes a task with panic recovery support
func (w *TaskWorker) executeTask(task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// record panic information
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			var cause error
			switch v := r.(type) {
			case error:
				cause = fmt.Errorf("panic: %w", v)
			default:
				cause = fmt.Errorf("panic: %v", v)
			}

			poolErr := types.NewThreadPoolError("execute", w.name, cause)
			poolErr.WithContext("stack_trace", string(buf[:n]))
			poolErr.WithContext("worker_id", w.id)
			if id, ok := task.(types.Identifiable); ok {
				poolErr.WithContext("task_id", id.ID())
			}
			err = poolErr
		}
	}()

	task.Execute()
	return nil
}

// kill stops the run loop and joins the thread
func (w *TaskWorker) kill() {
	w.killOnce.Do(func() {
		w.setState(WorkerStateDying)
		w.die.Store(true)
		w.work.Trigger()
		if w.thread != nil {
			w.thread.Close()
		}
		w.work.Close()
		w.setState(WorkerStateTerminated)
	})
}

// Stats gets worker statistics
func (w *TaskWorker) Stats() WorkerStats {
	stats := WorkerStats{
		ID:             w.id,
		Name:           w.name,
		State:          w.State(),
		TotalProcessed: atomic.LoadInt64(&w.totalProcessed),
		TotalPanicked:  atomic.LoadInt64(&w.totalPanicked),
	}
	if last := atomic.LoadInt64(&w.lastTaskTime); last != 0 {
		stats.LastTaskTime = time.Unix(0, last)
	}
	if t := w.bound.Load(); t != nil {
		stats.ThreadID = t.ID()
	}
	return stats
}

// WorkerStats defines worker statistics
type WorkerStats struct {
	ID             int
	Name           string
	ThreadID       thread.ID
	State          WorkerState
	TotalProcessed int64
	TotalPanicked  int64
	LastTaskTime   time.Time
}

// IsActive checks if the worker is executing a task
func (ws WorkerStats) IsActive() bool {
	return ws.State == WorkerStateWorking
}

// IsIdle checks if the worker is waiting for work
func (ws WorkerStats) IsIdle() bool {
	return ws.State == WorkerStateIdle
}

// GetPanicRate gets the fraction of executed tasks that panicked
func (ws WorkerStats) GetPanicRate() float64 {
	if ws.TotalProcessed == 0 {
		return 0
	}
	return float64(ws.TotalPanicked) / float64(ws.TotalProcessed)
}
