package worker

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/threadpool/pkg/thread"
	"github.com/jzx17/threadpool/pkg/types"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"
)

// Config defines configuration for a thread pool.
//
// Pools lock with go-deadlock, whose detection is enabled by default and may
// exit the process when a lock wait exceeds deadlock.Opts.DeadlockTimeout.
// Set deadlock.Opts.Disable before New to turn it off.
type Config struct {
	// ThreadCount is the number of worker threads
	ThreadCount int

	// NamePrefix is used to name worker threads "<prefix>-<index>"
	NamePrefix string

	// Registry receives the worker threads (optional, a private one is created)
	Registry *thread.Registry

	// CPUs pins worker i to CPUs[i % len(CPUs)] when non-empty
	CPUs []int

	// ThreadInit runs on every worker thread before it starts taking work;
	// an error fails pool creation
	ThreadInit func(t *thread.Thread) error

	// StartTimeout bounds the startup of each worker thread
	StartTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger for pool events (optional, defaults to a no-op logger)
	Logger *zerolog.Logger

	// PanicHandler receives the error built from a panicking task
	PanicHandler types.ErrorHandler
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		ThreadCount:  runtime.GOMAXPROCS(0),
		NamePrefix:   "worker",
		StartTimeout: 5 * time.Second,
		Clock:        types.NewRealClock(),
	}
}

// Pool is a fixed set of worker threads fed from one pending queue.
//
// The idle list and the pending queue are both LIFO and guarded by one lock.
// Whenever the lock is released at most one of them is non-empty: a new task
// goes straight to an idle worker when there is one, and a worker that
// finishes takes the next pending task before it would park itself.
type Pool struct {
	config   *Config
	registry *thread.Registry
	logger   zerolog.Logger

	mu           deadlock.Mutex
	allIdle      *sync.Cond
	workers      []*TaskWorker
	idle         []*TaskWorker
	pending      []*taskEntry
	shuttingDown bool

	destroyOnce sync.Once

	// advisory mirrors
	queued  int64
	threads int64

	// statistics
	submitted int64
	executed  int64
	abandoned int64
	retracted int64
	panicked  int64
}

var _ types.TaskPool = (*Pool)(nil)

// New creates a pool and starts all of its worker threads. If any thread
// fails to start, every thread started so far is stopped and the error is
// returned.
func New(config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// parameter validation
	if config.ThreadCount <= 0 {
		return nil, fmt.Errorf("%w, got %d", types.ErrInvalidThreadCount, config.ThreadCount)
	}
	for _, cpu := range config.CPUs {
		if cpu < 0 {
			return nil, fmt.Errorf("%w: %d", types.ErrInvalidCPU, cpu)
		}
	}

	if config.NamePrefix == "" {
		config.NamePrefix = "worker"
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	registry := config.Registry
	if registry == nil {
		registry = thread.NewRegistry()
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	p := &Pool{
		config:   config,
		registry: registry,
		logger:   logger,
	}
	p.allIdle = sync.NewCond(&p.mu)

	workers := make([]*TaskWorker, config.ThreadCount)
	var g errgroup.Group
	for i := range workers {
		w := newTaskWorker(i, p)
		workers[i] = w
		threadConfig := p.threadConfig(w)
		g.Go(func() error {
			return w.start(threadConfig)
		})
	}

	if err := g.Wait(); err != nil {
		for _, w := range workers {
			w.kill()
		}
		p.logger.Error().Err(err).Int("threads", config.ThreadCount).Msg("thread pool creation failed")
		return nil, err
	}

	p.workers = workers
	p.idle = make([]*TaskWorker, 0, len(workers))
	p.idle = append(p.idle, workers...)
	atomic.StoreInt64(&p.threads, int64(len(workers)))

	p.logger.Info().Int("threads", len(workers)).Ints("cpus", config.CPUs).Msg("thread pool created")
	return p, nil
}

func (p *Pool) threadConfig(w *TaskWorker) *thread.Config {
	config := &thread.Config{
		Name:         w.name,
		Registry:     p.registry,
		Init:         p.config.ThreadInit,
		StartTimeout: p.config.StartTimeout,
		Clock:        p.config.Clock,
		Logger:       &p.logger,
	}
	if n := len(p.config.CPUs); n > 0 {
		config.Pin = true
		config.CPU = p.config.CPUs[w.id%n]
	}
	return config
}

// AddTask submits a task. It is handed to the most recently idled worker if
// there is one and queued otherwise. Once shutdown has begun the task is
// abandoned immediately.
func (p *Pool) AddTask(task types.Task) {
	if task == nil {
		p.logger.Warn().Msg("ignoring nil task")
		return
	}

	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		p.logger.Warn().Err(types.ErrPoolDestroyed).Str("task", taskID(task)).Msg("abandoning task")
		p.abandon(task)
		return
	}

	atomic.AddInt64(&p.submitted, 1)
	entry := &taskEntry{task: task, queuedAt: p.config.Clock.Now()}

	if n := len(p.idle); n > 0 {
		w := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		w.assignWork(entry)
	} else {
		p.pending = append(p.pending, entry)
		atomic.StoreInt64(&p.queued, int64(len(p.pending)))
	}
	p.mu.Unlock()
}

// RetractTask removes task from the pending queue. It reports false when the
// task has already been dispatched or was never queued. A retracted task is
// not abandoned; the caller keeps ownership of it.
//
// Tasks are matched by interface equality, so a task whose dynamic type is
// not comparable (a struct value holding a slice or map, say) can never be
// found and RetractTask reports false for it. Submit such tasks by pointer.
func (p *Pool) RetractTask(task types.Task) bool {
	if task == nil || !reflect.TypeOf(task).Comparable() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.pending) - 1; i >= 0; i-- {
		if p.pending[i].task != task {
			continue
		}
		last := len(p.pending) - 1
		copy(p.pending[i:], p.pending[i+1:])
		p.pending[last] = nil
		p.pending = p.pending[:last]
		atomic.StoreInt64(&p.queued, int64(len(p.pending)))
		atomic.AddInt64(&p.retracted, 1)
		return true
	}
	return false
}

// returnOrFetchNext is called by a worker that has finished a task. It returns
// the next pending task for that worker, or parks the worker in the idle list
// and returns nil.
func (p *Pool) returnOrFetchNext(w *TaskWorker) *taskEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.pending); n > 0 {
		entry := p.pending[n-1]
		p.pending[n-1] = nil
		p.pending = p.pending[:n-1]
		atomic.StoreInt64(&p.queued, int64(len(p.pending)))
		w.setState(WorkerStateWorking)
		return entry
	}

	w.setState(WorkerStateIdle)
	p.idle = append(p.idle, w)
	if len(p.idle) == len(p.workers) {
		p.allIdle.Broadcast()
	}
	return nil
}

// Destroy abandons every pending task, waits for running tasks to finish and
// stops all worker threads. Calls after the first are no-ops. Destroy must not
// be called from inside a task. Destroy on a nil pool is a no-op.
func (p *Pool) Destroy() {
	if p == nil {
		return
	}
	p.destroyOnce.Do(p.destroy)
}

func (p *Pool) destroy() {
	p.mu.Lock()
	p.shuttingDown = true
	if len(p.workers) == 0 {
		p.mu.Unlock()
		return
	}
	pending := p.pending
	p.pending = nil
	atomic.StoreInt64(&p.queued, 0)
	p.mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		p.abandon(pending[i].task)
	}

	p.mu.Lock()
	for len(p.idle) != len(p.workers) {
		p.allIdle.Wait()
	}
	workers := p.workers
	p.workers = nil
	p.idle = nil
	p.mu.Unlock()

	for _, w := range workers {
		w.kill()
	}
	atomic.StoreInt64(&p.threads, 0)

	p.logger.Info().
		Int("threads", len(workers)).
		Int("abandoned", len(pending)).
		Int64("executed", atomic.LoadInt64(&p.executed)).
		Msg("thread pool destroyed")
}

// Close destroys the pool
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	p.Destroy()
	return nil
}

func (p *Pool) abandon(task types.Task) {
	atomic.AddInt64(&p.abandoned, 1)
	task.Abandon()
}

func (p *Pool) recordExecuted(w *TaskWorker, entry *taskEntry, took time.Duration) {
	atomic.AddInt64(&p.executed, 1)
	if e := w.logger.Trace(); e.Enabled() {
		e.Str("task", taskID(entry.task)).
			Dur("queued", w.clock.Now().Sub(entry.queuedAt)-took).
			Dur("took", took).
			Msg("task executed")
	}
}

func (p *Pool) handlePanic(w *TaskWorker, err error) {
	atomic.AddInt64(&p.panicked, 1)
	w.logger.Error().Err(err).Msg("task panicked")

	if handler := p.config.PanicHandler; handler != nil {
		if handledErr := handler(err); handledErr != nil {
			w.logger.Debug().Err(handledErr).Msg("panic handler returned error")
		}
	}
}

func taskID(task types.Task) string {
	if id, ok := task.(types.Identifiable); ok {
		return id.ID()
	}
	return fmt.Sprintf("%T", task)
}

// QueuedJobCount returns the number of pending tasks. The value is a snapshot
// for monitoring and must not drive correctness decisions.
func (p *Pool) QueuedJobCount() int {
	return int(atomic.LoadInt64(&p.queued))
}

// ThreadCount returns the number of worker threads. The value is a snapshot
// for monitoring and must not drive correctness decisions.
func (p *Pool) ThreadCount() int {
	return int(atomic.LoadInt64(&p.threads))
}

// IsShuttingDown reports whether Destroy has been called
func (p *Pool) IsShuttingDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shuttingDown
}

// Registry returns the registry holding the worker threads
func (p *Pool) Registry() *thread.Registry {
	return p.registry
}

// Stats gets pool statistics
func (p *Pool) Stats() types.PoolStats {
	p.mu.Lock()
	threads := len(p.workers)
	idle := len(p.idle)
	queued := len(p.pending)
	p.mu.Unlock()

	return types.PoolStats{
		ThreadCount: threads,
		IdleWorkers: idle,
		Queued:      queued,
		Submitted:   atomic.LoadInt64(&p.submitted),
		Executed:    atomic.LoadInt64(&p.executed),
		Abandoned:   atomic.LoadInt64(&p.abandoned),
		Retracted:   atomic.LoadInt64(&p.retracted),
		Panicked:    atomic.LoadInt64(&p.panicked),
	}
}

// WorkerStats gets statistics of all workers
func (p *Pool) WorkerStats() []WorkerStats {
	p.mu.Lock()
	workers := append([]*TaskWorker(nil), p.workers...)
	p.mu.Unlock()

	stats := make([]WorkerStats, len(workers))
	for i, w := range workers {
		stats[i] = w.Stats()
	}
	return stats
}
