// Package thread binds run loops to dedicated OS threads.
//
// A Thread owns one goroutine locked to its own OS thread for its whole life.
// Start does not return until the new thread has recorded its identity and
// registered itself in a Registry, so a caller never observes a half-started
// Thread. The goroutine exits while still locked, which makes the runtime
// retire the OS thread together with any affinity applied to it.
package thread

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/threadpool/pkg/signal"
	"github.com/jzx17/threadpool/pkg/types"
	"github.com/rs/zerolog"
)

// ID identifies an OS thread. On Linux it is the kernel thread id.
type ID int64

// RunLoop is executed as the body of a Thread until it returns
type RunLoop interface {
	Run(t *Thread)
}

// PreRunner is implemented by run loops that need to bind to their thread
// before Run is called
type PreRunner interface {
	PreRun(t *Thread)
}

// PostRunner is implemented by run loops that need to unbind from their
// thread after Run returns
type PostRunner interface {
	PostRun(t *Thread)
}

// Config defines configuration for a Thread
type Config struct {
	// Name is the display name used in logs and registry lookups
	Name string

	// Registry receives the thread once it is running (required)
	Registry *Registry

	// Pin enables pinning the thread to CPU
	Pin bool

	// CPU is the logical CPU to pin to when Pin is set
	CPU int

	// Init runs on the new thread before it registers; an error aborts the start
	Init func(t *Thread) error

	// StartTimeout bounds how long Start waits for the thread; <= 0 waits forever
	StartTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger for lifecycle events (optional, defaults to a no-op logger)
	Logger *zerolog.Logger
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Name:         "thread",
		StartTimeout: 5 * time.Second,
		Clock:        types.NewRealClock(),
	}
}

const (
	stateStarting int32 = iota
	stateRunning
	stateCancelled
	stateExited
)

// maxCPU is the capacity of a kernel cpu_set_t
const maxCPU = 1024

var syntheticIDs int64

// Thread is a run loop bound to a dedicated OS thread
type Thread struct {
	id       ID
	name     string
	cpu      int
	loop     RunLoop
	registry *Registry
	init     func(t *Thread) error
	logger   zerolog.Logger

	ready    *signal.Signal
	state    atomic.Int32
	startErr error
	done     chan struct{}

	closeOnce sync.Once
}

// Start spawns a new OS thread running loop and blocks until it is registered
func Start(loop RunLoop, config *Config) (*Thread, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if loop == nil {
		return nil, types.NewThreadPoolError("start", config.Name, errors.New("run loop cannot be nil"))
	}
	if config.Registry == nil {
		return nil, types.NewThreadPoolError("start", config.Name, errors.New("registry cannot be nil"))
	}

	clock := config.Clock
	if clock == nil {
		clock = types.NewRealClock()
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	cpu := -1
	if config.Pin {
		cpu = config.CPU
	}

	t := &Thread{
		name:     config.Name,
		cpu:      cpu,
		loop:     loop,
		registry: config.Registry,
		init:     config.Init,
		logger:   logger,
		ready:    signal.NewWithClock(signal.ManualReset, clock),
		done:     make(chan struct{}),
	}
	if !threadIDsAreNative {
		t.id = ID(atomic.AddInt64(&syntheticIDs, 1))
	}

	go t.main()

	timeout := config.StartTimeout
	if timeout <= 0 {
		timeout = signal.Infinite
	}
	if !t.ready.Wait(timeout) {
		if t.state.CompareAndSwap(stateStarting, stateCancelled) {
			t.logger.Warn().Str("thread", t.name).Dur("timeout", timeout).Msg("thread start timed out")
			return nil, types.NewThreadPoolError("start", t.name, types.ErrThreadStartTimeout)
		}
		// the thread claimed the start just before the deadline
		t.ready.Wait(signal.Infinite)
	}

	if t.startErr != nil {
		<-t.done
		t.ready.Close()
		return nil, types.NewThreadPoolError("start", t.name, t.startErr)
	}
	return t, nil
}

func (t *Thread) main() {
	defer close(t.done)

	// never unlocked: the OS thread is discarded when the goroutine exits
	runtime.LockOSThread()

	if threadIDsAreNative {
		t.id = currentThreadID()
	}

	err := t.setup()
	if !t.state.CompareAndSwap(stateStarting, stateRunning) {
		return
	}
	if err != nil {
		t.startErr = err
		t.state.Store(stateExited)
		t.ready.Trigger()
		return
	}

	t.registry.Add(t)
	t.ready.Trigger()

	t.logger.Debug().Str("thread", t.name).Int64("tid", int64(t.id)).Int("cpu", t.cpu).Msg("thread running")

	if pre, ok := t.loop.(PreRunner); ok {
		pre.PreRun(t)
	}
	t.loop.Run(t)
	if post, ok := t.loop.(PostRunner); ok {
		post.PostRun(t)
	}

	t.state.Store(stateExited)
	t.logger.Debug().Str("thread", t.name).Int64("tid", int64(t.id)).Msg("thread exited")
}

// setup applies affinity and the init hook on the new thread
func (t *Thread) setup() error {
	if t.cpu >= 0 {
		if err := setAffinity(t.cpu); err != nil {
			return err
		}
	}
	if t.init != nil {
		return t.init(t)
	}
	return nil
}

// ID returns the thread identity
func (t *Thread) ID() ID {
	return t.id
}

// Name returns the display name
func (t *Thread) Name() string {
	return t.name
}

// CPU returns the CPU the thread is pinned to, or -1
func (t *Thread) CPU() int {
	return t.cpu
}

// RunLoop returns the run loop executed by the thread
func (t *Thread) RunLoop() RunLoop {
	return t.loop
}

// Running reports whether the run loop has not returned yet
func (t *Thread) Running() bool {
	return t.state.Load() == stateRunning
}

// Done is closed once the thread has exited
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// Join blocks until the thread has exited
func (t *Thread) Join() {
	<-t.done
}

// Close joins the thread and removes it from its registry
func (t *Thread) Close() {
	t.closeOnce.Do(func() {
		t.Join()
		t.registry.Remove(t)
		t.ready.Close()
	})
}
