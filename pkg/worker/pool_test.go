package worker

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jzx17/threadpool/internal/testutils"
	"github.com/jzx17/threadpool/pkg/thread"
	"github.com/jzx17/threadpool/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestPool(t *testing.T, threads int) *Pool {
	t.Helper()
	pool, err := New(&Config{ThreadCount: threads})
	require.NoError(t, err)
	t.Cleanup(pool.Destroy)
	return pool
}

// saturate occupies every worker of pool with a gated task and returns the
// gate together with the blocker tasks
func saturate(t *testing.T, pool *Pool) (chan struct{}, []*testutils.RecordingTask) {
	t.Helper()
	gate := make(chan struct{})
	blockers := make([]*testutils.RecordingTask, pool.ThreadCount())
	for i := range blockers {
		blockers[i] = testutils.NewRecordingTask(fmt.Sprintf("blocker-%d", i)).WithGate(gate)
		pool.AddTask(blockers[i])
	}
	for _, b := range blockers {
		select {
		case <-b.Started():
		case <-time.After(time.Second):
			t.Fatalf("blocker %s never started", b.ID())
		}
	}
	return gate, blockers
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError error
		threads     int
	}{
		{
			name:    "nil config should use default",
			config:  nil,
			threads: runtime.GOMAXPROCS(0),
		},
		{
			name:    "valid config",
			config:  &Config{ThreadCount: 3},
			threads: 3,
		},
		{
			name:        "zero thread count should error",
			config:      &Config{ThreadCount: 0},
			expectError: types.ErrInvalidThreadCount,
		},
		{
			name:        "negative thread count should error",
			config:      &Config{ThreadCount: -1},
			expectError: types.ErrInvalidThreadCount,
		},
		{
			name:        "negative cpu should error",
			config:      &Config{ThreadCount: 1, CPUs: []int{-2}},
			expectError: types.ErrInvalidCPU,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := New(tt.config)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, pool)
				return
			}

			require.NoError(t, err)
			defer pool.Destroy()
			assert.Equal(t, tt.threads, pool.ThreadCount())
			assert.Equal(t, tt.threads, pool.Registry().Len())
			assert.Equal(t, 0, pool.QueuedJobCount())
			assert.False(t, pool.IsShuttingDown())
		})
	}
}

func TestNew_RegistersNamedThreads(t *testing.T) {
	registry := thread.NewRegistry()
	pool, err := New(&Config{
		ThreadCount: 3,
		NamePrefix:  "render",
		Registry:    registry,
	})
	require.NoError(t, err)

	assert.Same(t, registry, pool.Registry())
	assert.Equal(t, []string{"render-0", "render-1", "render-2"}, registry.Names())

	pool.Destroy()
	assert.Equal(t, 0, registry.Len(), "destroy should unregister every thread")
	assert.Equal(t, 0, pool.ThreadCount())
}

func TestNew_ThreadInitRunsOnEveryThread(t *testing.T) {
	var mu sync.Mutex
	names := make(map[string]bool)

	pool, err := New(&Config{
		ThreadCount: 4,
		ThreadInit: func(th *thread.Thread) error {
			mu.Lock()
			names[th.Name()] = true
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	defer pool.Destroy()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, names, 4)
	assert.True(t, names["worker-0"])
	assert.True(t, names["worker-3"])
}

func TestNew_RollsBackOnThreadInitFailure(t *testing.T) {
	registry := thread.NewRegistry()
	initErr := errors.New("no gpu context")

	pool, err := New(&Config{
		ThreadCount: 4,
		Registry:    registry,
		ThreadInit: func(th *thread.Thread) error {
			if th.Name() == "worker-2" {
				return initErr
			}
			return nil
		},
	})

	require.Error(t, err)
	assert.Nil(t, pool)
	assert.ErrorIs(t, err, initErr)

	var poolErr *types.ThreadPoolError
	require.True(t, errors.As(err, &poolErr))
	assert.Equal(t, "worker-2", poolErr.Thread)

	assert.Equal(t, 0, registry.Len(), "started threads should be stopped and unregistered")
}

func TestNew_PinsToCPUs(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("cpu affinity is only supported on linux")
	}

	pool, err := New(&Config{ThreadCount: 2, CPUs: []int{0}})
	if err != nil {
		t.Skipf("affinity not permitted in this environment: %v", err)
	}
	defer pool.Destroy()

	for _, w := range pool.workers {
		assert.Equal(t, 0, w.thread.CPU())
	}
}

func TestNew_WithLogger(t *testing.T) {
	var buf syncBuffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	pool, err := New(&Config{ThreadCount: 2, Logger: &logger})
	require.NoError(t, err)
	pool.Destroy()

	out := buf.String()
	assert.Contains(t, out, "thread pool created")
	assert.Contains(t, out, "thread pool destroyed")
	assert.Contains(t, out, `"thread":"worker-1"`)
}

func TestPool_AddTask(t *testing.T) {
	pool := newTestPool(t, 2)

	const numTasks = 20
	tasks := make([]*testutils.RecordingTask, numTasks)
	for i := range tasks {
		tasks[i] = testutils.NewRecordingTask(fmt.Sprintf("task-%d", i))
		pool.AddTask(tasks[i])
	}

	for _, task := range tasks {
		require.True(t, task.WaitDone(time.Second))
		assert.Equal(t, 1, task.Executions())
		assert.Equal(t, 0, task.Abandons())
	}

	require.Eventually(t, func() bool { return pool.Stats().Executed == numTasks },
		time.Second, time.Millisecond)
	stats := pool.Stats()
	assert.Equal(t, int64(numTasks), stats.Submitted)
	assert.Equal(t, int64(0), stats.Abandoned)
}

func TestPool_AddNilTask(t *testing.T) {
	pool := newTestPool(t, 1)

	pool.AddTask(nil)
	assert.Equal(t, int64(0), pool.Stats().Submitted)
	assert.False(t, pool.RetractTask(nil))
}

func TestPool_QueuesWhenSaturated(t *testing.T) {
	pool := newTestPool(t, 2)
	gate, blockers := saturate(t, pool)

	queued := []*testutils.RecordingTask{
		testutils.NewRecordingTask("q-0"),
		testutils.NewRecordingTask("q-1"),
		testutils.NewRecordingTask("q-2"),
	}
	for _, task := range queued {
		pool.AddTask(task)
	}

	assert.Equal(t, 3, pool.QueuedJobCount())
	stats := pool.Stats()
	assert.Equal(t, 3, stats.Queued)
	assert.Equal(t, 0, stats.IdleWorkers)
	assert.Equal(t, 2, stats.BusyWorkers())

	close(gate)
	for _, task := range append(blockers, queued...) {
		require.True(t, task.WaitDone(time.Second))
	}
	require.Eventually(t, func() bool { return pool.QueuedJobCount() == 0 },
		time.Second, time.Millisecond)
}

func TestPool_PendingQueueIsLIFO(t *testing.T) {
	pool := newTestPool(t, 1)
	gate, _ := saturate(t, pool)

	var mu sync.Mutex
	var order []string
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("q-%d", i)
		pool.AddTask(NewFuncTaskWithID(id, func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}))
	}

	close(gate)
	require.Eventually(t, func() bool { return pool.Stats().Executed == 5 },
		time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"q-3", "q-2", "q-1", "q-0"}, order)
}

func TestPool_IdleWorkersAreLIFO(t *testing.T) {
	pool := newTestPool(t, 3)

	// the last worker in the initial idle list is woken first
	var name string
	task := testutils.NewRecordingTask("first").OnExecute(func() {
		if th, ok := pool.Registry().Current(); ok {
			name = th.Name()
		}
	})
	pool.AddTask(task)
	require.True(t, task.WaitDone(time.Second))

	if thread.CurrentID() == 0 {
		t.Skip("native thread ids not available")
	}
	assert.Equal(t, "worker-2", name)
}

func TestPool_RetractTask(t *testing.T) {
	pool := newTestPool(t, 1)
	gate, blockers := saturate(t, pool)

	keep := testutils.NewRecordingTask("keep")
	drop := testutils.NewRecordingTask("drop")
	pool.AddTask(keep)
	pool.AddTask(drop)
	require.Equal(t, 2, pool.QueuedJobCount())

	assert.True(t, pool.RetractTask(drop))
	assert.False(t, pool.RetractTask(drop), "second retract should find nothing")
	assert.Equal(t, 1, pool.QueuedJobCount())

	// a running task cannot be retracted
	assert.False(t, pool.RetractTask(blockers[0]))

	close(gate)
	require.True(t, keep.WaitDone(time.Second))

	pool.Destroy()
	assert.Equal(t, 0, drop.Executions())
	assert.Equal(t, 0, drop.Abandons(), "retracted task belongs to the caller")
	assert.Equal(t, int64(1), pool.Stats().Retracted)
}

func TestPool_RetractUnknownTask(t *testing.T) {
	pool := newTestPool(t, 1)
	assert.False(t, pool.RetractTask(testutils.NewRecordingTask("never-added")))
}

// valueTask is submitted by value and holds a slice, so its type is not comparable
type valueTask struct {
	data []int
	ran  *int32
}

func (v valueTask) Execute() { atomic.AddInt32(v.ran, 1) }

func (v valueTask) Abandon() {}

func TestPool_RetractUncomparableTask(t *testing.T) {
	pool := newTestPool(t, 1)
	gate, _ := saturate(t, pool)

	var ran int32
	queued := valueTask{data: []int{1}, ran: &ran}
	pool.AddTask(queued)
	require.Equal(t, 1, pool.QueuedJobCount())

	assert.NotPanics(t, func() {
		assert.False(t, pool.RetractTask(valueTask{data: []int{1}, ran: &ran}))
	})
	assert.Equal(t, 1, pool.QueuedJobCount())

	close(gate)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&ran) == 1 },
		time.Second, time.Millisecond)
}

func TestPool_TasksCanSubmitTasks(t *testing.T) {
	pool := newTestPool(t, 2)

	child := testutils.NewRecordingTask("child")
	parent := testutils.NewRecordingTask("parent").OnExecute(func() {
		pool.AddTask(child)
	})
	pool.AddTask(parent)

	require.True(t, parent.WaitDone(time.Second))
	require.True(t, child.WaitDone(time.Second))
	assert.Equal(t, 1, child.Executions())
}

func TestPool_Destroy(t *testing.T) {
	pool := newTestPool(t, 2)
	gate, blockers := saturate(t, pool)

	pending := []*testutils.RecordingTask{
		testutils.NewRecordingTask("p-0"),
		testutils.NewRecordingTask("p-1"),
	}
	for _, task := range pending {
		pool.AddTask(task)
	}

	destroyed := make(chan struct{})
	go func() {
		pool.Destroy()
		close(destroyed)
	}()

	for _, task := range pending {
		require.True(t, task.WaitDone(time.Second))
		assert.Equal(t, 1, task.Abandons())
		assert.Equal(t, 0, task.Executions())
	}

	select {
	case <-destroyed:
		t.Fatal("destroy returned while tasks were still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case <-destroyed:
	case <-time.After(time.Second):
		t.Fatal("destroy did not return after running tasks finished")
	}

	for _, b := range blockers {
		assert.Equal(t, 1, b.Executions())
		assert.Equal(t, 0, b.Abandons())
	}
	assert.True(t, pool.IsShuttingDown())
	assert.Equal(t, 0, pool.ThreadCount())
	assert.Equal(t, 0, pool.QueuedJobCount())
	assert.Empty(t, pool.WorkerStats())
}

func TestPool_DestroyIsIdempotent(t *testing.T) {
	pool := newTestPool(t, 2)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Destroy()
		}()
	}
	wg.Wait()

	assert.NoError(t, pool.Close())
	assert.Equal(t, 0, pool.ThreadCount())
}

func TestPool_DestroyAfterFailedNew(t *testing.T) {
	pool, err := New(&Config{ThreadCount: 0})
	require.ErrorIs(t, err, types.ErrInvalidThreadCount)
	require.Nil(t, pool)

	assert.NotPanics(t, pool.Destroy)
	assert.NotPanics(t, func() {
		assert.NoError(t, pool.Close())
	})
}

func TestPool_AddTaskAfterDestroy(t *testing.T) {
	pool := newTestPool(t, 1)
	pool.Destroy()

	var abandoned int32
	task := NewFuncTask(func() { t.Error("task must not run") }).
		OnAbandon(func() { atomic.AddInt32(&abandoned, 1) })
	pool.AddTask(task)

	assert.Equal(t, TaskAbandoned, task.Status())
	assert.Equal(t, int32(1), atomic.LoadInt32(&abandoned))
	assert.Equal(t, int64(1), pool.Stats().Abandoned)
	assert.Equal(t, int64(0), pool.Stats().Submitted)
}

func TestPool_Stats(t *testing.T) {
	pool := newTestPool(t, 2)

	initial := pool.Stats()
	assert.Equal(t, 2, initial.ThreadCount)
	assert.Equal(t, 2, initial.IdleWorkers)
	assert.Equal(t, 0, initial.BusyWorkers())

	for i := 0; i < 6; i++ {
		pool.AddTask(NewFuncTask(nil))
	}
	pool.AddTask(NewFuncTask(func() { panic("stats") }))

	require.Eventually(t, func() bool { return pool.Stats().Executed == 7 },
		time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return pool.Stats().IdleWorkers == 2 },
		time.Second, time.Millisecond)

	stats := pool.Stats()
	assert.Equal(t, int64(7), stats.Submitted)
	assert.Equal(t, int64(1), stats.Panicked)

	var processed int64
	workerStats := pool.WorkerStats()
	require.Len(t, workerStats, 2)
	for _, ws := range workerStats {
		processed += ws.TotalProcessed
		assert.NotEmpty(t, ws.Name)
	}
	assert.Equal(t, int64(7), processed)
}

func TestPool_MockClock(t *testing.T) {
	mClock := testutils.NewMockClock(t)
	pool, err := New(&Config{
		ThreadCount: 1,
		Clock:       testutils.NewClockWrapper(mClock),
	})
	require.NoError(t, err)
	defer pool.Destroy()

	task := testutils.NewRecordingTask("clocked")
	pool.AddTask(task)
	require.True(t, task.WaitDone(time.Second))

	require.Eventually(t, func() bool { return pool.WorkerStats()[0].TotalProcessed == 1 },
		time.Second, time.Millisecond)
	assert.Equal(t, mClock.Now().UnixNano(), pool.WorkerStats()[0].LastTaskTime.UnixNano())
}
