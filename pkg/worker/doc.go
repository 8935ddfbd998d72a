/*
Package worker provides a fixed-size thread pool whose workers each own a dedicated OS thread.

# Overview

This package implements a thread pool built on package thread, supporting:
- A fixed number of workers, each locked to its own OS thread
- Optional CPU pinning and a per-thread init hook
- Direct hand-off of tasks to idle workers without a shared channel
- Retraction of tasks that have not been dispatched yet
- Abandonment of pending tasks on shutdown
- Panic recovery with structured error context
- Statistics for the pool and every worker

# Core Components

## Pool

The pool keeps two LIFO lists under one lock: idle workers and pending tasks.
At most one of them is non-empty whenever the lock is released.
- AddTask hands the task to the most recently idled worker, or queues it
- A worker that finishes a task takes the newest pending task before parking
- RetractTask removes a pending task without running or abandoning it
- Destroy abandons what is pending, waits for running tasks and joins every thread

## TaskWorker

The run loop of a single pool thread, responsible for:
- Waiting on an auto-reset signal for its next assignment
- Task execution with panic recovery
- Statistics collection
- Lifecycle management from idle to terminated

## Task

types.Task has two methods. Exactly one of them is called for every task the
pool accepts: Execute on a worker thread, or Abandon when the pool shuts down
before the task was dispatched.
- FuncTask: function-backed task with an observable outcome
- WaitAll: waits for any set of tasks that expose a done channel

# Ordering

Neither list is FIFO. The newest pending task runs next and the most recently
idled worker is woken first, which keeps hot threads busy and cold threads
asleep. Callers that need ordering must chain tasks themselves.

# Concurrency Safety

- Every method of Pool may be called from any goroutine
- Tasks may submit further tasks to the pool that runs them
- Destroy must not be called from inside a task, since it waits for that task
- QueuedJobCount and ThreadCount are advisory snapshots

# Usage Examples

Basic usage:

	pool, err := worker.New(&worker.Config{
		ThreadCount: 4,
		NamePrefix:  "render",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Destroy()

	task := worker.NewFuncTask(func() {
		// Execute work
	})
	pool.AddTask(task)

	if err := task.Wait(ctx); err != nil {
		log.Printf("task did not finish: %v", err)
	}

Retracting a task that is still queued:

	if pool.RetractTask(task) {
		// the pool no longer references task
	}

Retrieve statistics:

	stats := pool.Stats()
	fmt.Printf("Busy Workers: %d/%d\n", stats.BusyWorkers(), stats.ThreadCount)
	fmt.Printf("Executed: %d, Abandoned: %d\n", stats.Executed, stats.Abandoned)

# Configuration Options

Config supports the following configurations:
- ThreadCount: Number of worker threads
- NamePrefix: Prefix for worker thread names
- Registry: Registry receiving the worker threads
- CPUs: CPUs assigned round-robin to the workers
- ThreadInit: Hook run on every worker thread before it takes work
- StartTimeout: Bound on the startup of each thread
- Clock: Time source, replaceable in tests
- Logger: zerolog logger for pool events
- PanicHandler: Receives errors built from panicking tasks

# Lock Diagnostics

The pool lock and the thread registry lock are github.com/sasha-s/go-deadlock
mutexes. Detection is on by default: every Lock records lock order and
holder bookkeeping, and a goroutine that waits longer than
deadlock.Opts.DeadlockTimeout (30s unless changed) triggers
deadlock.Opts.OnPotentialDeadlock, which by default exits the process.
The options are process-wide. Programs that do not want this set

	deadlock.Opts.Disable = true

before creating a pool. cmd/raytrace does so unless --detect-deadlocks is
given.
*/
package worker
