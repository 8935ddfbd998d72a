// Package types defines core interfaces and types for the thread pool library
package types

// Task is a unit of work submitted to a pool.
//
// Execute is called exactly once for every accepted task that is not retracted,
// on an unspecified worker thread, possibly concurrently with other tasks.
// Abandon is called instead of Execute when the pool discards the task during
// shutdown; it must release whatever the task holds without doing the work.
// Abandon is never called once Execute has started.
//
// Implementations must be comparable (normally a pointer type) because
// retraction matches tasks by identity.
type Task interface {
	// Execute performs the work
	Execute()

	// Abandon releases the task without performing the work
	Abandon()
}

// Identifiable is implemented by tasks that carry an ID for logging
type Identifiable interface {
	ID() string
}

// TaskPool defines the thread pool interface
type TaskPool interface {
	// AddTask submits a task; after shutdown the task is abandoned instead
	AddTask(task Task)

	// RetractTask removes a task that has not been dispatched yet
	RetractTask(task Task) bool

	// Destroy abandons pending tasks, waits for running ones and stops all threads
	Destroy()

	// QueuedJobCount returns an advisory count of pending tasks
	QueuedJobCount() int

	// ThreadCount returns an advisory count of worker threads
	ThreadCount() int

	// Stats returns pool statistics
	Stats() PoolStats
}

// PoolStats defines statistics for a thread pool
type PoolStats struct {
	// ThreadCount is the number of worker threads
	ThreadCount int

	// IdleWorkers is the number of workers waiting for work
	IdleWorkers int

	// Queued is the number of tasks in the pending queue
	Queued int

	// Submitted is the number of tasks accepted by AddTask
	Submitted int64

	// Executed is the number of tasks whose Execute returned, panics included
	Executed int64

	// Abandoned is the number of tasks abandoned by shutdown
	Abandoned int64

	// Retracted is the number of tasks removed by RetractTask
	Retracted int64

	// Panicked is the number of tasks whose Execute panicked
	Panicked int64
}

// BusyWorkers returns the number of workers executing a task
func (s PoolStats) BusyWorkers() int {
	return s.ThreadCount - s.IdleWorkers
}

// ErrorHandler defines an error handling function
type ErrorHandler func(error) error
