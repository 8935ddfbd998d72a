// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrInvalidThreadCount indicates a pool was configured with no threads
	ErrInvalidThreadCount = errors.New("thread count must be positive")

	// ErrThreadStartTimeout indicates a worker thread did not report ready in time
	ErrThreadStartTimeout = errors.New("thread start timeout")

	// ErrAffinityUnsupported indicates CPU pinning is not available on this platform
	ErrAffinityUnsupported = errors.New("cpu affinity not supported on this platform")

	// ErrInvalidCPU indicates a CPU index outside the supported range
	ErrInvalidCPU = errors.New("invalid cpu index")

	// ErrPoolDestroyed indicates the pool has already been destroyed
	ErrPoolDestroyed = errors.New("pool is destroyed")
)

// ThreadPoolError describes a failure inside the pool machinery: a worker that
// could not start, or a task that panicked on a worker thread.
type ThreadPoolError struct {
	// Operation is the name of the operation where the error occurred
	Operation string

	// Thread is the name of the thread involved, if any
	Thread string

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *ThreadPoolError) Error() string {
	if e.Thread != "" {
		return fmt.Sprintf("threadpool error in operation %s on %s: %v", e.Operation, e.Thread, e.Cause)
	}
	return fmt.Sprintf("threadpool error in operation %s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error
func (e *ThreadPoolError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *ThreadPoolError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewThreadPoolError creates a new ThreadPoolError
func NewThreadPoolError(operation, thread string, cause error) *ThreadPoolError {
	return &ThreadPoolError{
		Operation: operation,
		Thread:    thread,
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *ThreadPoolError) WithContext(key string, value interface{}) *ThreadPoolError {
	e.Context[key] = value
	return e
}
