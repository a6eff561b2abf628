package graphql

import (
	"errors"
	"fmt"
)

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// QueryError is the single failure the executor can report: a query that
// could not be completed within the attempt ceiling.
type QueryError struct {
	Operation string
	Attempts  int
	Err       error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// HTTPError represents a non-2xx status from the endpoint. The registry
// rejects oversized queries this way, so these are retried like transport
// failures.
type HTTPError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}
