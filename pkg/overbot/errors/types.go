package errors

import (
	"fmt"
	"time"
)

// TimeoutError indicates an operation exceeded its deadline.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// ConnectionError reports a problem with a remote network connection.
// Closed marks a connection that will not recover on its own.
type ConnectionError struct {
	Endpoint string
	Closed   bool
	Err      error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	state := "disconnected"
	if e.Closed {
		state = "closed"
	}
	if e.Err != nil {
		return fmt.Sprintf("connection to %s %s: %v", e.Endpoint, state, e.Err)
	}
	return fmt.Sprintf("connection to %s %s", e.Endpoint, state)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Component string
	Value     any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Component, e.Value)
}
