package filter

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrDuplicate is returned when a filter name is already in the chain.
	ErrDuplicate = errors.New("filter: duplicate name")

	// ErrUnknownType is returned by Build for an unregistered filter type.
	ErrUnknownType = errors.New("filter: unknown type")

	// ErrInvalidOptions is returned when a filter's options cannot be used.
	ErrInvalidOptions = errors.New("filter: invalid options")
)

// EvaluationError records why a filter was skipped and the event passed.
type EvaluationError struct {
	Filter string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Filter, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
