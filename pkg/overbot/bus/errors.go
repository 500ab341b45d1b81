package bus

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrDuplicate is returned when a name or instance is already registered.
	ErrDuplicate = errors.New("bus: already registered")

	// ErrSourceNotRegistered is returned by Ingest for an unknown origin.
	ErrSourceNotRegistered = errors.New("bus: source not registered")

	// ErrNotFound is returned when deregistering an unknown name.
	ErrNotFound = errors.New("bus: not found")

	// ErrClosed is returned by a router that has been closed.
	ErrClosed = errors.New("bus: router closed")

	// ErrInvalidName is returned for an empty source or sink name.
	ErrInvalidName = errors.New("bus: invalid name")

	// ErrInvalidEvent is returned when emitting a zero event.
	ErrInvalidEvent = errors.New("bus: invalid event")
)

// DeliveryError is a single sink's failure to accept an event.
type DeliveryError struct {
	Sink    string
	EventID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.EventID, e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
