package bus

import (
	"context"
	"reflect"
	"sync"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// Sink accepts events from the router.
//
// Deliver reports whether the sink acted on the event. Returning false with
// a nil error means the sink saw the event and chose to ignore it. Deliver
// must be safe for concurrent use and should honor ctx; the router abandons
// a call when the per-sink timeout fires.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt event.Event) (delivered bool, err error)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, evt event.Event) (bool, error)
}

// NewSinkFunc returns a Sink backed by fn.
func NewSinkFunc(name string, fn func(ctx context.Context, evt event.Event) (bool, error)) *SinkFunc {
	return &SinkFunc{SinkName: name, Fn: fn}
}

// Name returns the sink name.
func (s *SinkFunc) Name() string { return s.SinkName }

// Deliver calls the wrapped function.
func (s *SinkFunc) Deliver(ctx context.Context, evt event.Event) (bool, error) {
	return s.Fn(ctx, evt)
}

type sinkEntry struct {
	sink Sink

	// mu orders deliveries against deregistration: a delivery holds the
	// read lock from its removed check until Deliver is about to be called.
	mu      sync.RWMutex
	removed bool
}

// launch runs call on a new goroutine unless the sink was removed. It
// returns once call is committed to run.
func (e *sinkEntry) launch(call func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.removed {
		return false
	}
	started := make(chan struct{})
	go func() {
		close(started)
		call()
	}()
	<-started
	return true
}

func (e *sinkEntry) remove() {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

// sameInstance reports whether a and b are the same registered value. Values
// of non-comparable types are never considered the same.
func sameInstance(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
