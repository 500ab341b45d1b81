package bus

import (
	"context"
	"sync"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// Source produces events. The router calls Start once after registration
// and Stop once on deregistration.
//
// Start must not block: a source that reads from a network starts its own
// goroutine and pushes events through emit.
type Source interface {
	Name() string
	Start(ctx context.Context, emit Emitter) error
	Stop(ctx context.Context) error
}

// Emitter is the source-facing side of the router.
type Emitter interface {
	// Emit queues evt for routing. It blocks while the source's queue is
	// full and returns ctx.Err() if ctx ends first. The event's origin is
	// stamped with the source's name.
	Emit(ctx context.Context, evt event.Event) error

	// Fail reports a source-fatal error. The router deregisters the source
	// and stops it. Other sources are unaffected.
	Fail(err error)
}

type sourceEntry struct {
	src   Source
	name  string
	queue chan event.Event

	// mu guards closed; senders hold the read lock while enqueueing so the
	// queue is never closed under them.
	mu     sync.RWMutex
	closed bool
}

func newSourceEntry(src Source, queueSize int) *sourceEntry {
	return &sourceEntry{
		src:   src,
		name:  src.Name(),
		queue: make(chan event.Event, queueSize),
	}
}

// enqueue appends evt to the queue, blocking while it is full.
func (e *sourceEntry) enqueue(ctx context.Context, evt event.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrSourceNotRegistered
	}
	select {
	case e.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting events. Queued events are still drained by the pump.
// It reports whether this call closed the entry.
func (e *sourceEntry) close() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	close(e.queue)
	return true
}

type emitter struct {
	router *Router
	entry  *sourceEntry
}

func (em *emitter) Emit(ctx context.Context, evt event.Event) error {
	if evt.IsZero() {
		return ErrInvalidEvent
	}
	if evt.Origin() != em.entry.name {
		evt = evt.WithOrigin(em.entry.name)
	}
	return em.router.enqueue(ctx, em.entry, evt)
}

func (em *emitter) Fail(err error) {
	em.router.failSource(em.entry, err)
}
