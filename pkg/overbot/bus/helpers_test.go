package bus_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/overbot/pkg/overbot/bus"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// testSource is a Source whose emitter is exposed to the test.
type testSource struct {
	name     string
	startErr error
	// failErr, when set, is reported through Fail from inside Start.
	failErr error

	mu      sync.Mutex
	emit    bus.Emitter
	stopped atomic.Int32
}

func newSource(name string) *testSource {
	return &testSource{name: name}
}

func (s *testSource) Name() string { return s.name }

func (s *testSource) Start(_ context.Context, emit bus.Emitter) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()
	if s.failErr != nil {
		emit.Fail(s.failErr)
	}
	return nil
}

func (s *testSource) Stop(context.Context) error {
	s.stopped.Add(1)
	return nil
}

func (s *testSource) emitter() bus.Emitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit
}

func (s *testSource) say(t *testing.T, sender, text string) event.Event {
	t.Helper()
	evt := event.New(event.KindMessage, s.name, event.Payload{Sender: sender, Text: text})
	require.NoError(t, s.emitter().Emit(context.Background(), evt))
	return evt
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	name string

	mu     sync.Mutex
	events []event.Event
	got    chan event.Event
}

func newRecorder(name string) *recordingSink {
	return &recordingSink{name: name, got: make(chan event.Event, 1024)}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, evt event.Event) (bool, error) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	s.got <- evt
	return true, nil
}

func (s *recordingSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Text()
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// next waits for one delivery.
func (s *recordingSink) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case evt := <-s.got:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("sink %s: timed out waiting for delivery", s.name)
		return event.Event{}
	}
}

// none asserts no delivery arrives within a short window.
func (s *recordingSink) none(t *testing.T) {
	t.Helper()
	select {
	case evt := <-s.got:
		t.Fatalf("sink %s: unexpected delivery %s", s.name, evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// relay is a bridge that sends everything it receives back out, derived
// from what it got.
type relay struct {
	*testSource
	delivered atomic.Int32
}

func newRelay(name string) *relay {
	return &relay{testSource: newSource(name)}
}

func (b *relay) Deliver(ctx context.Context, evt event.Event) (bool, error) {
	b.delivered.Add(1)
	out := evt.Derive(b.name, evt.Kind(), event.Payload{Sender: evt.Sender(), Text: evt.Text()})
	return true, b.emitter().Emit(ctx, out)
}

func failingSink(name string) bus.Sink {
	return bus.NewSinkFunc(name, func(context.Context, event.Event) (bool, error) {
		return false, errors.New("network unreachable")
	})
}

func newTestRouter(t *testing.T, cfg bus.Config, opts ...bus.Option) *bus.Router {
	t.Helper()
	r := bus.NewRouter(cfg, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r
}
