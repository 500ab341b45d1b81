package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	oberrors "github.com/randalmurphal/overbot/pkg/overbot/errors"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
)

// DefaultTimeout bounds a single filter evaluation.
const DefaultTimeout = time.Second

// entry is a filter with its configuration.
type entry struct {
	filter  Filter
	timeout time.Duration
}

// Outcome is the result of running an event through the chain.
type Outcome struct {
	// Event is the event after all replacements. It is the input event when
	// nothing replaced it.
	Event event.Event

	// Dropped reports whether a filter dropped the event.
	Dropped bool

	// DroppedBy names the filter that dropped the event.
	DroppedBy string

	// Reason is the dropping filter's reason.
	Reason string

	// FailedOpen names the filters that errored, timed out or panicked and
	// were treated as pass.
	FailedOpen []string
}

// Chain is an ordered list of filters. Filters can be appended or removed
// while events are being evaluated; an evaluation uses the list as it was
// when the evaluation started.
type Chain struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]entry]

	timeout time.Duration
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithTimeout sets the default per-filter timeout.
func WithTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for fail-open warnings.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) ChainOption {
	return func(c *Chain) {
		c.metrics = m
	}
}

// WithTracer sets the span manager used for per-filter spans.
func WithTracer(s observability.SpanManager) ChainOption {
	return func(c *Chain) {
		c.spans = s
	}
}

// EntryOption configures a single filter in the chain.
type EntryOption func(*entry)

// WithFilterTimeout overrides the chain timeout for one filter.
func WithFilterTimeout(d time.Duration) EntryOption {
	return func(e *entry) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewChain creates an empty chain.
func NewChain(opts ...ChainOption) *Chain {
	c := &Chain{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = observability.Component(c.logger, "filter")
	c.entries.Store(&[]entry{})
	return c
}

// Append adds f to the end of the chain.
func (c *Chain) Append(f Filter, opts ...EntryOption) error {
	e := entry{filter: f, timeout: c.timeout}
	for _, opt := range opts {
		opt(&e)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.entries.Load()
	for _, existing := range cur {
		if existing.filter.Name() == f.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicate, f.Name())
		}
	}
	next := make([]entry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, e)
	c.entries.Store(&next)
	return nil
}

// Remove deletes the named filter. It reports whether the filter was present.
func (c *Chain) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.entries.Load()
	idx := slices.IndexFunc(cur, func(e entry) bool { return e.filter.Name() == name })
	if idx < 0 {
		return false
	}
	next := slices.Concat(cur[:idx], cur[idx+1:])
	c.entries.Store(&next)
	return true
}

// Names returns the filter names in evaluation order.
func (c *Chain) Names() []string {
	cur := *c.entries.Load()
	names := make([]string, len(cur))
	for i, e := range cur {
		names[i] = e.filter.Name()
	}
	return names
}

// Len returns the number of filters.
func (c *Chain) Len() int {
	return len(*c.entries.Load())
}

// Close releases resources held by filters that implement Closer.
func (c *Chain) Close() error {
	var errs []error
	for _, e := range *c.entries.Load() {
		if cl, ok := e.filter.(Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, &EvaluationError{Filter: e.filter.Name(), Err: err})
			}
		}
	}
	return errors.Join(errs...)
}

// Evaluate runs evt through the chain in order. The first drop stops the
// chain. A replacement is what the next filter sees. A filter that errors,
// times out, panics, returns an unknown action, or replaces with a zero event
// is treated as pass.
func (c *Chain) Evaluate(ctx context.Context, evt event.Event) Outcome {
	out := Outcome{Event: evt}
	for _, e := range *c.entries.Load() {
		name := e.filter.Name()

		fctx, span := c.spans.StartFilterSpan(ctx, name)
		start := time.Now()
		verdict, err := c.run(fctx, e, out.Event)
		if err == nil {
			err = checkVerdict(verdict)
		}
		c.metrics.RecordFilter(ctx, name, time.Since(start), err != nil)

		if err != nil {
			c.spans.EndSpanWithError(span, err)
			observability.LogFailOpen(c.logger, out.Event, name, err)
			out.FailedOpen = append(out.FailedOpen, name)
			continue
		}

		c.spans.AddSpanEvent(fctx, verdict.Action.String(), attribute.String("reason", verdict.Reason))
		c.spans.EndSpanWithError(span, nil)

		switch verdict.Action {
		case Drop:
			out.Dropped = true
			out.DroppedBy = name
			out.Reason = verdict.Reason
			return out
		case Replace:
			out.Event = verdict.Replacement
		}
	}
	return out
}

type result struct {
	verdict Verdict
	err     error
}

// run evaluates one filter under its timeout, recovering panics. A filter
// that ignores its context is abandoned when the timeout fires.
func (c *Chain) run(ctx context.Context, e entry, evt event.Event) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: &oberrors.PanicError{Component: e.filter.Name(), Value: r}}
			}
		}()
		v, err := e.filter.Evaluate(ctx, evt)
		ch <- result{verdict: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return Verdict{}, &EvaluationError{Filter: e.filter.Name(), Err: r.err}
		}
		return r.verdict, nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = &oberrors.TimeoutError{Operation: "filter " + e.filter.Name(), Duration: e.timeout}
		}
		return Verdict{}, &EvaluationError{Filter: e.filter.Name(), Err: err}
	}
}

func checkVerdict(v Verdict) error {
	switch v.Action {
	case Pass, Drop:
		return nil
	case Replace:
		if v.Replacement.IsZero() {
			return errors.New("replace verdict without replacement event")
		}
		return nil
	default:
		return fmt.Errorf("unknown action %s", v.Action)
	}
}
