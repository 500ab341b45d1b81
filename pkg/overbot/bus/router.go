// Package bus routes events from sources through the filter chain to sinks.
//
// Each registered source gets a bounded queue and a pump goroutine, so
// events from one source are processed in the order they were emitted while
// sources proceed independently. Registries are copy-on-write snapshots: no
// lock is held while a sink runs, and a registration is visible to every
// dispatch that starts after it returns.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/overbot/pkg/overbot/deadletter"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
	"github.com/randalmurphal/overbot/pkg/overbot/filter"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
	"github.com/randalmurphal/overbot/pkg/overbot/registry"
)

// Defaults applied by NewRouter for zero Config fields.
const (
	DefaultMaxHops             = 1
	DefaultQueueSize           = 64
	DefaultSinkTimeout         = 5 * time.Second
	DefaultDeliveryConcurrency = 16
)

// Config configures a Router.
type Config struct {
	// MaxHops is the number of times a derived event may re-enter the bus.
	// An event with more hops is dropped before filtering.
	MaxHops int

	// QueueSize bounds each source's ingest queue.
	QueueSize int

	// SinkTimeout bounds a single Deliver call.
	SinkTimeout time.Duration

	// DeliveryConcurrency bounds parallel deliveries of one event.
	DeliveryConcurrency int

	// OnLifecycle is called for every registration transition.
	OnLifecycle func(Notice)

	// OnDeliveryError is called when a sink fails to accept an event.
	OnDeliveryError func(evt event.Event, sink string, err error)
}

// Outcome is what happened to an event in Process.
type Outcome int

const (
	Dispatched Outcome = iota
	DroppedLoop
	DroppedFilter
)

func (o Outcome) String() string {
	switch o {
	case Dispatched:
		return "dispatched"
	case DroppedLoop:
		return "loop"
	case DroppedFilter:
		return "filtered"
	default:
		return "unknown"
	}
}

// Result describes one event's trip through Process.
type Result struct {
	// Event is the event as dispatched, after filter replacements.
	Event     event.Event
	Outcome   Outcome
	DroppedBy string
	Report    Report
}

// Router is the event bus.
type Router struct {
	cfg      Config
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	failures deadletter.Store
	chain    *filter.Chain

	sources *registry.Registry[string, *sourceEntry]
	sinks   *registry.Registry[string, *sinkEntry]

	stats counters

	// regMu serializes registration against Close.
	regMu  sync.Mutex
	closed atomic.Bool

	pumps   sync.WaitGroup
	workers sync.WaitGroup

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithSpans sets the span manager.
func WithSpans(s observability.SpanManager) Option {
	return func(r *Router) {
		r.spans = s
	}
}

// WithFailureStore records every delivery failure to store.
func WithFailureStore(store deadletter.Store) Option {
	return func(r *Router) {
		r.failures = store
	}
}

// WithChain sets the filter chain.
func WithChain(chain *filter.Chain) Option {
	return func(r *Router) {
		r.chain = chain
	}
}

// NewRouter creates a router. Zero Config fields take their defaults.
func NewRouter(cfg Config, opts ...Option) *Router {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = DefaultSinkTimeout
	}
	if cfg.DeliveryConcurrency <= 0 {
		cfg.DeliveryConcurrency = DefaultDeliveryConcurrency
	}

	r := &Router{
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		sources: registry.New[string, *sourceEntry](),
		sinks:   registry.New[string, *sinkEntry](),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = observability.Component(r.logger, "router")
	if r.chain == nil {
		r.chain = filter.NewChain(
			filter.WithLogger(r.logger),
			filter.WithMetrics(r.metrics),
			filter.WithTracer(r.spans),
		)
	}
	r.baseCtx, r.cancelBase = context.WithCancel(context.Background())
	return r
}

// Chain returns the router's filter chain.
func (r *Router) Chain() *filter.Chain {
	return r.chain
}

func (r *Router) notify(n Notice) {
	attrs := []any{slog.String("kind", n.Kind.String()), slog.String("name", n.Name)}
	if n.Err != nil {
		attrs = append(attrs, slog.String(observability.FieldError, n.Err.Error()))
	}
	r.logger.Info("lifecycle", attrs...)
	if r.cfg.OnLifecycle != nil {
		r.cfg.OnLifecycle(n)
	}
}

// RegisterSource registers src, starts its pump and then calls src.Start.
// If Start fails the registration is rolled back.
func (r *Router) RegisterSource(ctx context.Context, src Source) error {
	name := src.Name()
	if name == "" {
		return ErrInvalidName
	}

	entry := newSourceEntry(src, r.cfg.QueueSize)
	r.regMu.Lock()
	if r.closed.Load() {
		r.regMu.Unlock()
		return ErrClosed
	}
	err := r.sources.Add(name, entry, func(existing *sourceEntry) bool {
		return sameInstance(existing.src, src)
	})
	if err != nil {
		r.regMu.Unlock()
		return fmt.Errorf("%w: source %s", ErrDuplicate, name)
	}
	r.pumps.Add(1)
	r.regMu.Unlock()

	go r.pump(entry)
	r.notify(Notice{Kind: SourceRegistered, Name: name})

	if err := src.Start(ctx, &emitter{router: r, entry: entry}); err != nil {
		if r.detachSource(entry) {
			r.notify(Notice{Kind: SourceFailed, Name: name, Err: err})
		}
		return fmt.Errorf("start source %s: %w", name, err)
	}
	// A source that failed from inside Start is already detached.
	if cur, ok := r.sources.Get(name); ok && cur == entry {
		r.notify(Notice{Kind: SourceStarted, Name: name})
	}
	return nil
}

// detachSource removes entry from the registry if it is still the current
// registration for its name, and closes its queue.
func (r *Router) detachSource(entry *sourceEntry) bool {
	_, ok := r.sources.DeleteIf(entry.name, func(cur *sourceEntry) bool { return cur == entry })
	if ok {
		entry.close()
	}
	return ok
}

// DeregisterSource stops accepting events from the named source and calls
// its Stop. Events already queued are still processed.
func (r *Router) DeregisterSource(ctx context.Context, name string) error {
	entry, ok := r.sources.Get(name)
	if !ok || !r.detachSource(entry) {
		return fmt.Errorf("%w: source %s", ErrNotFound, name)
	}
	err := entry.src.Stop(ctx)
	r.notify(Notice{Kind: SourceDeregistered, Name: name, Err: err})
	if err != nil {
		return fmt.Errorf("stop source %s: %w", name, err)
	}
	return nil
}

// failSource handles a source-fatal error reported through its emitter.
func (r *Router) failSource(entry *sourceEntry, err error) {
	r.regMu.Lock()
	if r.closed.Load() {
		r.regMu.Unlock()
		return
	}
	r.workers.Add(1)
	r.regMu.Unlock()

	if !r.detachSource(entry) {
		r.workers.Done()
		return
	}
	r.stats.sourceFailures.Add(1)
	r.metrics.RecordSourceFailure(r.baseCtx, entry.name)
	observability.LogSourceFailure(r.logger, entry.name, err)
	r.notify(Notice{Kind: SourceFailed, Name: entry.name, Err: err})

	// Stop runs on its own goroutine: Fail may be called from inside the
	// source while it holds its own locks.
	go func() {
		defer r.workers.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), r.cfg.SinkTimeout)
		defer cancel()
		stopErr := entry.src.Stop(ctx)
		r.notify(Notice{Kind: SourceDeregistered, Name: entry.name, Err: stopErr})
	}()
}

// RegisterSink adds a sink. A duplicate name or a sink instance that is
// already registered is rejected.
func (r *Router) RegisterSink(sink Sink) error {
	name := sink.Name()
	if name == "" {
		return ErrInvalidName
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()
	if r.closed.Load() {
		return ErrClosed
	}
	err := r.sinks.Add(name, &sinkEntry{sink: sink}, func(existing *sinkEntry) bool {
		return sameInstance(existing.sink, sink)
	})
	if err != nil {
		return fmt.Errorf("%w: sink %s", ErrDuplicate, name)
	}
	r.notify(Notice{Kind: SinkRegistered, Name: name})
	return nil
}

// DeregisterSink removes a sink. No delivery to it starts after this
// returns; a delivery already running may finish.
func (r *Router) DeregisterSink(name string) error {
	entry, ok := r.sinks.Delete(name)
	if !ok {
		return fmt.Errorf("%w: sink %s", ErrNotFound, name)
	}
	entry.remove()
	r.notify(Notice{Kind: SinkDeregistered, Name: name})
	return nil
}

// Sources returns the registered source names in registration order.
func (r *Router) Sources() []string {
	return r.sources.Keys()
}

// Sinks returns the registered sink names in registration order.
func (r *Router) Sinks() []string {
	return r.sinks.Keys()
}

// Stats returns a snapshot of the router counters.
func (r *Router) Stats() Stats {
	return r.stats.snapshot()
}

// Ingest admits evt from the registered source named by its origin. It
// blocks while that source's queue is full.
func (r *Router) Ingest(ctx context.Context, evt event.Event) error {
	if evt.IsZero() {
		return ErrInvalidEvent
	}
	entry, ok := r.sources.Get(evt.Origin())
	if !ok {
		r.reject(ctx, evt, ErrSourceNotRegistered)
		return fmt.Errorf("%w: %s", ErrSourceNotRegistered, evt.Origin())
	}
	return r.enqueue(ctx, entry, evt)
}

func (r *Router) enqueue(ctx context.Context, entry *sourceEntry, evt event.Event) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := entry.enqueue(ctx, evt); err != nil {
		if errors.Is(err, ErrSourceNotRegistered) {
			r.reject(ctx, evt, err)
			return fmt.Errorf("%w: %s", ErrSourceNotRegistered, entry.name)
		}
		return err
	}
	r.stats.ingested.Add(1)
	r.metrics.RecordIngest(ctx, entry.name, true)
	return nil
}

func (r *Router) reject(ctx context.Context, evt event.Event, err error) {
	r.stats.rejected.Add(1)
	r.metrics.RecordIngest(ctx, evt.Origin(), false)
	observability.LogRejected(r.logger, evt, err)
}

// pump processes one source's queue in order until it is closed.
func (r *Router) pump(entry *sourceEntry) {
	defer r.pumps.Done()
	for evt := range entry.queue {
		r.Process(r.baseCtx, evt)
	}
}

// Process runs evt through the loop guard and filter chain and dispatches
// it if it survives. Pumps call it for queued events; it may also be called
// directly for synchronous routing.
func (r *Router) Process(ctx context.Context, evt event.Event) Result {
	ctx, span := r.spans.StartIngestSpan(ctx, evt)
	defer r.spans.EndSpanWithError(span, nil)

	if evt.Hops() > r.cfg.MaxHops {
		r.stats.loopDropped.Add(1)
		r.metrics.RecordDrop(ctx, observability.DropLoop, "loop")
		observability.LogDrop(r.logger, evt, "loop", fmt.Sprintf("hops %d exceed limit %d", evt.Hops(), r.cfg.MaxHops))
		return Result{Event: evt, Outcome: DroppedLoop, DroppedBy: "loop"}
	}

	out := r.chain.Evaluate(ctx, evt)
	if out.Dropped {
		r.stats.filterDropped.Add(1)
		r.metrics.RecordDrop(ctx, observability.DropFilter, out.DroppedBy)
		observability.LogDrop(r.logger, out.Event, out.DroppedBy, out.Reason)
		return Result{Event: out.Event, Outcome: DroppedFilter, DroppedBy: out.DroppedBy}
	}

	report := r.Dispatch(ctx, out.Event)
	return Result{Event: out.Event, Outcome: Dispatched, Report: report}
}

// Close deregisters and stops every source, then waits for queued events to
// drain. If ctx ends first, in-flight deliveries are cancelled and ctx.Err()
// is returned.
func (r *Router) Close(ctx context.Context) error {
	r.regMu.Lock()
	if !r.closed.CompareAndSwap(false, true) {
		r.regMu.Unlock()
		return nil
	}
	r.regMu.Unlock()

	var firstErr error
	for _, name := range r.Sources() {
		entry, ok := r.sources.Get(name)
		if !ok || !r.detachSource(entry) {
			continue
		}
		if err := entry.src.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop source %s: %w", name, err)
		}
		r.notify(Notice{Kind: SourceDeregistered, Name: name})
	}

	done := make(chan struct{})
	go func() {
		r.pumps.Wait()
		r.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancelBase()
		return firstErr
	case <-ctx.Done():
		r.cancelBase()
		return ctx.Err()
	}
}
