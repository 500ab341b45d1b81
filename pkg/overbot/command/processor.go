// Package command turns command-shaped messages into result events.
//
// A Processor is registered with the router twice under one name: as a sink
// it receives every message and recognizes commands; as a source it injects
// handler results. Results are always derived from the command event, so
// they carry its correlation and one more hop and cannot cycle.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/randalmurphal/overbot/pkg/overbot/bus"
	oberrors "github.com/randalmurphal/overbot/pkg/overbot/errors"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
	"github.com/randalmurphal/overbot/pkg/overbot/registry"
)

// Defaults for a new Processor.
const (
	DefaultName           = "commands"
	DefaultPrefix         = "!"
	DefaultWorkers        = 4
	DefaultHandlerTimeout = 10 * time.Second
)

var (
	// ErrDuplicate is returned when a verb is registered twice.
	ErrDuplicate = errors.New("command: verb already registered")

	// ErrInvalidVerb is returned for an empty verb or one containing spaces.
	ErrInvalidVerb = errors.New("command: invalid verb")

	// ErrNotRunning is returned by Deliver before Start or after Stop.
	ErrNotRunning = errors.New("command: processor not running")
)

type registration struct {
	handler Handler
	help    string
}

type job struct {
	cmd        event.Event
	invocation Invocation
	reg        registration
	known      bool
}

// Processor is a bus.Source and bus.Sink that runs command handlers.
type Processor struct {
	name         string
	prefix       string
	unknownReply bool
	workers      int
	queueSize    int
	timeout      time.Duration
	logger       *slog.Logger
	metrics      observability.MetricsRecorder

	handlers *registry.Registry[string, registration]

	// mu guards the run state; Deliver holds the read lock while queueing.
	mu      sync.RWMutex
	running bool
	emit    bus.Emitter
	jobs    chan job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Processor.
type Option func(*Processor)

// WithName sets the name used for both the source and sink registration.
func WithName(name string) Option {
	return func(p *Processor) { p.name = name }
}

// WithPrefix sets the command prefix.
func WithPrefix(prefix string) Option {
	return func(p *Processor) { p.prefix = prefix }
}

// WithWorkers sets the number of handler workers.
func WithWorkers(n int) Option {
	return func(p *Processor) { p.workers = n }
}

// WithQueueSize bounds the number of commands waiting for a worker.
func WithQueueSize(n int) Option {
	return func(p *Processor) { p.queueSize = n }
}

// WithHandlerTimeout bounds each handler call.
func WithHandlerTimeout(d time.Duration) Option {
	return func(p *Processor) { p.timeout = d }
}

// WithUnknownReply answers unknown verbs instead of ignoring them.
func WithUnknownReply(on bool) Option {
	return func(p *Processor) { p.unknownReply = on }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a processor with no verbs registered.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		name:     DefaultName,
		prefix:   DefaultPrefix,
		workers:  DefaultWorkers,
		timeout:  DefaultHandlerTimeout,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		handlers: registry.New[string, registration](),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = DefaultWorkers
	}
	if p.queueSize <= 0 {
		p.queueSize = p.workers * 16
	}
	if p.timeout <= 0 {
		p.timeout = DefaultHandlerTimeout
	}
	p.logger = observability.Component(p.logger, "commands")
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string { return p.name }

// Prefix returns the command prefix.
func (p *Processor) Prefix() string { return p.prefix }

// Register adds a handler for verb. Verbs are case-insensitive.
func (p *Processor) Register(verb string, h Handler, help string) error {
	verb = strings.ToLower(verb)
	if verb == "" || strings.ContainsFunc(verb, unicode.IsSpace) {
		return fmt.Errorf("%w: %q", ErrInvalidVerb, verb)
	}
	if err := p.handlers.Add(verb, registration{handler: h, help: help}, nil); err != nil {
		return fmt.Errorf("%w: %s", ErrDuplicate, verb)
	}
	return nil
}

// Verbs returns the registered verbs in registration order.
func (p *Processor) Verbs() []string {
	return p.handlers.Keys()
}

// Help returns the help text registered for verb.
func (p *Processor) Help(verb string) (string, bool) {
	reg, ok := p.handlers.Get(strings.ToLower(verb))
	return reg.help, ok
}

// Start records the emitter and starts the worker pool.
func (p *Processor) Start(_ context.Context, emit bus.Emitter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("command: processor %s already started", p.name)
	}
	p.emit = emit
	p.jobs = make(chan job, p.queueSize)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(p.jobs)
	}
	return nil
}

// Stop stops accepting commands and waits for queued and in-flight handlers.
// If ctx ends first, running handlers are cancelled.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.jobs)
	cancel := p.cancel
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Deliver recognizes a command in a message event and queues it for a
// worker. It reports false for events that are not commands and for unknown
// verbs that are not answered.
func (p *Processor) Deliver(ctx context.Context, evt event.Event) (bool, error) {
	if evt.Kind() != event.KindMessage {
		return false, nil
	}
	inv, ok := Parse(p.prefix, evt.Text())
	if !ok {
		return false, nil
	}
	reg, known := p.handlers.Get(inv.Verb)
	if !known && !p.unknownReply {
		return false, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return false, ErrNotRunning
	}
	select {
	case p.jobs <- job{cmd: evt, invocation: inv, reg: reg, known: known}:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *Processor) work(jobs <-chan job) {
	defer p.wg.Done()
	for j := range jobs {
		p.process(j)
	}
}

func (p *Processor) process(j job) {
	if !j.known {
		p.publish(j.cmd, []event.Event{Reply(j.cmd, fmt.Sprintf("unknown command: %s%s", p.prefix, j.invocation.Verb))})
		return
	}

	start := time.Now()
	results, err := p.run(j)
	p.metrics.RecordCommand(p.ctx, j.invocation.Verb, time.Since(start), err)
	if err != nil {
		observability.LogCommandError(p.logger, j.cmd, j.invocation.Verb, err)
		var herr *HandlerError
		msg := err.Error()
		if errors.As(err, &herr) {
			msg = herr.Err.Error()
		}
		results = append(results, Reply(j.cmd, "error: "+msg))
	}
	p.publish(j.cmd, results)
}

type runResult struct {
	events []event.Event
	err    error
}

// run calls the handler under the handler timeout, recovering panics.
func (p *Processor) run(j job) ([]event.Event, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	ch := make(chan runResult, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				ch <- runResult{err: &oberrors.PanicError{Component: "command " + j.invocation.Verb, Value: v}}
			}
		}()
		evts, err := j.reg.handler.Handle(ctx, j.cmd, j.invocation.Args)
		ch <- runResult{events: evts, err: err}
	}()

	var res runResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
		if errors.Is(res.err, context.DeadlineExceeded) {
			res.err = &oberrors.TimeoutError{Operation: "command " + j.invocation.Verb, Duration: p.timeout}
		}
	}
	if res.err != nil {
		return res.events, &HandlerError{Verb: j.invocation.Verb, Err: res.err}
	}
	return res.events, nil
}

// publish emits results as derivations of cmd.
func (p *Processor) publish(cmd event.Event, results []event.Event) {
	for _, r := range results {
		if r.IsZero() {
			continue
		}
		if r.CausationID() != cmd.ID() || r.CorrelationID() != cmd.CorrelationID() {
			r = cmd.Derive(p.name, r.Kind(), r.Payload())
		}
		if r.Sender() == "" {
			pl := r.Payload()
			pl.Sender = p.name
			r = r.WithPayload(pl)
		}
		if err := p.emit.Emit(p.ctx, r.WithOrigin(p.name)); err != nil {
			p.logger.Warn("emit command result",
				append(observability.EventAttrs(r), slog.String(observability.FieldError, err.Error()))...)
		}
	}
}
