// Package nats bridges a remote network onto the bus through a pair of NATS
// subjects.
//
// Inbound messages carry events in their JSON wire form. They keep their
// identity, correlation and hop count and are re-stamped with the bridge's
// name as origin, so a message that loops through a remote network is still
// caught by the router's hop limit. Delivered events are published to the
// outbound subject in the same form.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/overbot/pkg/overbot/bus"
	oberrors "github.com/randalmurphal/overbot/pkg/overbot/errors"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
)

// Config configures a Bridge.
type Config struct {
	// Name is the source and sink name.
	Name string

	// URL is the NATS server URL.
	URL string

	// Inbound is the subject read for incoming events. Empty disables the
	// source half.
	Inbound string

	// Outbound is the subject delivered events are published to. Empty
	// disables the sink half.
	Outbound string

	// Retry governs the initial connect. Zero uses errors.DefaultRetry.
	Retry oberrors.RetryConfig
}

// ErrNotConnected is returned by Deliver before the connection is up.
var ErrNotConnected = errors.New("nats: not connected")

// Bridge is a bus.Source and bus.Sink over NATS.
type Bridge struct {
	cfg    Config
	dial   Dialer
	logger *slog.Logger

	mu       sync.Mutex
	conn     Conn
	sub      Subscription
	emit     bus.Emitter
	cancel   context.CancelFunc
	stopping bool
	ready    chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDialer replaces the nats.go dialer.
func WithDialer(d Dialer) Option {
	return func(b *Bridge) { b.dial = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// New creates a bridge. It connects when started.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	if cfg.Name == "" {
		return nil, errors.New("nats: bridge name is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats %s: url is required", cfg.Name)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = oberrors.DefaultRetry
	}
	b := &Bridge{cfg: cfg, ready: make(chan struct{})}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = observability.Component(b.logger, "nats").With(slog.String(observability.FieldSource, cfg.Name))
	if b.dial == nil {
		b.dial = NewDialer(DialOptions{ClientName: "overbot-" + cfg.Name, Logger: b.logger})
	}
	return b, nil
}

// Name returns the bridge name.
func (b *Bridge) Name() string { return b.cfg.Name }

// Ready is closed once the connection is established and subscribed.
func (b *Bridge) Ready() <-chan struct{} { return b.ready }

// Start connects in the background. A connect that exhausts its retries, or
// a connection that later closes for good, is reported through emit.Fail.
func (b *Bridge) Start(_ context.Context, emit bus.Emitter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.emit != nil {
		return fmt.Errorf("nats %s: already started", b.cfg.Name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.emit = emit
	b.cancel = cancel
	go b.connect(ctx)
	return nil
}

func (b *Bridge) connect(ctx context.Context) {
	cfg := b.cfg.Retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		b.logger.Warn("connect failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String(observability.FieldError, err.Error()),
		)
	}

	res := oberrors.WithRetryContext(ctx, cfg, func(ctx context.Context) (Conn, error) {
		return b.dial(ctx, b.cfg.URL, b.closed)
	})
	if res.Err != nil {
		if ctx.Err() == nil {
			b.report(oberrors.Fatal(res.Err, fmt.Sprintf("nats %s: connect %s", b.cfg.Name, b.cfg.URL)))
		}
		return
	}
	conn := res.Value

	var sub Subscription
	if b.cfg.Inbound != "" {
		var err error
		sub, err = conn.Subscribe(b.cfg.Inbound, func(data []byte) { b.receive(ctx, data) })
		if err != nil {
			conn.Close()
			if ctx.Err() == nil {
				b.report(oberrors.Fatal(err, fmt.Sprintf("nats %s: subscribe %s", b.cfg.Name, b.cfg.Inbound)))
			}
			return
		}
	}

	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		conn.Close()
		return
	}
	b.conn, b.sub = conn, sub
	b.mu.Unlock()
	close(b.ready)
	b.logger.Info("connected", slog.String("url", b.cfg.URL))
}

// closed is the connection's closed callback.
func (b *Bridge) closed(lastErr error) {
	b.report(&oberrors.ConnectionError{Endpoint: b.cfg.URL, Closed: true, Err: lastErr})
}

// report hands fatal errors to the router, which deregisters and stops the
// bridge. Anything else is logged and the bridge keeps running.
func (b *Bridge) report(err error) {
	b.mu.Lock()
	stopping, emit := b.stopping, b.emit
	b.mu.Unlock()
	if stopping || emit == nil {
		return
	}
	if oberrors.IsFatal(err) {
		emit.Fail(err)
		return
	}
	b.logger.Warn("connection trouble",
		slog.String("category", oberrors.Categorize(err).String()),
		slog.String(observability.FieldError, err.Error()),
	)
}

func (b *Bridge) receive(ctx context.Context, data []byte) {
	var evt event.Event
	if err := json.Unmarshal(data, &evt); err != nil || evt.Kind() == "" {
		b.logger.Warn("discarding malformed message", slog.String("subject", b.cfg.Inbound))
		return
	}
	evt = evt.WithOrigin(b.cfg.Name)
	if err := b.emit.Emit(ctx, evt); err != nil && ctx.Err() == nil {
		b.logger.Debug("inbound event not accepted",
			append(observability.EventAttrs(evt), slog.String(observability.FieldError, err.Error()))...)
	}
}

// Stop unsubscribes and closes the connection.
func (b *Bridge) Stop(context.Context) error {
	b.mu.Lock()
	b.stopping = true
	if b.cancel != nil {
		b.cancel()
	}
	conn, sub := b.conn, b.sub
	b.conn, b.sub = nil, nil
	b.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	if conn != nil {
		conn.Close()
	}
	return err
}

// Deliver publishes evt to the outbound subject. A publish on a connection
// that is closed for good also fails the source half.
func (b *Bridge) Deliver(ctx context.Context, evt event.Event) (bool, error) {
	if b.cfg.Outbound == "" {
		return false, nil
	}
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return false, &oberrors.ConnectionError{Endpoint: b.cfg.URL, Err: ErrNotConnected}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return false, fmt.Errorf("encode event %s: %w", evt.ID(), err)
	}
	if err := conn.Publish(b.cfg.Outbound, data); err != nil {
		var cerr *oberrors.ConnectionError
		if !errors.As(err, &cerr) {
			err = &oberrors.ConnectionError{Endpoint: b.cfg.URL, Err: err}
		}
		b.report(err)
		return false, err
	}
	return true, nil
}
