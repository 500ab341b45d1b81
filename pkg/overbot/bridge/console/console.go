// Package console bridges a line-oriented reader and writer onto the bus.
//
// Each input line becomes a message event. Delivered events are written one
// per line using a Layout, "[origin] <sender> text" by default.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/randalmurphal/overbot/pkg/overbot/bus"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
)

// Config configures a Bridge.
type Config struct {
	// Name is the source and sink name. Defaults to "console".
	Name string

	// Sender and Channel are stamped on every input line.
	Sender  string
	Channel string

	// Format is the output line layout. See Layout for placeholders.
	Format string
}

// Bridge is a bus.Source and bus.Sink over an io.Reader and io.Writer.
type Bridge struct {
	cfg    Config
	in     io.Reader
	layout *Layout
	logger *slog.Logger

	wmu sync.Mutex
	out io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bridge reading from in and writing to out. It fails only
// when cfg.Format does not parse.
func New(cfg Config, in io.Reader, out io.Writer, logger *slog.Logger) (*Bridge, error) {
	if cfg.Name == "" {
		cfg.Name = "console"
	}
	if cfg.Sender == "" {
		cfg.Sender = cfg.Name
	}
	layout, err := ParseLayout(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("console %s: %w", cfg.Name, err)
	}
	return &Bridge{
		cfg:    cfg,
		in:     in,
		out:    out,
		layout: layout,
		logger: observability.Component(logger, "console").With(slog.String(observability.FieldSource, cfg.Name)),
	}, nil
}

// Name returns the bridge name.
func (b *Bridge) Name() string { return b.cfg.Name }

// Start begins reading lines on a new goroutine.
func (b *Bridge) Start(_ context.Context, emit bus.Emitter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return fmt.Errorf("console %s: already started", b.cfg.Name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.read(ctx, emit)
	return nil
}

func (b *Bridge) read(ctx context.Context, emit bus.Emitter) {
	defer close(b.done)
	scanner := bufio.NewScanner(b.in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		evt := event.New(event.KindMessage, b.cfg.Name, event.Payload{
			Text:    line,
			Sender:  b.cfg.Sender,
			Channel: b.cfg.Channel,
		})
		// Emit only fails once the source is stopped or deregistered.
		if err := emit.Emit(ctx, evt); err != nil {
			b.logger.Debug("input abandoned", slog.String(observability.FieldError, err.Error()))
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		emit.Fail(fmt.Errorf("console %s: read: %w", b.cfg.Name, err))
		return
	}
	b.logger.Debug("input closed")
}

// Stop cancels reading. A reader blocked in Read is abandoned; Stop does not
// wait for it.
func (b *Bridge) Stop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// Done is closed when the reader goroutine exits, on EOF or error.
func (b *Bridge) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Deliver writes evt as one line.
func (b *Bridge) Deliver(_ context.Context, evt event.Event) (bool, error) {
	if evt.Text() == "" {
		return false, nil
	}
	line := b.layout.Render(evt)
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if _, err := io.WriteString(b.out, line+"\n"); err != nil {
		return false, fmt.Errorf("console %s: write: %w", b.cfg.Name, err)
	}
	return true, nil
}
