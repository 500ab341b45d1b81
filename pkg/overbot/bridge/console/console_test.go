package console_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/overbot/pkg/overbot/bridge/console"
	"github.com/randalmurphal/overbot/pkg/overbot/bus"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func mustNew(t *testing.T, cfg console.Config, in io.Reader, out io.Writer, logger *slog.Logger) *console.Bridge {
	t.Helper()
	b, err := console.New(cfg, in, out, logger)
	require.NoError(t, err)
	return b
}

func TestLinesBecomeEvents(t *testing.T) {
	ctx := context.Background()
	r := bus.NewRouter(bus.Config{})
	t.Cleanup(func() { _ = r.Close(ctx) })

	in := strings.NewReader("hello\n\n  \nworld\r\n")
	b := mustNew(t, console.Config{Name: "stdin", Sender: "operator", Channel: "#ops"}, in, io.Discard, nil)

	var mu sync.Mutex
	var got []event.Event
	require.NoError(t, r.RegisterSink(bus.NewSinkFunc("log", func(_ context.Context, evt event.Event) (bool, error) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
		return true, nil
	})))
	require.NoError(t, r.RegisterSource(ctx, b))

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop at EOF")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", got[0].Text())
	assert.Equal(t, "world", got[1].Text())
	for _, evt := range got {
		assert.Equal(t, event.KindMessage, evt.Kind())
		assert.Equal(t, "stdin", evt.Origin())
		assert.Equal(t, "operator", evt.Sender())
		assert.Equal(t, "#ops", evt.Channel())
	}
	assert.Equal(t, []string{"stdin"}, r.Sources(), "EOF is a clean stop")
}

func TestReadErrorIsSourceFatal(t *testing.T) {
	ctx := context.Background()
	failed := make(chan bus.Notice, 1)
	r := bus.NewRouter(bus.Config{OnLifecycle: func(n bus.Notice) {
		if n.Kind == bus.SourceFailed {
			failed <- n
		}
	}})
	t.Cleanup(func() { _ = r.Close(ctx) })

	b := mustNew(t, console.Config{}, failingReader{err: errors.New("tty detached")}, io.Discard, nil)
	require.NoError(t, r.RegisterSource(ctx, b))

	select {
	case n := <-failed:
		assert.Equal(t, "console", n.Name)
		assert.ErrorContains(t, n.Err, "tty detached")
	case <-time.After(2 * time.Second):
		t.Fatal("expected source failure")
	}
	assert.Eventually(t, func() bool { return len(r.Sources()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestDeliverFormatsLine(t *testing.T) {
	out := &syncBuffer{}
	b := mustNew(t, console.Config{}, strings.NewReader(""), out, nil)

	evt := event.New(event.KindMessage, "irc", event.Payload{Sender: "alice", Text: "hi all"})
	ok, err := b.Deliver(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Deliver(context.Background(), event.New(event.KindJoin, "irc", event.Payload{Sender: "bob"}))
	require.NoError(t, err)
	assert.False(t, ok, "events without text are ignored")

	assert.Equal(t, "[irc] <alice> hi all\n", out.String())
}

func TestCustomFormat(t *testing.T) {
	out := &syncBuffer{}
	b := mustNew(t, console.Config{Format: "${channel} ${sender}@${origin}/${hops} [${attr.lang}]: ${text}"}, strings.NewReader(""), out, nil)

	root := event.New(event.KindMessage, "irc", event.Payload{Sender: "alice", Channel: "#go", Text: "hola"})
	evt := root.Derive("matrix", event.KindMessage, event.Payload{
		Sender:     "alice",
		Channel:    "#go",
		Text:       "hola",
		Attributes: map[string]string{"lang": "es"},
	})
	_, err := b.Deliver(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, "#go alice@matrix/1 [es]: hola\n", out.String())
}

func TestUnknownFormatField(t *testing.T) {
	_, err := console.New(console.Config{Format: "${who} ${text} ${what}"}, strings.NewReader(""), io.Discard, nil)
	var undef *console.UndefinedFieldError
	require.ErrorAs(t, err, &undef)
	assert.Equal(t, []string{"who", "what"}, undef.Names)
}

func TestLayoutKeepsLiteralDollars(t *testing.T) {
	l, err := console.ParseLayout("$5 ${text} $$")
	require.NoError(t, err)
	evt := event.New(event.KindMessage, "irc", event.Payload{Text: "each"})
	assert.Equal(t, "$5 each $$", l.Render(evt))
	assert.Equal(t, "[irc] <> each", console.Format(evt))
}

func TestStartTwice(t *testing.T) {
	b := mustNew(t, console.Config{}, strings.NewReader(""), io.Discard, nil)
	em := nopEmitter{}
	require.NoError(t, b.Start(context.Background(), em))
	assert.Error(t, b.Start(context.Background(), em))
	assert.NoError(t, b.Stop(context.Background()))
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, event.Event) error { return nil }
func (nopEmitter) Fail(error)                              {}
