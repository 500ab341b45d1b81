package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/randalmurphal/overbot/pkg/overbot/bus"
	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

func testSettings(t *testing.T, yaml string) config.Settings {
	t.Helper()
	settings, err := loadSettings(writeConfig(t, yaml), "")
	require.NoError(t, err)
	return settings
}

func startApp(t *testing.T, settings config.Settings) *app {
	t.Helper()
	_, quit := context.WithCancelCause(context.Background())
	a, err := newApp(settings, strings.NewReader(""), io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)), quit)
	require.NoError(t, err)
	require.NoError(t, a.start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.shutdown(ctx))
	})
	return a
}

func TestAppServesPrometheusMetrics(t *testing.T) {
	settings := testSettings(t, `
run_mode: daemon
metrics:
  backend: prometheus
  listen: "127.0.0.1:0"
`)
	a := startApp(t, settings)
	require.NotNil(t, a.metricsAddr)

	a.router.Process(context.Background(), event.New(event.KindMessage, "irc", event.Payload{Text: "hello", Sender: "alice"}))

	resp, err := http.Get("http://" + a.metricsAddr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
	assert.Contains(t, string(body), "overbot_deliveries_total")
	assert.Nil(t, a.tracerProvider, "only the otel backend traces")
}

func TestAppOTelBackend(t *testing.T) {
	settings := testSettings(t, `
run_mode: daemon
metrics:
  backend: otel
`)
	a := startApp(t, settings)
	require.NotNil(t, a.meterProvider)
	require.NotNil(t, a.tracerProvider)
	assert.Nil(t, a.metricsServer)

	_, span := otel.Tracer("overbot-test").Start(context.Background(), "check")
	assert.True(t, span.SpanContext().IsValid(), "spans come from the installed provider")
	span.End()
	assert.Equal(t, []string{"commands"}, a.router.Sinks())
}

func TestAppSQLiteFailureStore(t *testing.T) {
	settings := testSettings(t, "run_mode: daemon\ndeadletter:\n  path: "+t.TempDir()+"/failures.db\n")
	a := startApp(t, settings)

	n, err := a.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAppForegroundAttachesConsole(t *testing.T) {
	settings := testSettings(t, "commands:\n  enabled: false\n")
	a := startApp(t, settings)

	assert.Nil(t, a.processor)
	assert.Equal(t, []string{"console"}, a.router.Sources())
}

func TestAppRejectsUnknownFilterType(t *testing.T) {
	settings := testSettings(t, `
filters:
  order: [odd]
  definitions:
    odd:
      type: nonsense
`)
	_, quit := context.WithCancelCause(context.Background())
	_, err := newApp(settings, strings.NewReader(""), io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)), quit)
	assert.ErrorContains(t, err, "build filter chain")
}

func TestAppInspectionCommands(t *testing.T) {
	settings := testSettings(t, "run_mode: daemon\n")
	a := startApp(t, settings)
	ctx := context.Background()

	require.NoError(t, a.router.RegisterSink(bus.NewSinkFunc("broken", func(context.Context, event.Event) (bool, error) {
		return false, errors.New("down")
	})))
	a.router.Process(ctx, event.New(event.KindMessage, "irc", event.Payload{Text: "hello", Sender: "alice"}))

	cmd := event.New(event.KindMessage, "irc", event.Payload{Text: "!stats", Sender: "alice"})
	out, err := a.statsCommand(ctx, cmd, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text(), "sources=1 sinks=2")
	assert.Contains(t, out[0].Text(), "failures=1")
	assert.Equal(t, cmd.ID(), out[0].CausationID())

	out, err = a.failuresCommand(ctx, cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "broken=1", out[0].Text())
}
