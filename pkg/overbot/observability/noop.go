package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordIngest(_ context.Context, _ string, _ bool)                    {}
func (NoopMetrics) RecordDrop(_ context.Context, _, _ string)                           {}
func (NoopMetrics) RecordDelivery(_ context.Context, _, _ string, _ time.Duration)      {}
func (NoopMetrics) RecordFilter(_ context.Context, _ string, _ time.Duration, _ bool)   {}
func (NoopMetrics) RecordCommand(_ context.Context, _ string, _ time.Duration, _ error) {}
func (NoopMetrics) RecordSourceFailure(_ context.Context, _ string)                     {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartIngestSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartIngestSpan(ctx context.Context, _ event.Event) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartFilterSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartFilterSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartDeliverSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDeliverSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error)                            {}
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
