package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("overbot")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartIngestSpan starts the root span for one event's trip through the router.
	StartIngestSpan(ctx context.Context, evt event.Event) (context.Context, trace.Span)

	// StartFilterSpan starts a child span for one filter evaluation.
	StartFilterSpan(ctx context.Context, filterName string) (context.Context, trace.Span)

	// StartDeliverSpan starts a child span for one sink delivery.
	StartDeliverSpan(ctx context.Context, sink string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// Configure the provider with otel.SetTracerProvider before routing events.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartIngestSpan(ctx context.Context, evt event.Event) (context.Context, trace.Span) {
	return tracer.Start(ctx, "overbot.ingest",
		trace.WithAttributes(
			attribute.String("event.id", evt.ID()),
			attribute.String("event.kind", string(evt.Kind())),
			attribute.String("event.origin", evt.Origin()),
			attribute.String("event.correlation_id", evt.CorrelationID()),
			attribute.Int("event.hops", evt.Hops()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartFilterSpan(ctx context.Context, filterName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "overbot.filter",
		trace.WithAttributes(attribute.String("filter.name", filterName)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartDeliverSpan(ctx context.Context, sink string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "overbot.deliver",
		trace.WithAttributes(attribute.String("sink.name", sink)),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
