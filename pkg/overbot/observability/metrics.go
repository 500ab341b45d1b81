package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Drop reasons reported to RecordDrop.
const (
	DropLoop   = "loop"
	DropFilter = "filter"
)

// Delivery outcomes reported to RecordDelivery.
const (
	OutcomeDelivered = "delivered"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// MetricsRecorder records router metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder for a
// Prometheus registry, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordIngest records an event offered by a source.
	RecordIngest(ctx context.Context, source string, accepted bool)

	// RecordDrop records an event discarded before dispatch.
	// reason is DropLoop or DropFilter; stage names the filter (or "loop").
	RecordDrop(ctx context.Context, reason, stage string)

	// RecordDelivery records one sink delivery attempt.
	RecordDelivery(ctx context.Context, sink, outcome string, duration time.Duration)

	// RecordFilter records one filter evaluation.
	RecordFilter(ctx context.Context, filter string, duration time.Duration, failedOpen bool)

	// RecordCommand records one command handler execution.
	RecordCommand(ctx context.Context, verb string, duration time.Duration, err error)

	// RecordSourceFailure records a source-fatal error.
	RecordSourceFailure(ctx context.Context, source string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	ingested        metric.Int64Counter
	dropped         metric.Int64Counter
	deliveries      metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	filterLatency   metric.Float64Histogram
	filterFailOpen  metric.Int64Counter
	commands        metric.Int64Counter
	commandLatency  metric.Float64Histogram
	sourceFailures  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance from the global meter provider.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("overbot")
	m := &otelMetrics{}
	var err error

	if m.ingested, err = meter.Int64Counter("overbot.events.ingested",
		metric.WithDescription("Events offered by sources"),
	); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("overbot.events.dropped",
		metric.WithDescription("Events discarded before dispatch"),
	); err != nil {
		return nil, err
	}
	if m.deliveries, err = meter.Int64Counter("overbot.deliveries",
		metric.WithDescription("Sink delivery attempts by outcome"),
	); err != nil {
		return nil, err
	}
	if m.deliveryLatency, err = meter.Float64Histogram("overbot.delivery.latency_ms",
		metric.WithDescription("Sink delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.filterLatency, err = meter.Float64Histogram("overbot.filter.latency_ms",
		metric.WithDescription("Filter evaluation latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.filterFailOpen, err = meter.Int64Counter("overbot.filter.fail_open",
		metric.WithDescription("Filter evaluations skipped after error or timeout"),
	); err != nil {
		return nil, err
	}
	if m.commands, err = meter.Int64Counter("overbot.commands",
		metric.WithDescription("Command handler executions"),
	); err != nil {
		return nil, err
	}
	if m.commandLatency, err = meter.Float64Histogram("overbot.command.latency_ms",
		metric.WithDescription("Command handler latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.sourceFailures, err = meter.Int64Counter("overbot.source.failures",
		metric.WithDescription("Source-fatal errors"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// RecordIngest records an event offered by a source.
func (m *otelMetrics) RecordIngest(ctx context.Context, source string, accepted bool) {
	m.ingested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("accepted", accepted),
	))
}

// RecordDrop records an event discarded before dispatch.
func (m *otelMetrics) RecordDrop(ctx context.Context, reason, stage string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		attribute.String("stage", stage),
	))
}

// RecordDelivery records one sink delivery attempt.
func (m *otelMetrics) RecordDelivery(ctx context.Context, sink, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("outcome", outcome),
	)
	m.deliveries.Add(ctx, 1, attrs)
	m.deliveryLatency.Record(ctx, ms(duration), attrs)
}

// RecordFilter records one filter evaluation.
func (m *otelMetrics) RecordFilter(ctx context.Context, filter string, duration time.Duration, failedOpen bool) {
	attrs := metric.WithAttributes(attribute.String("filter", filter))
	m.filterLatency.Record(ctx, ms(duration), attrs)
	if failedOpen {
		m.filterFailOpen.Add(ctx, 1, attrs)
	}
}

// RecordCommand records one command handler execution.
func (m *otelMetrics) RecordCommand(ctx context.Context, verb string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("verb", verb),
		attribute.Bool("success", err == nil),
	)
	m.commands.Add(ctx, 1, attrs)
	m.commandLatency.Record(ctx, ms(duration), attrs)
}

// RecordSourceFailure records a source-fatal error.
func (m *otelMetrics) RecordSourceFailure(ctx context.Context, source string) {
	m.sourceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
