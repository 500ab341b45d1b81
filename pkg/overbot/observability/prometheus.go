package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder is a MetricsRecorder backed by Prometheus collectors.
type PrometheusRecorder struct {
	ingested        *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
	filterLatency   *prometheus.HistogramVec
	filterFailOpen  *prometheus.CounterVec
	commands        *prometheus.CounterVec
	commandLatency  *prometheus.HistogramVec
	sourceFailures  *prometheus.CounterVec
}

var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the router collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	f := promauto.With(reg)
	return &PrometheusRecorder{
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overbot_events_ingested_total",
			Help: "Total number of events offered by sources",
		}, []string{"source", "status"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overbot_events_dropped_total",
			Help: "Total number of events discarded before dispatch",
		}, []string{"reason", "stage"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overbot_deliveries_total",
			Help: "Total number of sink delivery attempts",
		}, []string{"sink", "outcome"}),
		deliveryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overbot_delivery_duration_seconds",
			Help:    "Duration of sink deliveries in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		filterLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overbot_filter_duration_seconds",
			Help:    "Duration of filter evaluations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"filter"}),
		filterFailOpen: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overbot_filter_fail_open_total",
			Help: "Total number of filter evaluations skipped after error or timeout",
		}, []string{"filter"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overbot_commands_total",
			Help: "Total number of command handler executions",
		}, []string{"verb", "status"}),
		commandLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overbot_command_duration_seconds",
			Help:    "Duration of command handlers in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"verb"}),
		sourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overbot_source_failures_total",
			Help: "Total number of source-fatal errors",
		}, []string{"source"}),
	}
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func (p *PrometheusRecorder) RecordIngest(_ context.Context, source string, accepted bool) {
	st := "accepted"
	if !accepted {
		st = "rejected"
	}
	p.ingested.WithLabelValues(source, st).Inc()
}

func (p *PrometheusRecorder) RecordDrop(_ context.Context, reason, stage string) {
	p.dropped.WithLabelValues(reason, stage).Inc()
}

func (p *PrometheusRecorder) RecordDelivery(_ context.Context, sink, outcome string, duration time.Duration) {
	p.deliveries.WithLabelValues(sink, outcome).Inc()
	p.deliveryLatency.WithLabelValues(sink).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) RecordFilter(_ context.Context, filter string, duration time.Duration, failedOpen bool) {
	p.filterLatency.WithLabelValues(filter).Observe(duration.Seconds())
	if failedOpen {
		p.filterFailOpen.WithLabelValues(filter).Inc()
	}
}

func (p *PrometheusRecorder) RecordCommand(_ context.Context, verb string, duration time.Duration, err error) {
	p.commands.WithLabelValues(verb, status(err == nil)).Inc()
	p.commandLatency.WithLabelValues(verb).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) RecordSourceFailure(_ context.Context, source string) {
	p.sourceFailures.WithLabelValues(source).Inc()
}
