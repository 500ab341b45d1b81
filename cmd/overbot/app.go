package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/randalmurphal/overbot/pkg/overbot/bridge/console"
	natsbridge "github.com/randalmurphal/overbot/pkg/overbot/bridge/nats"
	"github.com/randalmurphal/overbot/pkg/overbot/bus"
	"github.com/randalmurphal/overbot/pkg/overbot/command"
	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/deadletter"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
	"github.com/randalmurphal/overbot/pkg/overbot/filter"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
)

// errConsoleClosed is the quit cause when foreground input ends.
var errConsoleClosed = errors.New("console input closed")

// app owns every component built from Settings.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	quit     context.CancelCauseFunc

	store     deadletter.Store
	chain     *filter.Chain
	router    *bus.Router
	processor *command.Processor
	console   *console.Bridge
	bridges   []*natsbridge.Bridge

	metricsServer *http.Server
	metricsAddr   net.Addr
	meterProvider *sdkmetric.MeterProvider
	meterReader   *sdkmetric.ManualReader

	tracerProvider *sdktrace.TracerProvider
}

// newApp builds the router and its attachments without starting anything.
// Console input is only attached in foreground mode. quit is called with a
// cause when a component asks the whole process to stop.
func newApp(settings config.Settings, in io.Reader, out io.Writer, logger *slog.Logger, quit context.CancelCauseFunc) (_ *app, err error) {
	a := &app{settings: settings, logger: logger, quit: quit}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.release())
		}
	}()

	metrics := a.buildMetrics()
	spans := a.buildSpans()

	if settings.DeadLetter.Path == "" {
		a.store = deadletter.NewMemoryStore(settings.DeadLetter.MaxSize)
	} else {
		store, err := deadletter.NewSQLiteStore(settings.DeadLetter.Path)
		if err != nil {
			return nil, fmt.Errorf("open failure store: %w", err)
		}
		a.store = store
	}

	chain, err := filter.BuildChain(settings.Filters,
		filter.WithLogger(logger),
		filter.WithMetrics(metrics),
		filter.WithTracer(spans),
	)
	if err != nil {
		return nil, fmt.Errorf("build filter chain: %w", err)
	}
	a.chain = chain

	a.router = bus.NewRouter(bus.Config{
		MaxHops:             settings.Loop.MaxHops,
		QueueSize:           settings.Router.QueueSize,
		SinkTimeout:         settings.Router.SinkTimeout,
		DeliveryConcurrency: settings.Router.DeliveryConcurrency,
	},
		bus.WithLogger(logger),
		bus.WithMetrics(metrics),
		bus.WithSpans(spans),
		bus.WithFailureStore(a.store),
		bus.WithChain(chain),
	)

	if settings.Commands.Enabled {
		a.processor = command.NewProcessor(
			command.WithPrefix(settings.Commands.Prefix),
			command.WithWorkers(settings.Commands.Workers),
			command.WithHandlerTimeout(settings.Commands.Timeout),
			command.WithUnknownReply(settings.Commands.UnknownReply),
			command.WithLogger(logger),
			command.WithMetrics(metrics),
		)
		if err := command.RegisterBuiltins(a.processor); err != nil {
			return nil, err
		}
		if err := a.processor.Register("stats", command.HandlerFunc(a.statsCommand), "stats: show router counters"); err != nil {
			return nil, err
		}
		if err := a.processor.Register("failures", command.HandlerFunc(a.failuresCommand), "failures: count failed deliveries per sink"); err != nil {
			return nil, err
		}
	}

	if settings.RunMode == config.RunForeground && settings.Bridges.Console.Enabled {
		c := settings.Bridges.Console
		cb, err := console.New(console.Config{Name: c.Name, Sender: c.Sender, Channel: c.Channel, Format: c.Format}, in, out, logger)
		if err != nil {
			return nil, err
		}
		a.console = cb
	}

	for _, n := range settings.Bridges.NATS {
		b, err := natsbridge.New(natsbridge.Config{
			Name:     n.Name,
			URL:      n.URL,
			Inbound:  n.Inbound,
			Outbound: n.Outbound,
		}, natsbridge.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		a.bridges = append(a.bridges, b)
	}
	return a, nil
}

// release closes what newApp opened before a later step failed.
func (a *app) release() error {
	var errs []error
	if a.chain != nil {
		errs = append(errs, a.chain.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.meterProvider != nil {
		errs = append(errs, a.meterProvider.Shutdown(context.Background()))
	}
	if a.tracerProvider != nil {
		errs = append(errs, a.tracerProvider.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}

func (a *app) buildMetrics() observability.MetricsRecorder {
	switch a.settings.Metrics.Backend {
	case config.MetricsPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		a.metricsServer = &http.Server{
			Addr:              a.settings.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		return observability.NewPrometheusRecorder(reg)
	case config.MetricsOTel:
		a.meterReader = sdkmetric.NewManualReader()
		a.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.meterReader))
		otel.SetMeterProvider(a.meterProvider)
		return observability.NewMetricsRecorder()
	default:
		return observability.NoopMetrics{}
	}
}

// buildSpans installs an SDK tracer provider next to the OTel meter
// provider. The other backends trace nothing.
func (a *app) buildSpans() observability.SpanManager {
	if a.settings.Metrics.Backend != config.MetricsOTel {
		return observability.NoopSpanManager{}
	}
	a.tracerProvider = sdktrace.NewTracerProvider()
	otel.SetTracerProvider(a.tracerProvider)
	return observability.NewSpanManager()
}

func (a *app) statsCommand(_ context.Context, cmd event.Event, _ []string) ([]event.Event, error) {
	st := a.router.Stats()
	return []event.Event{command.Reply(cmd, fmt.Sprintf(
		"sources=%d sinks=%d ingested=%d delivered=%d filtered=%d loops=%d failures=%d",
		len(a.router.Sources()), len(a.router.Sinks()),
		st.Ingested, st.Delivered, st.FilterDropped, st.LoopDropped, st.DeliveryFailures,
	))}, nil
}

func (a *app) failuresCommand(ctx context.Context, cmd event.Event, _ []string) ([]event.Event, error) {
	counts, err := a.store.CountBySink(ctx)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return []event.Event{command.Reply(cmd, "no failed deliveries")}, nil
	}
	sinks := slices.Sorted(maps.Keys(counts))
	parts := make([]string, 0, len(sinks))
	for _, s := range sinks {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
	}
	return []event.Event{command.Reply(cmd, strings.Join(parts, " "))}, nil
}

// sourceSink is a component registered both ways.
type sourceSink interface {
	bus.Source
	bus.Sink
}

func (a *app) attach(ctx context.Context, c sourceSink) error {
	if err := a.router.RegisterSink(c); err != nil {
		return err
	}
	return a.router.RegisterSource(ctx, c)
}

// start serves metrics and attaches every component to the router.
func (a *app) start(ctx context.Context) error {
	if a.metricsServer != nil {
		ln, err := net.Listen("tcp", a.metricsServer.Addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		a.metricsAddr = ln.Addr()
		go func() {
			if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", slog.String(observability.FieldError, err.Error()))
				a.quit(fmt.Errorf("metrics server: %w", err))
			}
		}()
		a.logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	}

	if a.processor != nil {
		if err := a.attach(ctx, a.processor); err != nil {
			return err
		}
	}
	for _, b := range a.bridges {
		if err := a.attach(ctx, b); err != nil {
			return err
		}
	}
	if a.console != nil {
		if err := a.attach(ctx, a.console); err != nil {
			return err
		}
		go func() {
			<-a.console.Done()
			a.quit(errConsoleClosed)
		}()
	}

	a.logger.Info("overbot started",
		slog.String("run_mode", a.settings.RunMode),
		slog.Any("sources", a.router.Sources()),
		slog.Any("sinks", a.router.Sinks()),
		slog.Any("filters", a.chain.Names()),
	)
	return nil
}

// shutdown drains the router and releases every resource.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.router.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close router: %w", err))
	}
	if err := a.chain.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close filters: %w", err))
	}

	stats := a.router.Stats()
	a.logger.Info("router stats",
		slog.Int64("ingested", stats.Ingested),
		slog.Int64("rejected", stats.Rejected),
		slog.Int64("loop_dropped", stats.LoopDropped),
		slog.Int64("filter_dropped", stats.FilterDropped),
		slog.Int64("delivered", stats.Delivered),
		slog.Int64("delivery_failures", stats.DeliveryFailures),
		slog.Int64("source_failures", stats.SourceFailures),
	)
	if failures, err := a.store.CountBySink(ctx); err == nil && len(failures) > 0 {
		a.logger.Warn("delivery failures by sink", slog.Any("sinks", failures))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close failure store: %w", err))
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	if a.meterProvider != nil {
		a.logMetricTotals(ctx)
		if err := a.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop meter provider: %w", err))
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// logMetricTotals logs every counter collected by the OTel reader.
func (a *app) logMetricTotals(ctx context.Context) {
	var rm metricdata.ResourceMetrics
	if err := a.meterReader.Collect(ctx, &rm); err != nil {
		a.logger.Warn("collect metrics", slog.String(observability.FieldError, err.Error()))
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			a.logger.Info("metric total", slog.String("name", m.Name), slog.Int64("value", total))
		}
	}
}
