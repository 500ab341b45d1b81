// Package observability provides structured logging, metrics, and tracing
// for the overbot router.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// Common field names for consistent logging across components.
const (
	FieldComponent     = "component"
	FieldEventID       = "event_id"
	FieldEventKind     = "event_kind"
	FieldOrigin        = "origin"
	FieldCorrelationID = "correlation_id"
	FieldHops          = "hops"
	FieldSink          = "sink"
	FieldSource        = "source"
	FieldFilter        = "filter"
	FieldVerb          = "verb"
	FieldReason        = "reason"
	FieldError         = "error"
	FieldDuration      = "duration_ms"
)

// NewLogger builds a logger writing to w. level is debug, info, warn or
// error; format is text or json.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// EventAttrs returns the attributes identifying an event in log output.
func EventAttrs(evt event.Event) []any {
	return []any{
		slog.String(FieldEventID, evt.ID()),
		slog.String(FieldEventKind, string(evt.Kind())),
		slog.String(FieldOrigin, evt.Origin()),
		slog.String(FieldCorrelationID, evt.CorrelationID()),
		slog.Int(FieldHops, evt.Hops()),
	}
}

// Component returns a logger tagged with a component name. A nil logger
// falls back to slog.Default().
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(FieldComponent, name))
}

// EnrichLogger adds event context to a logger.
func EnrichLogger(logger *slog.Logger, evt event.Event) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(EventAttrs(evt)...)
}

// LogDrop logs an event discarded by the loop guard or a filter.
func LogDrop(logger *slog.Logger, evt event.Event, stage, reason string) {
	if logger == nil {
		return
	}
	attrs := append(EventAttrs(evt),
		slog.String(FieldFilter, stage),
		slog.String(FieldReason, reason),
	)
	logger.Debug("event dropped", attrs...)
}

// LogFailOpen logs a filter that was skipped because it errored or timed out.
func LogFailOpen(logger *slog.Logger, evt event.Event, filterName string, err error) {
	if logger == nil {
		return
	}
	attrs := append(EventAttrs(evt),
		slog.String(FieldFilter, filterName),
		slog.String(FieldError, err.Error()),
	)
	logger.Warn("filter failed open", attrs...)
}

// LogDeliveryFailure logs a sink that failed to accept an event.
func LogDeliveryFailure(logger *slog.Logger, evt event.Event, sink string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	attrs := append(EventAttrs(evt),
		slog.String(FieldSink, sink),
		slog.String(FieldError, err.Error()),
		slog.Float64(FieldDuration, durationMs),
	)
	logger.Warn("delivery failed", attrs...)
}

// LogRejected logs an event offered by a source that is not registered.
func LogRejected(logger *slog.Logger, evt event.Event, err error) {
	if logger == nil {
		return
	}
	attrs := append(EventAttrs(evt), slog.String(FieldError, err.Error()))
	logger.Warn("event rejected", attrs...)
}

// LogSourceFailure logs a source-fatal error.
func LogSourceFailure(logger *slog.Logger, source string, err error) {
	if logger == nil {
		return
	}
	logger.Error("source failed",
		slog.String(FieldSource, source),
		slog.String(FieldError, err.Error()),
	)
}

// LogCommandError logs a failed command handler.
func LogCommandError(logger *slog.Logger, evt event.Event, verb string, err error) {
	if logger == nil {
		return
	}
	attrs := append(EventAttrs(evt),
		slog.String(FieldVerb, verb),
		slog.String(FieldError, err.Error()),
	)
	logger.Warn("command failed", attrs...)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
