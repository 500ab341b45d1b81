package bus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/overbot/pkg/overbot/deadletter"
	oberrors "github.com/randalmurphal/overbot/pkg/overbot/errors"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
)

// Delivery is the result of offering an event to one sink.
type Delivery struct {
	Sink      string
	Delivered bool
	Err       error
	Duration  time.Duration
}

// Report lists the deliveries of one dispatch in sink registration order.
type Report struct {
	Deliveries []Delivery
}

// Delivered returns the sinks that accepted the event.
func (r Report) Delivered() []string {
	return r.names(func(d Delivery) bool { return d.Err == nil && d.Delivered })
}

// Ignored returns the sinks that saw the event and chose not to act.
func (r Report) Ignored() []string {
	return r.names(func(d Delivery) bool { return d.Err == nil && !d.Delivered })
}

// Failed returns the sinks that failed.
func (r Report) Failed() []string {
	return r.names(func(d Delivery) bool { return d.Err != nil })
}

func (r Report) names(keep func(Delivery) bool) []string {
	var out []string
	for _, d := range r.Deliveries {
		if keep(d) {
			out = append(out, d.Sink)
		}
	}
	return out
}

// Dispatch offers evt to every sink registered when it starts, except the
// sink named after the event's origin. Deliveries run concurrently, each
// under the sink timeout. A failing sink affects only its own delivery.
//
// Order is kept per source only. A reply emitted by another source, such as
// a command result, may reach a sink before the command it answers.
func (r *Router) Dispatch(ctx context.Context, evt event.Event) Report {
	snapshot := r.sinks.Snapshot()
	targets := make([]*sinkEntry, 0, len(snapshot))
	for _, e := range snapshot {
		if e.Key == evt.Origin() {
			continue
		}
		targets = append(targets, e.Value)
	}

	r.stats.dispatched.Add(1)
	report := Report{Deliveries: make([]Delivery, len(targets))}

	var g errgroup.Group
	g.SetLimit(r.cfg.DeliveryConcurrency)
	for i, target := range targets {
		g.Go(func() error {
			report.Deliveries[i] = r.deliver(ctx, target, evt)
			return nil
		})
	}
	_ = g.Wait()

	// Sinks deregistered before their delivery began are left out.
	kept := report.Deliveries[:0]
	for _, d := range report.Deliveries {
		if d.Sink != "" {
			kept = append(kept, d)
		}
	}
	report.Deliveries = kept
	return report
}

type deliverResult struct {
	delivered bool
	err       error
}

func (r *Router) deliver(ctx context.Context, target *sinkEntry, evt event.Event) Delivery {
	name := target.sink.Name()

	ctx, span := r.spans.StartDeliverSpan(ctx, name)
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SinkTimeout)
	defer cancel()

	start := time.Now()
	ch := make(chan deliverResult, 1)
	launched := target.launch(func() {
		defer func() {
			if v := recover(); v != nil {
				ch <- deliverResult{err: &oberrors.PanicError{Component: "sink " + name, Value: v}}
			}
		}()
		ok, err := target.sink.Deliver(ctx, evt)
		ch <- deliverResult{delivered: ok, err: err}
	})
	if !launched {
		r.spans.EndSpanWithError(span, nil)
		return Delivery{}
	}

	var res deliverResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
		if errors.Is(res.err, context.DeadlineExceeded) {
			res.err = &oberrors.TimeoutError{Operation: "deliver to " + name, Duration: r.cfg.SinkTimeout}
		}
	}
	d := Delivery{Sink: name, Delivered: res.delivered, Err: res.err, Duration: time.Since(start)}

	switch {
	case d.Err != nil:
		d.Err = &DeliveryError{Sink: name, EventID: evt.ID(), Err: d.Err}
		d.Delivered = false
		r.stats.deliveryFailures.Add(1)
		r.metrics.RecordDelivery(ctx, name, observability.OutcomeFailed, d.Duration)
		observability.LogDeliveryFailure(r.logger, evt, name, d.Err, float64(d.Duration.Microseconds())/1000)
		r.recordFailure(ctx, evt, name, d.Err)
		if r.cfg.OnDeliveryError != nil {
			r.cfg.OnDeliveryError(evt, name, d.Err)
		}
	case d.Delivered:
		r.stats.delivered.Add(1)
		r.metrics.RecordDelivery(ctx, name, observability.OutcomeDelivered, d.Duration)
	default:
		r.stats.ignored.Add(1)
		r.metrics.RecordDelivery(ctx, name, observability.OutcomeIgnored, d.Duration)
	}
	r.spans.EndSpanWithError(span, d.Err)
	return d
}

// recordFailure writes to the failure store on a context detached from the
// expired delivery deadline.
func (r *Router) recordFailure(ctx context.Context, evt event.Event, sink string, err error) {
	if r.failures == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SinkTimeout)
	defer cancel()
	if storeErr := r.failures.Record(ctx, deadletter.NewFailure(evt, sink, err)); storeErr != nil {
		r.logger.Warn("record delivery failure",
			slog.String(observability.FieldSink, sink),
			slog.String(observability.FieldError, storeErr.Error()),
		)
	}
}
