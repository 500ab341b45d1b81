/*
Package overbot is an event router for chat bridges.

# Overview

Networks attach to a [bus.Router] as sources (they produce events) and sinks
(they receive events). Every event a source emits passes the loop guard and
the filter chain and is then delivered to every registered sink except the
one it came from.

The pieces live in subpackages:
  - event: the immutable Event with correlation and causation IDs
  - bus: the Router, source queues, sink fan-out and failure handling
  - filter: the fail-open filter chain and the built-in filters
  - command: the command processor and built-in commands
  - bridge/console, bridge/nats: ready-made sources and sinks
  - deadletter: storage for failed deliveries
  - config, observability, errors, registry: supporting infrastructure

# Basic Usage

	router := bus.NewRouter(bus.Config{})
	defer router.Close(context.Background())

	_ = router.RegisterSink(bus.NewSinkFunc("log", func(_ context.Context, evt event.Event) (bool, error) {
	    fmt.Println(evt)
	    return true, nil
	}))

	res := router.Process(ctx, event.New(event.KindMessage, "irc", event.Payload{Text: "hi"}))
	fmt.Println(res.Outcome) // "dispatched"

# Loop Prevention

A bridge that relays an event it received should Derive a new event from
it. Derived events keep the correlation ID and count hops; the router drops
any event with more than Config.MaxHops hops before filters run, so a
message relayed between two bridges is delivered once and stops.

# Commands

A [command.Processor] registers as both a sink and a source. It answers
messages that start with its prefix and emits results derived from the
command. Results reach every other sink but never the processor itself; a
result that another bridge relays back in counts a hop and is bounded by
the loop guard.
*/
package overbot
