// Package filter provides the ordered filter chain every event passes
// through before dispatch, plus the built-in filters.
package filter

import (
	"context"
	"fmt"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// Action is a filter's decision about an event.
type Action int

const (
	// Pass forwards the event unchanged.
	Pass Action = iota
	// Drop discards the event; no later filter runs and no sink sees it.
	Drop
	// Replace forwards Verdict.Replacement in place of the event.
	Replace
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Pass:
		return "pass"
	case Drop:
		return "drop"
	case Replace:
		return "replace"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Verdict is the result of one filter evaluation.
type Verdict struct {
	Action      Action
	Replacement event.Event
	Reason      string
}

// PassVerdict forwards the event unchanged.
func PassVerdict() Verdict {
	return Verdict{Action: Pass}
}

// DropVerdict discards the event.
func DropVerdict(reason string) Verdict {
	return Verdict{Action: Drop, Reason: reason}
}

// ReplaceVerdict forwards evt in place of the evaluated event.
func ReplaceVerdict(evt event.Event, reason string) Verdict {
	return Verdict{Action: Replace, Replacement: evt, Reason: reason}
}

// Filter inspects an event and decides whether it continues.
//
// Implementations must be safe for concurrent use: the router evaluates
// events from different sources in parallel.
type Filter interface {
	Name() string
	Evaluate(ctx context.Context, evt event.Event) (Verdict, error)
}

// Func adapts a function to the Filter interface.
type Func struct {
	FilterName string
	Fn         func(ctx context.Context, evt event.Event) (Verdict, error)
}

// NewFunc returns a Filter backed by fn.
func NewFunc(name string, fn func(ctx context.Context, evt event.Event) (Verdict, error)) Func {
	return Func{FilterName: name, Fn: fn}
}

// Name returns the filter name.
func (f Func) Name() string { return f.FilterName }

// Evaluate calls the wrapped function.
func (f Func) Evaluate(ctx context.Context, evt event.Event) (Verdict, error) {
	return f.Fn(ctx, evt)
}

// Closer is implemented by filters that hold external resources.
type Closer interface {
	Close() error
}
