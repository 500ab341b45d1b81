package filter

import (
	"context"
	"strings"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// Senders drops events from ignored senders, such as other bots on a
// bridged network. Matching is case-insensitive.
type Senders struct {
	name    string
	ignored map[string]bool
}

// NewSenders creates a filter ignoring the given senders.
func NewSenders(name string, ignored ...string) *Senders {
	set := make(map[string]bool, len(ignored))
	for _, s := range ignored {
		set[strings.ToLower(s)] = true
	}
	return &Senders{name: name, ignored: set}
}

// Name returns the filter name.
func (s *Senders) Name() string { return s.name }

// Evaluate drops events from ignored senders.
func (s *Senders) Evaluate(_ context.Context, evt event.Event) (Verdict, error) {
	if s.ignored[strings.ToLower(evt.Sender())] {
		return DropVerdict("ignored sender " + evt.Sender()), nil
	}
	return PassVerdict(), nil
}

func buildSenders(name string, opts config.Config) (Filter, error) {
	return NewSenders(name, opts.StringSlice("ignore", nil)...), nil
}
