package filter

import (
	"context"
	"fmt"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// Kinds passes or drops events by kind.
type Kinds struct {
	name  string
	kinds map[event.Kind]bool
	allow bool
}

// NewKindAllow passes only the listed kinds.
func NewKindAllow(name string, kinds ...event.Kind) *Kinds {
	return newKinds(name, true, kinds)
}

// NewKindDeny drops the listed kinds.
func NewKindDeny(name string, kinds ...event.Kind) *Kinds {
	return newKinds(name, false, kinds)
}

func newKinds(name string, allow bool, kinds []event.Kind) *Kinds {
	set := make(map[event.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return &Kinds{name: name, kinds: set, allow: allow}
}

// Name returns the filter name.
func (k *Kinds) Name() string { return k.name }

// Evaluate checks the event kind against the list.
func (k *Kinds) Evaluate(_ context.Context, evt event.Event) (Verdict, error) {
	if k.kinds[evt.Kind()] != k.allow {
		return DropVerdict(fmt.Sprintf("kind %s not routed", evt.Kind())), nil
	}
	return PassVerdict(), nil
}

func buildKinds(name string, opts config.Config) (Filter, error) {
	if allow := opts.StringSlice("allow", nil); allow != nil {
		return NewKindAllow(name, toKinds(allow)...), nil
	}
	if deny := opts.StringSlice("deny", nil); deny != nil {
		return NewKindDeny(name, toKinds(deny)...), nil
	}
	return nil, fmt.Errorf("%w: kinds %s needs allow or deny", ErrInvalidOptions, name)
}

func toKinds(names []string) []event.Kind {
	out := make([]event.Kind, len(names))
	for i, n := range names {
		out[i] = event.Kind(n)
	}
	return out
}
