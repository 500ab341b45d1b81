package filter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/registry"
)

// Factory builds a filter from its configured options.
type Factory func(name string, opts config.Config) (Filter, error)

var factories = registry.New[string, Factory]()

func init() {
	Register("ratelimit", buildRateLimit)
	Register("redis_ratelimit", buildRedisRateLimit)
	Register("content", buildContent)
	Register("kinds", buildKinds)
	Register("senders", buildSenders)
}

// Register makes a filter type available to Build. Registering an existing
// type replaces it.
func Register(typeName string, f Factory) {
	factories.Register(typeName, f)
}

// Types returns the registered filter types, sorted.
func Types() []string {
	types := factories.Keys()
	sort.Strings(types)
	return types
}

// Build creates a filter of the given type.
func Build(name, typeName string, opts config.Config) (Filter, error) {
	f, ok := factories.Get(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	return f(name, opts)
}

// BuildChain creates a chain holding the filters named in settings, in the
// configured order. Filters built before a failure are closed.
func BuildChain(settings config.FilterSettings, opts ...ChainOption) (*Chain, error) {
	opts = append([]ChainOption{WithTimeout(settings.Timeout)}, opts...)
	chain := NewChain(opts...)

	for _, name := range settings.Order {
		def, ok := settings.Definitions[name]
		if !ok {
			return nil, errors.Join(fmt.Errorf("filter %s: not defined", name), chain.Close())
		}
		f, err := Build(name, def.Type, def.Options)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("filter %s: %w", name, err), chain.Close())
		}
		if err := chain.Append(f, WithFilterTimeout(def.Timeout)); err != nil {
			if cl, ok := f.(Closer); ok {
				err = errors.Join(err, cl.Close())
			}
			return nil, errors.Join(err, chain.Close())
		}
	}
	return chain, nil
}
