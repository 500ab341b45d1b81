// Package registry provides a generic thread-safe registry for values indexed by key.
//
// Writes serialize on a mutex and publish an immutable, insertion-ordered
// snapshot. Reads (Get, Keys, Snapshot) load that snapshot without
// taking a lock, so a reader iterating a snapshot never blocks a writer and
// never observes a half-applied change. A write is visible to every read that
// starts after the write returns.
//
// # Basic Usage
//
//	r := registry.New[string, int]()
//	r.Register("one", 1)
//	r.Register("two", 2)
//
//	value, ok := r.Get("one")
//
// # Unique Registration
//
// Add refuses duplicate keys, and optionally values that an existing entry
// already holds:
//
//	err := sinks.Add("irc", sink, func(existing Sink) bool { return existing == sink })
//	if errors.Is(err, registry.ErrExists) {
//	    // already registered
//	}
//
// # Factory Pattern
//
//	type Factory func(name string, cfg config.Config) (filter.Filter, error)
//
//	factories := registry.New[string, Factory]()
//	factories.Register("ratelimit", newRateLimit)
package registry
