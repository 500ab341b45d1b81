package registry

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrExists is returned by Add when the key is already registered.
var ErrExists = errors.New("registry: key already registered")

// Entry is a key/value pair returned by Snapshot.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Registry is a thread-safe registry for values indexed by key.
// Writers serialize on a mutex and publish an immutable, insertion-ordered
// snapshot; readers load the snapshot without locking.
type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	order   []K

	snapshot atomic.Pointer[[]Entry[K, V]]
}

// New creates a new empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	r := &Registry[K, V]{
		entries: make(map[K]V),
	}
	r.snapshot.Store(&[]Entry[K, V]{})
	return r
}

// publish rebuilds the read snapshot. Callers hold r.mu.
func (r *Registry[K, V]) publish() {
	snap := make([]Entry[K, V], 0, len(r.order))
	for _, k := range r.order {
		snap = append(snap, Entry[K, V]{Key: k, Value: r.entries[k]})
	}
	r.snapshot.Store(&snap)
}

// Register adds or updates a value in the registry.
// An update keeps the key's original position.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		r.order = append(r.order, key)
	}
	r.entries[key] = value
	r.publish()
}

// Add registers value only if key is absent. The optional reject function is
// called with every existing value under the write lock; if it returns true
// the add is refused with ErrExists.
func (r *Registry[K, V]) Add(key K, value V, reject func(existing V) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return ErrExists
	}
	if reject != nil {
		for _, k := range r.order {
			if reject(r.entries[k]) {
				return ErrExists
			}
		}
	}
	r.order = append(r.order, key)
	r.entries[key] = value
	r.publish()
	return nil
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	for _, e := range *r.snapshot.Load() {
		if e.Key == key {
			return e.Value, true
		}
	}
	var zero V
	return zero, false
}

// Delete removes a key from the registry and returns the removed value.
func (r *Registry[K, V]) Delete(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if !ok {
		return v, false
	}
	delete(r.entries, key)
	r.order = slices.DeleteFunc(r.order, func(k K) bool { return k == key })
	r.publish()
	return v, true
}

// DeleteIf removes key only if match reports true for its current value.
func (r *Registry[K, V]) DeleteIf(key K, match func(V) bool) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if !ok || !match(v) {
		var zero V
		return zero, false
	}
	delete(r.entries, key)
	r.order = slices.DeleteFunc(r.order, func(k K) bool { return k == key })
	r.publish()
	return v, true
}

// Keys returns all keys in registration order.
func (r *Registry[K, V]) Keys() []K {
	snap := *r.snapshot.Load()
	keys := make([]K, 0, len(snap))
	for _, e := range snap {
		keys = append(keys, e.Key)
	}
	return keys
}

// Snapshot returns the current entries in registration order. The returned
// slice is shared and must not be modified.
func (r *Registry[K, V]) Snapshot() []Entry[K, V] {
	return *r.snapshot.Load()
}
