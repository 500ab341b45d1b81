package deadletter

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxSize bounds a MemoryStore.
const DefaultMaxSize = 10000

// MemoryStore keeps the most recent failures in a bounded ring. When full,
// the oldest failure is evicted.
type MemoryStore struct {
	mu      sync.RWMutex
	buf     []Failure
	start   int
	size    int
	evicted int64
	closed  bool
}

// NewMemoryStore creates a store holding at most maxSize failures.
// A non-positive maxSize uses DefaultMaxSize.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &MemoryStore{buf: make([]Failure, maxSize)}
}

// Record implements Store.
func (m *MemoryStore) Record(_ context.Context, f Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now().UTC()
	}
	idx := (m.start + m.size) % len(m.buf)
	m.buf[idx] = f
	if m.size < len(m.buf) {
		m.size++
	} else {
		m.start = (m.start + 1) % len(m.buf)
		m.evicted++
	}
	return nil
}

// collect walks failures newest first while keep returns true, up to limit.
// Callers hold m.mu.
func (m *MemoryStore) collect(limit int, keep func(Failure) bool) []Failure {
	out := []Failure{}
	for i := m.size - 1; i >= 0; i-- {
		f := m.buf[(m.start+i)%len(m.buf)]
		if !keep(f) {
			continue
		}
		out = append(out, f)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// List implements Store. A non-positive limit returns everything.
func (m *MemoryStore) List(_ context.Context, limit int) ([]Failure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.collect(limit, func(Failure) bool { return true }), nil
}

// ListBySink implements Store.
func (m *MemoryStore) ListBySink(_ context.Context, sink string, limit int) ([]Failure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.collect(limit, func(f Failure) bool { return f.Sink == sink }), nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.size, nil
}

// CountBySink implements Store.
func (m *MemoryStore) CountBySink(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	counts := make(map[string]int)
	for i := 0; i < m.size; i++ {
		counts[m.buf[(m.start+i)%len(m.buf)].Sink]++
	}
	return counts, nil
}

// Purge implements Store.
func (m *MemoryStore) Purge(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	kept := make([]Failure, 0, m.size)
	for i := 0; i < m.size; i++ {
		f := m.buf[(m.start+i)%len(m.buf)]
		if !f.FailedAt.Before(olderThan) {
			kept = append(kept, f)
		}
	}
	removed := m.size - len(kept)
	clear(m.buf)
	copy(m.buf, kept)
	m.start = 0
	m.size = len(kept)
	return removed, nil
}

// Evicted returns how many failures were dropped because the store was full.
func (m *MemoryStore) Evicted() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evicted
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.buf = nil
	m.size = 0
	return nil
}
