package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := New[string, int]()
	assert.NotNil(t, r)
	assert.Empty(t, r.Keys())
	assert.Empty(t, r.Snapshot())
}

func TestRegisterAndGet(t *testing.T) {
	r := New[string, int]()

	r.Register("one", 1)
	r.Register("two", 2)

	v, ok := r.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Get("two")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = r.Get("three")
	assert.False(t, ok)
	assert.Equal(t, 0, v)
}

func TestRegisterOverwriteKeepsPosition(t *testing.T) {
	r := New[string, string]()

	r.Register("a", "old")
	r.Register("b", "b")
	r.Register("a", "new")

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, []string{"a", "b"}, r.Keys())
}

func TestInsertionOrder(t *testing.T) {
	r := New[string, int]()
	for i, k := range []string{"z", "a", "m", "b"} {
		r.Register(k, i)
	}

	assert.Equal(t, []string{"z", "a", "m", "b"}, r.Keys())
	for i, e := range r.Snapshot() {
		assert.Equal(t, i, e.Value)
	}

	r.Delete("a")
	assert.Equal(t, []string{"z", "m", "b"}, r.Keys())
}

func TestAdd(t *testing.T) {
	r := New[string, int]()

	require.NoError(t, r.Add("one", 1, nil))

	err := r.Add("one", 10, nil)
	assert.True(t, errors.Is(err, ErrExists))

	v, _ := r.Get("one")
	assert.Equal(t, 1, v, "duplicate add must not overwrite")

	// Reject by value
	err = r.Add("uno", 1, func(existing int) bool { return existing == 1 })
	assert.True(t, errors.Is(err, ErrExists))
	_, ok := r.Get("uno")
	assert.False(t, ok)

	require.NoError(t, r.Add("two", 2, func(existing int) bool { return existing == 2 }))
	assert.Equal(t, []string{"one", "two"}, r.Keys())
}

func TestDelete(t *testing.T) {
	r := New[string, int]()
	r.Register("key", 42)

	v, ok := r.Delete("key")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Empty(t, r.Keys())

	_, ok = r.Delete("key")
	assert.False(t, ok)
}

func TestDeleteIf(t *testing.T) {
	r := New[string, int]()
	r.Register("a", 1)
	r.Register("b", 2)

	_, ok := r.DeleteIf("a", func(v int) bool { return v == 99 })
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, r.Keys())

	v, ok := r.DeleteIf("a", func(v int) bool { return v == 1 })
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"b"}, r.Keys())

	_, ok = r.DeleteIf("missing", func(int) bool { return true })
	assert.False(t, ok)
}

func TestSnapshotIsStable(t *testing.T) {
	r := New[string, int]()
	r.Register("a", 1)
	r.Register("b", 2)

	snap := r.Snapshot()
	r.Register("c", 3)
	r.Delete("a")

	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Key)
	assert.Equal(t, "b", snap[1].Key)
	assert.Equal(t, []string{"b", "c"}, r.Keys())
}

func TestConcurrentAccess(t *testing.T) {
	r := New[int, int]()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(i, i*i)
		}(i)
		go func() {
			defer wg.Done()
			for _, e := range r.Snapshot() {
				assert.Equal(t, e.Key*e.Key, e.Value)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, r.Snapshot(), 20)
}
