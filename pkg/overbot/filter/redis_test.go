package filter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRateLimitSlidingWindow(t *testing.T) {
	_, client := setupTestRedis(t)
	rl, err := NewRedisRateLimit("shared", client, RedisRateLimitConfig{Max: 2, Window: time.Second})
	require.NoError(t, err)
	clock := newClock()
	rl.now = clock.now
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		v, err := rl.Evaluate(ctx, from("alice", "x"))
		require.NoError(t, err)
		assert.Equal(t, Pass, v.Action)
		clock.advance(100 * time.Millisecond)
	}

	v, err := rl.Evaluate(ctx, from("alice", "x"))
	require.NoError(t, err)
	assert.Equal(t, Drop, v.Action)

	v, err = rl.Evaluate(ctx, from("bob", "x"))
	require.NoError(t, err)
	assert.Equal(t, Pass, v.Action)

	clock.advance(time.Second)
	v, err = rl.Evaluate(ctx, from("alice", "x"))
	require.NoError(t, err)
	assert.Equal(t, Pass, v.Action, "entries older than the window are trimmed")
}

func TestRedisRateLimitSharedBetweenInstances(t *testing.T) {
	_, client := setupTestRedis(t)
	cfg := RedisRateLimitConfig{Max: 1, Window: time.Minute}

	a, err := NewRedisRateLimit("shared", client, cfg)
	require.NoError(t, err)
	b, err := NewRedisRateLimit("shared", client, cfg)
	require.NoError(t, err)

	v, _ := a.Evaluate(context.Background(), from("alice", "x"))
	assert.Equal(t, Pass, v.Action)
	v, _ = b.Evaluate(context.Background(), from("alice", "x"))
	assert.Equal(t, Drop, v.Action)
}

func TestRedisRateLimitErrorFailsOpenInChain(t *testing.T) {
	mr, client := setupTestRedis(t)
	rl, err := NewRedisRateLimit("shared", client, RedisRateLimitConfig{Max: 1, Window: time.Second})
	require.NoError(t, err)

	mr.Close()

	_, err = rl.Evaluate(context.Background(), from("alice", "x"))
	require.Error(t, err)

	chain := NewChain(WithTimeout(5 * time.Second))
	require.NoError(t, chain.Append(rl))
	out := chain.Evaluate(context.Background(), from("alice", "x"))
	assert.False(t, out.Dropped)
	assert.Equal(t, []string{"shared"}, out.FailedOpen)
}

func TestBuildRedisRateLimit(t *testing.T) {
	mr, _ := setupTestRedis(t)

	f, err := Build("shared", "redis_ratelimit", config.New(map[string]any{
		"url":    "redis://" + mr.Addr() + "/0",
		"max":    1,
		"window": "1m",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.(Closer).Close() })

	v, err := f.Evaluate(context.Background(), from("alice", "x"))
	require.NoError(t, err)
	assert.Equal(t, Pass, v.Action)

	_, err = Build("bad", "redis_ratelimit", config.New(map[string]any{"url": "::not a url"}))
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
