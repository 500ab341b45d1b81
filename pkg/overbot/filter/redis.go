package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// slidingWindow atomically trims expired entries, counts the rest, and
// records the new entry when under the limit.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('EXPIRE', key, ttl)
	return 1
end
return 0
`)

// RedisRateLimitConfig configures a sliding-window limiter shared between
// processes through Redis.
type RedisRateLimitConfig struct {
	Max    int
	Window time.Duration
	Prefix string
}

// RedisRateLimit drops events from senders over a sliding-window limit kept
// in Redis. Redis errors are returned and so fail open.
type RedisRateLimit struct {
	name   string
	client redis.UniversalClient
	cfg    RedisRateLimitConfig
	now    func() time.Time
	owned  bool
}

// NewRedisRateLimit creates a limiter using an existing client. The caller
// keeps ownership of the client.
func NewRedisRateLimit(name string, client redis.UniversalClient, cfg RedisRateLimitConfig) (*RedisRateLimit, error) {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: redis_ratelimit %s needs positive max and window", ErrInvalidOptions, name)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "overbot:ratelimit:"
	}
	return &RedisRateLimit{name: name, client: client, cfg: cfg, now: time.Now}, nil
}

// Name returns the filter name.
func (r *RedisRateLimit) Name() string { return r.name }

// Evaluate checks and records the event's sender in the shared window.
func (r *RedisRateLimit) Evaluate(ctx context.Context, evt event.Event) (Verdict, error) {
	key := senderKey(evt)
	now := r.now().UnixNano()
	windowStart := now - r.cfg.Window.Nanoseconds()
	ttl := int64(r.cfg.Window.Seconds()) + 1

	res, err := slidingWindow.Run(ctx, r.client,
		[]string{r.cfg.Prefix + r.name + ":" + key},
		now, windowStart, r.cfg.Max, uuid.NewString(), ttl,
	).Int()
	if err != nil {
		return Verdict{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if res != 1 {
		return DropVerdict(fmt.Sprintf("sender %s over shared rate limit", key)), nil
	}
	return PassVerdict(), nil
}

// Close closes the client when the filter created it.
func (r *RedisRateLimit) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}

func buildRedisRateLimit(name string, opts config.Config) (Filter, error) {
	url := opts.String("url", "redis://127.0.0.1:6379/0")
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: redis_ratelimit %s: invalid redis URL: %v", ErrInvalidOptions, name, err)
	}
	client := redis.NewClient(redisOpts)
	f, err := NewRedisRateLimit(name, client, RedisRateLimitConfig{
		Max:    opts.Int("max", 1),
		Window: opts.Duration("window", time.Second),
		Prefix: opts.String("prefix", ""),
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	f.owned = true
	return f, nil
}
