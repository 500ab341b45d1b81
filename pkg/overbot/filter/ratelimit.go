package filter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// RateLimitConfig configures a per-sender token bucket.
type RateLimitConfig struct {
	// Max is the number of events a sender may send per Window.
	Max int

	// Window is the refill period for Max events.
	Window time.Duration

	// Burst is the bucket size. Zero uses Max.
	Burst int

	// MaxSenders bounds the number of tracked senders. When full, idle
	// buckets are pruned and then the least recently seen sender is evicted.
	MaxSenders int
}

// DefaultRateLimitConfig allows one event per second per sender.
var DefaultRateLimitConfig = RateLimitConfig{
	Max:        1,
	Window:     time.Second,
	MaxSenders: 10000,
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit drops events from senders that exceed their rate.
type RateLimit struct {
	name  string
	cfg   RateLimitConfig
	limit rate.Limit
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimit creates a per-sender rate limiter.
func NewRateLimit(name string, cfg RateLimitConfig) (*RateLimit, error) {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: ratelimit %s needs positive max and window", ErrInvalidOptions, name)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Max
	}
	if cfg.MaxSenders <= 0 {
		cfg.MaxSenders = DefaultRateLimitConfig.MaxSenders
	}
	return &RateLimit{
		name:    name,
		cfg:     cfg,
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Max)),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}, nil
}

// Name returns the filter name.
func (r *RateLimit) Name() string { return r.name }

// Evaluate drops the event when its sender has no tokens left.
func (r *RateLimit) Evaluate(_ context.Context, evt event.Event) (Verdict, error) {
	key := senderKey(evt)
	now := r.now()

	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		if len(r.buckets) >= r.cfg.MaxSenders {
			r.evictLocked(now)
		}
		b = &bucket{limiter: rate.NewLimiter(r.limit, r.cfg.Burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	r.mu.Unlock()

	if !allowed {
		return DropVerdict(fmt.Sprintf("sender %s over rate limit", key)), nil
	}
	return PassVerdict(), nil
}

// Senders returns the number of tracked senders.
func (r *RateLimit) Senders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// evictLocked removes buckets that have been idle for a full window, which
// are back at full capacity. If none are, the least recently seen goes.
func (r *RateLimit) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, b := range r.buckets {
		if now.Sub(b.lastSeen) >= r.cfg.Window {
			delete(r.buckets, k)
			continue
		}
		if oldestKey == "" || b.lastSeen.Before(oldest) {
			oldestKey, oldest = k, b.lastSeen
		}
	}
	if len(r.buckets) >= r.cfg.MaxSenders && oldestKey != "" {
		delete(r.buckets, oldestKey)
	}
}

// senderKey identifies who sent an event. Events without a sender are
// limited per origin.
func senderKey(evt event.Event) string {
	if s := evt.Sender(); s != "" {
		return s
	}
	return "origin:" + evt.Origin()
}

func buildRateLimit(name string, opts config.Config) (Filter, error) {
	return NewRateLimit(name, RateLimitConfig{
		Max:        opts.Int("max", DefaultRateLimitConfig.Max),
		Window:     opts.Duration("window", DefaultRateLimitConfig.Window),
		Burst:      opts.Int("burst", 0),
		MaxSenders: opts.Int("max_senders", DefaultRateLimitConfig.MaxSenders),
	})
}
