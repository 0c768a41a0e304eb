package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gosuda/relaygate/internal/ratelimit"
)

// The counter is checked before it is incremented so that rejected attempts
// never move it past the limit.
//
//nolint:gochecknoglobals // compiled once
var rateLimitScript = redis.NewScript(`
local limit = tonumber(ARGV[2])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local allowed = 0
if current < limit then
  current = redis.call("INCR", KEYS[1])
  allowed = 1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 and current > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl, allowed}
`)

// Limiter is a ratelimit.Limiter shared by every process using the same
// Redis database.
type Limiter struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

func NewLimiter(client *redis.Client, window time.Duration) *Limiter {
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}
	return &Limiter{client: client, window: window, now: time.Now}
}

// Allow errors when Redis cannot be reached. Callers decide whether that
// fails open or closed.
func (l *Limiter) Allow(ctx context.Context, key string, limit int) (ratelimit.Decision, error) {
	if limit <= 0 {
		limit = 1
	}

	res, err := rateLimitScript.Run(ctx, l.client, []string{rateKeyPrefix + key}, l.window.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("redis.Limiter.Allow: %w", err)
	}
	if len(res) != 3 {
		return ratelimit.Decision{}, fmt.Errorf("redis.Limiter.Allow: unexpected script reply of length %d", len(res))
	}

	count, ttlMs, allowed := int(res[0]), res[1], res[2] == 1
	if ttlMs < 0 {
		ttlMs = l.window.Milliseconds()
	}
	return ratelimit.Decision{
		Allowed:   allowed,
		Count:     count,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   l.now().UTC().Add(time.Duration(ttlMs) * time.Millisecond),
	}, nil
}
