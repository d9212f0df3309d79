// Package sendcap enforces the global daily send limit. Every send
// reserves a slot before the transport call; the day's counter rolls
// over at UTC midnight.
package sendcap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DailyCap reserves send slots against the daily limit.
type DailyCap interface {
	// Allow attempts to reserve n send slots for the current UTC day.
	// It returns false without consuming anything when granting the
	// reservation would exceed the cap.
	Allow(ctx context.Context, n int) (bool, error)
}

func dayKey(now time.Time) string {
	return "sendcap:day:" + now.UTC().Format("2006-01-02")
}

// checkAndIncr increments the day counter only if the result stays
// within the limit. Runs atomically on the Redis server, so concurrent
// schedulers sharing one Redis never over-reserve between them.
var checkAndIncr = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if current + n > limit then
	return 0
end
redis.call('INCRBY', KEYS[1], n)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisCap is a DailyCap backed by a shared Redis counter. The counter
// key carries the UTC date, with a TTL slightly past a day so stale
// keys clean themselves up.
type RedisCap struct {
	client *redis.Client
	limit  int
	clock  func() time.Time
}

func NewRedisCap(client *redis.Client, limit int) *RedisCap {
	return &RedisCap{client: client, limit: limit, clock: time.Now}
}

// NewRedisCapWithClock is used by tests to pin the current day.
func NewRedisCapWithClock(client *redis.Client, limit int, clock func() time.Time) *RedisCap {
	return &RedisCap{client: client, limit: limit, clock: clock}
}

func (c *RedisCap) Allow(ctx context.Context, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}

	const ttlSeconds = 25 * 60 * 60

	res, err := checkAndIncr.Run(ctx, c.client, []string{dayKey(c.clock())}, n, c.limit, ttlSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("send cap check failed: %w", err)
	}

	return res == 1, nil
}

// LocalCap is an in-process DailyCap used when Redis is not configured.
// It is accurate for a single scheduler instance only.
type LocalCap struct {
	mu    sync.Mutex
	limit int
	day   string
	used  int
	clock func() time.Time
}

// NewLocalCap starts the counter at alreadySent, so callers can seed it
// from persisted send history after a restart.
func NewLocalCap(limit, alreadySent int, clock func() time.Time) *LocalCap {
	if clock == nil {
		clock = time.Now
	}
	return &LocalCap{
		limit: limit,
		day:   clock().UTC().Format("2006-01-02"),
		used:  alreadySent,
		clock: clock,
	}
}

func (c *LocalCap) Allow(_ context.Context, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.clock().UTC().Format("2006-01-02")
	if today != c.day {
		c.day = today
		c.used = 0
	}

	if c.used+n > c.limit {
		return false, nil
	}

	c.used += n
	return true, nil
}

// Unlimited is a DailyCap that never refuses. Used when no cap is
// configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, int) (bool, error) { return true, nil }
