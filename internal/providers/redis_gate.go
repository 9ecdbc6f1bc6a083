package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// reserveSlot atomically claims the next free slot and returns how long the
// caller must wait for it, in milliseconds.
var reserveSlot = redis.NewScript(`
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local slot = now
if last > 0 and last + interval > now then
  slot = last + interval
end
local ttl = interval * 2 + (slot - now)
if ttl < 1 then ttl = 1 end
redis.call('SET', KEYS[1], slot, 'PX', ttl)
return slot - now
`)

// RedisGate is a Gate shared by every process pointing at the same key.
type RedisGate struct {
	rdb redis.UniversalClient
	key string

	mu       sync.Mutex
	interval time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRedisGate creates a cross-process gate stored under key.
func NewRedisGate(rdb redis.UniversalClient, key string, interval time.Duration) *RedisGate {
	if interval < 0 {
		interval = 0
	}
	return &RedisGate{
		rdb:      rdb,
		key:      key,
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait reserves the next slot in Redis and sleeps until it arrives.
func (g *RedisGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	interval := g.interval
	g.mu.Unlock()

	waitMS, err := reserveSlot.Run(ctx, g.rdb, []string{g.key},
		g.now().UnixMilli(), interval.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("reserve gate slot: %w", err)
	}
	if waitMS <= 0 {
		return nil
	}
	return g.sleep(ctx, time.Duration(waitMS)*time.Millisecond)
}

// SetInterval changes the interval for future reservations by this process.
func (g *RedisGate) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interval = d
}

var _ Limiter = (*RedisGate)(nil)
