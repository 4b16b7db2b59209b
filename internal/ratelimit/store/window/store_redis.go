package window

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// hitScript runs the prune, count and conditional add atomically.
// KEYS[1] window key. ARGV: now ms, window ms, max, member.
// Returns {allowed, count, oldest ms}.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < max then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
if count > 0 then
  redis.call('PEXPIRE', KEYS[1], window)
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local oldestScore = 0
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisStore keeps attempt logs in sorted sets scored by attempt time, so
// every instance behind a load balancer shares one window per key.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Hit implements the same contract as InMemoryStore.Hit.
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, max int, window time.Duration) (Hit, error) {
	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()
	res, err := hitScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), max, member,
	).Int64Slice()
	if err != nil {
		return Hit{}, fmt.Errorf("rate limit window %s: %w", key, err)
	}
	if len(res) != 3 {
		return Hit{}, fmt.Errorf("rate limit window %s: unexpected reply length %d", key, len(res))
	}
	hit := Hit{Allowed: res[0] == 1, Count: int(res[1])}
	if res[2] > 0 {
		hit.Oldest = time.UnixMilli(res[2]).UTC()
	}
	return hit, nil
}

// Reset clears the log for key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset rate limit window %s: %w", key, err)
	}
	return nil
}

// Sweep is a no-op; keys expire with PEXPIRE.
func (s *RedisStore) Sweep(context.Context, time.Time, time.Duration) (int, error) {
	return 0, nil
}
