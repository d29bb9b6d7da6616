package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "form_rate_limit:"

// admitScript mirrors MemoryStore.Admit: a full window rejects without
// mutating; the first hit of a window sets the expiry.
var admitScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return 0
end
current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisStore shares counters between instances. Window expiry is delegated
// to key TTLs.
type RedisStore struct {
	client redis.Scripter
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Admit(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	res, err := admitScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, max, window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script for %s: %w", key, err)
	}
	return res == 1, nil
}
