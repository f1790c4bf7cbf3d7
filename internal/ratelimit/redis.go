package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// incrScript increments the counter and sets its expiry in one round trip so
// a crash between the two commands cannot leave a counter without a TTL.
// KEYS[1] = counter key
// ARGV[1] = ttl in milliseconds
var incrScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisStore is a CounterStore shared by every API instance.
type RedisStore struct {
	client goredis.Cmdable
}

// NewRedisStore wraps a connected *goredis.Client or *goredis.ClusterClient.
func NewRedisStore(client goredis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	return count, nil
}
