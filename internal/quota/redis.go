package quota

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// incrScript increments KEYS[1] and sets its expiry on creation.
// ARGV[1] = ttl in milliseconds
var incrScript = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisStore is a CounterStore shared by every instance pointing at the same
// Redis. Increment and expiry run in one Lua script.
type RedisStore struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ CounterStore = (*RedisStore)(nil)

// RedisOption configures RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "tokenbot:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client goredis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, keyPrefix: "tokenbot:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("counter ttl must be positive, got %s", ttl)
	}
	n, err := incrScript.Run(ctx, s.client, []string{s.keyPrefix + key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment %q: %w", key, err)
	}
	return n, nil
}
