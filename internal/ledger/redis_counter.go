package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCounterKey = "auth:admin:nonce"

// reserveScript increments the counter only if it exists. EXISTS and INCR
// must be one atomic step: a peer's Reset landing between them would let
// INCR recreate the key at zero and hand out a stale nonce.
var reserveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
return redis.call("INCR", KEYS[1])
`)

// RedisClient is the slice of redis.UniversalClient the counter needs.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCounter is the shared tier: several auth daemons pointed at the same
// Redis reserve from one atomic counter, so they never race each other for
// an admin nonce.
type RedisCounter struct {
	client RedisClient
	key    string
}

func NewRedisCounter(client RedisClient) *RedisCounter {
	return &RedisCounter{client: client, key: redisCounterKey}
}

// Seed installs the ledger-truth next nonce only if no counter exists yet,
// so a racing peer's already-advanced counter is never rolled back.
func (c *RedisCounter) Seed(ctx context.Context, next uint64) error {
	return c.client.SetNX(ctx, c.key, int64(next), 0).Err()
}

func (c *RedisCounter) Reserve(ctx context.Context) (uint64, error) {
	n, err := reserveScript.Run(ctx, c.client, []string{c.key}).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCounterUnseeded
		}
		return 0, err
	}
	return uint64(n - 1), nil
}

func (c *RedisCounter) Reset(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
