package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares challenges between server instances. GETDEL gives the
// required atomic fetch-and-delete, and the key TTL garbage-collects
// unconsumed challenges server-side.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: "auth:challenge:",
		now:       time.Now,
	}
}

func (s *RedisStore) Put(ctx context.Context, ch Challenge) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	ttl := ch.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// Already expired on arrival; storing it would only resurrect it.
		return nil
	}
	return s.client.Set(ctx, s.keyPrefix+ch.ID, raw, ttl).Err()
}

func (s *RedisStore) Take(ctx context.Context, id string) (Challenge, bool, error) {
	raw, err := s.client.GetDel(ctx, s.keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, false, nil
	}
	if err != nil {
		return Challenge{}, false, err
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return Challenge{}, false, nil
	}
	return ch, true, nil
}
