package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis emulates the counter key with the same atomicity Redis gives a
// single script invocation.
type fakeRedis struct {
	mu   sync.Mutex
	vals map[string]int64
}

func newFakeRedis() *fakeRedis { return &fakeRedis{vals: make(map[string]int64)} }

func (f *fakeRedis) reserve(keys []string) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.vals[keys[0]]
	if !ok {
		return redis.NewCmdResult(nil, redis.Nil)
	}
	n++
	f.vals[keys[0]] = n
	return redis.NewCmdResult(n, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.reserve(keys)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.reserve(keys)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeRedis) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = value.(int64)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vals, keys[0])
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) hasKey(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.vals[key]
	return ok
}

func TestRedisCounterMissingKeyIsUnseededNotZero(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := NewRedisCounter(fake)

	// A reserve on a missing key must report unseeded and must not invent
	// a counter at zero.
	if _, err := c.Reserve(ctx); !errors.Is(err, ErrCounterUnseeded) {
		t.Fatalf("Reserve on empty = %v, want ErrCounterUnseeded", err)
	}
	if fake.hasKey(redisCounterKey) {
		t.Fatal("reserve recreated the counter key")
	}

	if err := c.Seed(ctx, 42); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	for want := uint64(42); want < 44; want++ {
		got, err := c.Reserve(ctx)
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if got != want {
			t.Fatalf("reserved %d, want %d", got, want)
		}
	}

	// A peer's reset between reservations forces the next reserve back to
	// the ledger instead of marching on from a recreated key.
	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := c.Reserve(ctx); !errors.Is(err, ErrCounterUnseeded) {
		t.Fatalf("Reserve after reset = %v, want ErrCounterUnseeded", err)
	}
	if fake.hasKey(redisCounterKey) {
		t.Fatal("reserve after reset recreated the counter key")
	}
}

func TestRedisCounterSeedNeverRollsBack(t *testing.T) {
	ctx := context.Background()
	c := NewRedisCounter(newFakeRedis())

	if err := c.Seed(ctx, 100); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if _, err := c.Reserve(ctx); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// A late peer seeding an older truth must not rewind the counter.
	if err := c.Seed(ctx, 5); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	got, err := c.Reserve(ctx)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got != 101 {
		t.Fatalf("reserved %d after stale seed, want 101", got)
	}
}
