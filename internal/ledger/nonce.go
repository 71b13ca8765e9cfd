package ledger

import (
	"context"
	"errors"
	"sync"
)

// Counter hands out strictly increasing nonce reservations. Reserve returns
// the value the caller may use and advances the counter; if the counter has
// never been seeded it reports ErrCounterUnseeded so the coordinator can
// reseed from ledger truth.
type Counter interface {
	Seed(ctx context.Context, next uint64) error
	Reserve(ctx context.Context) (uint64, error)
	Reset(ctx context.Context) error
}

var ErrCounterUnseeded = errors.New("nonce counter unseeded")

// LocalCounter is the single-process tier: a mutex around a uint64. Shared
// deployments use the Redis counter instead.
type LocalCounter struct {
	mu     sync.Mutex
	seeded bool
	next   uint64
}

func NewLocalCounter() *LocalCounter { return &LocalCounter{} }

func (c *LocalCounter) Seed(_ context.Context, next uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		c.seeded = true
		c.next = next
	}
	return nil
}

func (c *LocalCounter) Reserve(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		return 0, ErrCounterUnseeded
	}
	n := c.next
	c.next++
	return n, nil
}

func (c *LocalCounter) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeded = false
	c.next = 0
	return nil
}

// NonceSource is the ledger-truth side of seeding. *Client satisfies it.
type NonceSource interface {
	AccountNonce(ctx context.Context, publicKeyHex string) (uint64, error)
}

// NonceCoordinator serializes admin transaction submission so concurrent
// callers never burn the same nonce. Reservations come from the counter;
// the counter is seeded from the ledger on first use and reseeded after any
// failed submission, because a failed transaction may or may not have
// consumed its nonce on the ledger side.
type NonceCoordinator struct {
	source  NonceSource
	counter Counter
	pubHex  string

	// gate serializes Do so queued submissions run one at a time.
	gate chan struct{}
}

func NewNonceCoordinator(source NonceSource, counter Counter, adminPublicKeyHex string) *NonceCoordinator {
	return &NonceCoordinator{
		source:  source,
		counter: counter,
		pubHex:  adminPublicKeyHex,
		gate:    make(chan struct{}, 1),
	}
}

// ReserveNonce returns the next nonce the caller may sign with.
func (nc *NonceCoordinator) ReserveNonce(ctx context.Context) (uint64, error) {
	n, err := nc.counter.Reserve(ctx)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, ErrCounterUnseeded) {
		return 0, err
	}
	truth, err := nc.source.AccountNonce(ctx, nc.pubHex)
	if err != nil {
		return 0, err
	}
	if err := nc.counter.Seed(ctx, truth); err != nil {
		return 0, err
	}
	return nc.counter.Reserve(ctx)
}

// ResetAfterFailure discards the local reservation state. The next
// ReserveNonce call reseeds from the ledger.
func (nc *NonceCoordinator) ResetAfterFailure(ctx context.Context) error {
	return nc.counter.Reset(ctx)
}

// Do runs one submission under the coordinator's queue: reserve a nonce,
// hand it to fn, and reset on failure so later submissions resync with the
// ledger instead of marching ahead on a possibly stale counter.
func (nc *NonceCoordinator) Do(ctx context.Context, fn func(ctx context.Context, nonce uint64) error) error {
	select {
	case nc.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-nc.gate }()

	nonce, err := nc.ReserveNonce(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, nonce); err != nil {
		if rerr := nc.counter.Reset(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}
