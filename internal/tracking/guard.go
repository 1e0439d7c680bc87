package tracking

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// TrackedMetaKey is the order metadata key marking a tracked purchase.
const TrackedMetaKey = "_ga4_tracked"

// Guard records which orders already emitted a purchase event.
// TryMarkTracked returns true exactly once per order.
type Guard interface {
	IsTracked(ctx context.Context, orderID int64) (bool, error)
	TryMarkTracked(ctx context.Context, orderID int64) (bool, error)
}

// MemoryGuard keeps flags in process memory.
type MemoryGuard struct {
	mu      sync.Mutex
	tracked map[int64]bool
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{tracked: make(map[int64]bool)}
}

func (g *MemoryGuard) IsTracked(_ context.Context, orderID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tracked[orderID], nil
}

func (g *MemoryGuard) TryMarkTracked(_ context.Context, orderID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tracked[orderID] {
		return false, nil
	}
	g.tracked[orderID] = true
	return true, nil
}

// RedisGuard stores flags as Redis keys set with SETNX, so concurrent
// renders of the same confirmation page race on a single atomic write.
type RedisGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisGuard(client *redis.Client, prefix string) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix}
}

func (g *RedisGuard) key(orderID int64) string {
	return g.prefix + strconv.FormatInt(orderID, 10)
}

func (g *RedisGuard) IsTracked(ctx context.Context, orderID int64) (bool, error) {
	n, err := g.client.Exists(ctx, g.key(orderID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read tracked flag for order %d: %w", orderID, err)
	}
	return n > 0, nil
}

func (g *RedisGuard) TryMarkTracked(ctx context.Context, orderID int64) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(orderID), "yes", 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark order %d tracked: %w", orderID, err)
	}
	return ok, nil
}
