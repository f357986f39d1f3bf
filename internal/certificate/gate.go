package certificate

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate lets one caller per key through until the key expires.
type Gate interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisGate is a Gate shared by every process using the same Redis.
type RedisGate struct {
	client *redis.Client
}

// NewRedisGate creates a gate backed by SETNX.
func NewRedisGate(client *redis.Client) *RedisGate {
	return &RedisGate{client: client}
}

// Acquire sets key if absent.
func (g *RedisGate) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, key, 1, ttl).Result()
}

// MemoryGate is a process-local Gate for dev and tests.
type MemoryGate struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryGate creates an empty gate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{keys: make(map[string]time.Time), now: time.Now}
}

// Acquire records key until ttl passes.
func (g *MemoryGate) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if until, ok := g.keys[key]; ok && now.Before(until) {
		return false, nil
	}
	g.keys[key] = now.Add(ttl)
	return true, nil
}
