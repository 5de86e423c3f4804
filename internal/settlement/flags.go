package settlement

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ProfitFlags stores the per-user flag that decides whether fixed-rate
// settlements are favorable. Unset flags read as false.
type ProfitFlags interface {
	Get(ctx context.Context, userID string) (bool, error)
	Set(ctx context.Context, userID string, favorable bool) error
	Toggle(ctx context.Context, userID string) (bool, error)
}

// MemoryFlags keeps profit flags in process memory.
type MemoryFlags struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewMemoryFlags constructs an empty flag store.
func NewMemoryFlags() *MemoryFlags {
	return &MemoryFlags{flags: make(map[string]bool)}
}

func (m *MemoryFlags) Get(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[userID], nil
}

func (m *MemoryFlags) Set(_ context.Context, userID string, favorable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[userID] = favorable
	return nil
}

func (m *MemoryFlags) Toggle(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[userID] = !m.flags[userID]
	return m.flags[userID], nil
}

const flagKeyPrefix = "profit:flag:"

// toggleScript flips the flag atomically and returns the new value.
var toggleScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == "1" then
  redis.call("SET", KEYS[1], "0")
  return 0
end
redis.call("SET", KEYS[1], "1")
return 1
`)

// RedisFlags keeps profit flags in Redis so every instance agrees.
type RedisFlags struct {
	client redis.UniversalClient
}

// NewRedisFlags builds a Redis-backed flag store.
func NewRedisFlags(client redis.UniversalClient) *RedisFlags {
	return &RedisFlags{client: client}
}

func (r *RedisFlags) Get(ctx context.Context, userID string) (bool, error) {
	v, err := r.client.Get(ctx, flagKeyPrefix+userID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (r *RedisFlags) Set(ctx context.Context, userID string, favorable bool) error {
	v := "0"
	if favorable {
		v = "1"
	}
	return r.client.Set(ctx, flagKeyPrefix+userID, v, 0).Err()
}

func (r *RedisFlags) Toggle(ctx context.Context, userID string) (bool, error) {
	n, err := toggleScript.Run(ctx, r.client, []string{flagKeyPrefix + userID}).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
