package entitlements

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore records course access grants as Redis keys. Grant uses SetNX so
// replaying a grant for an already-entitled pair is a no-op.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func entitlementKey(userID, courseID string) string {
	return fmt.Sprintf("entitlement:%s:%s", userID, courseID)
}

func (s *RedisStore) Grant(ctx context.Context, userID, courseID string) error {
	return s.client.SetNX(ctx, entitlementKey(userID, courseID), "1", 0).Err()
}

func (s *RedisStore) HasAccess(ctx context.Context, userID, courseID string) (bool, error) {
	n, err := s.client.Exists(ctx, entitlementKey(userID, courseID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InMemory is a map-backed store for tests and local runs.
type InMemory struct {
	mu      sync.RWMutex
	granted map[string]bool
}

func NewInMemory() *InMemory {
	return &InMemory{granted: make(map[string]bool)}
}

func (m *InMemory) Grant(_ context.Context, userID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted[entitlementKey(userID, courseID)] = true
	return nil
}

func (m *InMemory) HasAccess(_ context.Context, userID, courseID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.granted[entitlementKey(userID, courseID)], nil
}
