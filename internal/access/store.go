package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// overrideKeyPrefix namespaces persisted override ids in Redis.
const overrideKeyPrefix = "access:override:"

// OverrideStore persists the applied override role id per actor so an
// impersonation survives reloads until explicitly cleared.
type OverrideStore interface {
	Load(ctx context.Context, actorID string) (string, error)
	Save(ctx context.Context, actorID, roleID string) error
	Clear(ctx context.Context, actorID string) error
}

// RedisOverrideStore keeps override ids in Redis with a bounded lifetime.
type RedisOverrideStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisOverrideStore constructs a store. A zero ttl keeps entries until
// explicitly cleared.
func NewRedisOverrideStore(client *redis.Client, ttl time.Duration) *RedisOverrideStore {
	return &RedisOverrideStore{client: client, ttl: ttl}
}

// Load returns the persisted override role id, or "" when none is applied.
func (s *RedisOverrideStore) Load(ctx context.Context, actorID string) (string, error) {
	val, err := s.client.Get(ctx, overrideKeyPrefix+actorID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("access: load override: %w", err)
	}
	return val, nil
}

// Save persists the override role id for the actor.
func (s *RedisOverrideStore) Save(ctx context.Context, actorID, roleID string) error {
	if err := s.client.Set(ctx, overrideKeyPrefix+actorID, roleID, s.ttl).Err(); err != nil {
		return fmt.Errorf("access: save override: %w", err)
	}
	return nil
}

// Clear removes any persisted override for the actor.
func (s *RedisOverrideStore) Clear(ctx context.Context, actorID string) error {
	if err := s.client.Del(ctx, overrideKeyPrefix+actorID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("access: clear override: %w", err)
	}
	return nil
}
