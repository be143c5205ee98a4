package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "audit:idem:"

// RedisGuard is a reservation table shared across processes, backed by
// Redis SET NX with a TTL.
type RedisGuard struct {
	client *redis.Client
}

// NewRedisGuard creates a guard backed by Redis.
func NewRedisGuard(addr, password string, db int) *RedisGuard {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisGuard{client: rdb}
}

// NewRedisGuardFromClient wraps an existing client.
func NewRedisGuardFromClient(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// Reserve claims key for entryUUID via SET NX. When the key is already held
// the owning entry uuid is fetched and returned.
func (g *RedisGuard) Reserve(ctx context.Context, key, entryUUID string, ttl time.Duration) (string, bool, error) {
	rkey := keyPrefix + key

	ok, err := g.client.SetNX(ctx, rkey, entryUUID, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis reserve error: %w", err)
	}
	if ok {
		return "", true, nil
	}

	existing, err := g.client.Get(ctx, rkey).Result()
	if err == redis.Nil {
		// Reservation expired between SETNX and GET; claim it now.
		ok, err = g.client.SetNX(ctx, rkey, entryUUID, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis reserve error: %w", err)
		}
		if ok {
			return "", true, nil
		}
		existing, err = g.client.Get(ctx, rkey).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis reserve error: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis reserve error: %w", err)
	}
	return existing, false, nil
}

// Release frees the reservation for key.
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis release error: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
