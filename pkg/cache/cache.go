package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache is a Redis-backed cache for derived read models that are
// cheap to recompute but hot under polling (operation status snapshots).
// Entries carry a short TTL and are invalidated on every write to the
// underlying record.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from REDIS_URL, defaulting to localhost
func NewRedisClient() *redis.Client {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
}

// NewSnapshotCache wraps a redis client. A nil client disables caching;
// every method degrades to a miss/no-op so callers need no nil checks.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

// Get loads a cached value into dest, reporting whether it was present
func (c *SnapshotCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a value under the cache's TTL
func (c *SnapshotCache) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Ping checks connectivity for health reporting
func (c *SnapshotCache) Ping() error {
	if c == nil || c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Delete drops a key, used to invalidate after a write
func (c *SnapshotCache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
