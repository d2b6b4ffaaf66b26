package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	listKeyPrefix = "workflows:"
	// generationKey sits outside listKeyPrefix so Invalidate never deletes it.
	generationKey = "workflows-generation"
)

// Cache wraps Redis client for workflow list caching
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new Redis cache client
func NewCache(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr, "ttl", ttl)

	return &Cache{client: client, ttl: ttl}, nil
}

// GenerateListKey generates a consistent cache key for a list query within
// one cache generation
func GenerateListKey(generation int64, platform, country string, limit int) string {
	raw := fmt.Sprintf("%s|%s|%d", strings.ToLower(platform), strings.ToLower(country), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", listKeyPrefix, generation, hash[:8])
}

// ListKey returns the key for a list query in the current generation. A read
// that misses and stores its result after an invalidation writes under the
// old generation, where no later read looks.
func (c *Cache) ListKey(ctx context.Context, platform, country string, limit int) (string, error) {
	generation, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("failed to read cache generation: %w", err)
	}
	return GenerateListKey(generation, platform, country, limit), nil
}

// GetList returns the cached payload and whether it was a hit
func (c *Cache) GetList(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

func (c *Cache) SetList(ctx context.Context, key string, payload []byte) error {
	if c.ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached list response
func (c *Cache) Invalidate(ctx context.Context) error {
	generation, err := c.client.Incr(ctx, generationKey).Result()
	if err != nil {
		return fmt.Errorf("failed to advance cache generation: %w", err)
	}

	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, listKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	slog.Debug("Cache invalidated", "generation", generation, "keys", deleted)
	return nil
}

// Health returns cache health information
func (c *Cache) Health(ctx context.Context) map[string]any {
	health := map[string]any{
		"status": "healthy",
		"type":   "redis",
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if size, err := c.client.DBSize(ctx).Result(); err == nil {
		health["key_count"] = size
	}

	return health
}

func (c *Cache) Close() error {
	return c.client.Close()
}
