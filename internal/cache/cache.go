// Package cache is a redis-backed read-through cache in front of the
// schema catalog's reconcile reads (ListRPs/ListCQs): reconciliation
// runs once per invocation and the live schema rarely changes between
// runs, so caching it avoids a round trip to the TSDB on every quick
// --test or --constant invocation within the TTL window. Grounded on
// the teacher's queue package's redis.Client usage, repurposed here
// from pub/sub messaging to simple GET/SETEX caching.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a redis client with typed Get/Set helpers for JSON-
// serializable values.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Config names the redis endpoint.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// New builds a cache. It does not ping the server; callers that need to
// fail fast on a bad endpoint should call Ping explicitly.
func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}),
		ttl:    ttl,
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get decodes the cached value for key into out, reporting whether the
// key was present (a cache miss is not an error).
func (c *Cache) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("cache: decoding %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encoding %q: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// Invalidate removes key, used after Reconcile applies a change so the
// next read reflects the new live state rather than the stale cache.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: invalidate %q: %w", key, err)
	}
	return nil
}

// RPsKey and CQsKey name the cache entries CachedClient reads through.
func RPsKey(database string) string { return "sppmon:rps:" + database }
func CQsKey(database string) string { return "sppmon:cqs:" + database }
