// Package core provides the building blocks of the ormx persistence layer.
// This file defines the Redis-backed Cache implementation.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by a Redis client, for sharing the read cache
// across processes. Values round-trip through JSON, so a cache hit returns
// json.RawMessage rather than the original Go value; CacheMiddleware only
// relies on presence.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache creates a RedisCache on the given client. keyPrefix
// namespaces the cache keys, so several applications can share one Redis.
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

var _ Cache = (*RedisCache)(nil)

func (c *RedisCache) Get(ctx context.Context, key string) (any, bool) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return json.RawMessage(raw), true
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.keyPrefix+key, raw, ttl)
}
