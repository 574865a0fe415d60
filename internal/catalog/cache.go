package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a read-through cache for single products. Implementations never
// fail the caller; misses and backend errors look the same.
type Cache interface {
	Get(ctx context.Context, id string) (*Product, bool)
	Set(ctx context.Context, p *Product)
	Invalidate(ctx context.Context, ids ...string)
}

// redisClient is the subset of redis.Cmdable the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// An invalidated key holds tombstone for tombstoneTTL. Fills only use SETNX,
// so a reader that loaded the product before the invalidation cannot write
// its stale copy back. A fill delayed longer than tombstoneTTL still can.
const (
	tombstone    = "-"
	tombstoneTTL = 10 * time.Second
)

// RedisCache stores JSON-encoded products under "product:<id>".
type RedisCache struct {
	rdb    redisClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(rdb redisClient, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(id string) string { return "product:" + id }

func (c *RedisCache) Get(ctx context.Context, id string) (*Product, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("product cache get failed", zap.String("product_id", id), zap.Error(err))
		}
		return nil, false
	}
	if raw == tombstone {
		return nil, false
	}
	var p Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		c.logger.Warn("product cache entry corrupt", zap.String("product_id", id), zap.Error(err))
		return nil, false
	}
	return &p, true
}

func (c *RedisCache) Set(ctx context.Context, p *Product) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.SetNX(ctx, cacheKey(p.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("product cache set failed", zap.String("product_id", p.ID), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, ids ...string) {
	for _, id := range ids {
		if err := c.rdb.Set(ctx, cacheKey(id), tombstone, tombstoneTTL).Err(); err != nil {
			c.logger.Warn("product cache invalidate failed", zap.String("product_id", id), zap.Error(err))
		}
	}
}

// NopCache disables caching.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Product, bool) { return nil, false }
func (NopCache) Set(context.Context, *Product)                {}
func (NopCache) Invalidate(context.Context, ...string)        {}
