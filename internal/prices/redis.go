package prices

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const redisKeyPrefix = "prices:"

// RedisCache is a Redis-backed price cache. Daily close prices never
// change, so entries are stored without expiry.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) (*RedisCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisCache{client: client}, nil
}

// Get returns the cached price for key, if any.
func (c *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get price: %w", err)
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached price for %s: %w", key, err)
	}
	return price, true, nil
}

// Put stores a price for key.
func (c *RedisCache) Put(ctx context.Context, key string, price decimal.Decimal) error {
	if err := c.client.Set(ctx, redisKeyPrefix+key, price.String(), 0).Err(); err != nil {
		return fmt.Errorf("put price: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
