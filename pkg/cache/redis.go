package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"igprofiler/pkg/config"
)

// RedisCache stores reports in Redis with a per-key TTL.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects lazily to the configured Redis server.
func NewRedisCache(cfg config.CacheConfig) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}))
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get report from Redis: %w", err)
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store report in Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete report from Redis: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
