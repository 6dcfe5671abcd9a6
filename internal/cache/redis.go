package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/stocks-daily/internal/models"
)

const redisKeyPrefix = "stocks-daily:history:"

// RedisCache shares histories between service instances through Redis.
// Expiry is delegated to Redis key TTLs.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func redisKey(symbol string) string {
	return redisKeyPrefix + symbol
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (*models.PriceHistory, bool, error) {
	data, err := c.client.Get(ctx, redisKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached history for %s: %w", symbol, err)
	}

	var h models.PriceHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached history for %s: %w", symbol, err)
	}
	return &h, true, nil
}

func (c *RedisCache) Set(ctx context.Context, history *models.PriceHistory, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(history.Symbol), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache history for %s: %w", history.Symbol, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, symbol string) error {
	if err := c.client.Del(ctx, redisKey(symbol)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached history for %s: %w", symbol, err)
	}
	return nil
}

func (c *RedisCache) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cached histories: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to purge cached histories: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
