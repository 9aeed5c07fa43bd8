package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-rental/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	carKeyPrefix    = "car:"
	DefaultCacheTTL = 5 * time.Minute
)

// RedisCarCache keeps serialized cars in Redis for read-through lookups.
type RedisCarCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCarCache(client *redis.Client, ttl time.Duration) *RedisCarCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCarCache{Client: client, TTL: ttl}
}

// GetCar returns nil, nil on a cache miss.
func (c *RedisCarCache) GetCar(ctx context.Context, id string) (*models.Car, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	raw, err := c.Client.Get(ctx, carKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get car %s from Redis: %w", id, err)
	}

	var car models.Car
	if err := json.Unmarshal(raw, &car); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached car %s: %w", id, err)
	}
	return &car, nil
}

func (c *RedisCarCache) SetCar(ctx context.Context, car *models.Car) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	raw, err := json.Marshal(car)
	if err != nil {
		return fmt.Errorf("failed to marshal car %s: %w", car.ID, err)
	}
	if err := c.Client.Set(ctx, carKeyPrefix+car.ID, raw, c.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store car %s in Redis: %w", car.ID, err)
	}
	return nil
}

func (c *RedisCarCache) Invalidate(ctx context.Context, ids ...string) error {
	if c.Client == nil || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = carKeyPrefix + id
	}
	return c.Client.Del(ctx, keys...).Err()
}
