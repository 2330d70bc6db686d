package odds

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores the last known odds per (race, driver).
type Cache interface {
	Get(ctx context.Context, raceID, driverID string) (float64, bool)
	Set(ctx context.Context, raceID, driverID string, odds float64)
}

// MemoryCache is the default in-process cache.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]float64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]float64)}
}

func (c *MemoryCache) Get(_ context.Context, raceID, driverID string) (float64, bool) {
	c.mu.RLock()
	odds, ok := c.data[cacheKey(raceID, driverID)]
	c.mu.RUnlock()
	return odds, ok
}

func (c *MemoryCache) Set(_ context.Context, raceID, driverID string, odds float64) {
	c.mu.Lock()
	c.data[cacheKey(raceID, driverID)] = odds
	c.mu.Unlock()
}

// RedisCache shares odds across sessions through Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, raceID, driverID string) (float64, bool) {
	val, err := c.client.Get(ctx, cacheKey(raceID, driverID)).Result()
	if err != nil {
		return 0, false
	}
	odds, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return odds, true
}

func (c *RedisCache) Set(ctx context.Context, raceID, driverID string, odds float64) {
	c.client.Set(ctx, cacheKey(raceID, driverID), strconv.FormatFloat(odds, 'f', -1, 64), c.ttl)
}

func cacheKey(raceID, driverID string) string {
	return fmt.Sprintf("odds:%s:%s", raceID, driverID)
}
