package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// CacheService stores short-lived values in Redis, or in process memory
// when Redis is not available
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	memCache map[string]cacheItem
	memMutex sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// NewCacheService creates a new cache service. client may be nil.
func NewCacheService(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *CacheService {
	return &CacheService{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		memCache: make(map[string]cacheItem),
	}
}

// Get retrieves a value, returning ErrCacheMiss when there is none
func (c *CacheService) Get(ctx context.Context, key string) (string, error) {
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err == nil {
			c.hits.Add(1)
			c.logger.WithField("key", key).Debug("Cache hit (Redis)")
			return val, nil
		}
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("Redis get failed, falling back to memory cache")
		}
	}

	c.memMutex.RLock()
	item, exists := c.memCache[key]
	c.memMutex.RUnlock()

	if !exists || time.Now().After(item.expiresAt) {
		if exists {
			c.memMutex.Lock()
			delete(c.memCache, key)
			c.memMutex.Unlock()
		}
		c.misses.Add(1)
		return "", ErrCacheMiss
	}

	c.hits.Add(1)
	c.logger.WithField("key", key).Debug("Cache hit (memory)")
	return item.value, nil
}

// Set stores a value with the service's default TTL
func (c *CacheService) Set(ctx context.Context, key, value string) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value that expires after ttl
func (c *CacheService) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.client != nil {
		err := c.client.Set(ctx, key, value, ttl).Err()
		if err == nil {
			c.logger.WithFields(logrus.Fields{"key": key, "ttl": ttl.String()}).Debug("Cache set (Redis)")
			return nil
		}
		c.logger.WithError(err).WithField("key", key).Warn("Redis set failed, falling back to memory cache")
	}

	c.memMutex.Lock()
	c.memCache[key] = cacheItem{value: value, expiresAt: time.Now().Add(ttl)}
	c.memMutex.Unlock()

	c.logger.WithField("key", key).Debug("Cache set (memory)")
	return nil
}

// Delete removes a value from both stores
func (c *CacheService) Delete(ctx context.Context, key string) error {
	if c.client != nil {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Redis delete failed")
		}
	}

	c.memMutex.Lock()
	delete(c.memCache, key)
	c.memMutex.Unlock()
	return nil
}

// GetStats returns cache statistics
func (c *CacheService) GetStats() map[string]interface{} {
	c.memMutex.RLock()
	memSize := len(c.memCache)
	c.memMutex.RUnlock()

	return map[string]interface{}{
		"redis_enabled": c.client != nil,
		"memory_size":   memSize,
		"ttl":           c.ttl.String(),
		"hits":          c.hits.Load(),
		"misses":        c.misses.Load(),
	}
}

// Health returns cache service health status
func (c *CacheService) Health() map[string]interface{} {
	health := map[string]interface{}{
		"memory": map[string]interface{}{"status": "healthy"},
	}

	if c.client == nil {
		health["redis"] = map[string]interface{}{"status": "disabled"}
		return health
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["redis"] = map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		}
	} else {
		health["redis"] = map[string]interface{}{"status": "healthy"}
	}
	return health
}

// cleanupExpired removes expired items from the memory cache
func (c *CacheService) cleanupExpired() int {
	c.memMutex.Lock()
	defer c.memMutex.Unlock()

	now := time.Now()
	removed := 0
	for key, item := range c.memCache {
		if now.After(item.expiresAt) {
			delete(c.memCache, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine evicts expired memory entries every interval until
// ctx is done
func (c *CacheService) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.cleanupExpired(); removed > 0 {
					c.logger.WithField("removed", removed).Debug("Expired cache entries evicted")
				}
			}
		}
	}()
}
