// Package cache fronts the result-status override lookup with a Redis
// tier and an in-process fallback tier. Resolution still works with no
// Redis at all; the cache only shortens the lookup path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/waterlab-lims-server/internal/domain"
)

const globalScopeKey = "global"

// cachedEntry wraps an override lookup outcome so misses are cached
// alongside hits.
type cachedEntry struct {
	Override *domain.ResultStatusOverride `json:"override,omitempty"`
	Miss     bool                         `json:"miss,omitempty"`
	CachedAt time.Time                    `json:"cached_at"`
}

// OverrideCache wraps an OverrideFinder. Redis is the primary tier,
// guarded by a circuit breaker; the expirable LRU serves as the
// in-process fallback when Redis is down or the breaker is open.
type OverrideCache struct {
	next    domain.OverrideFinder
	redis   *redis.Client
	breaker *gobreaker.CircuitBreaker
	local   *expirable.LRU[string, cachedEntry]
	ttl     time.Duration
	log     *logrus.Logger
}

// New creates an override cache. config.RedisURL may be empty, in
// which case only the local tier is used.
func New(next domain.OverrideFinder, config domain.CacheConfig, logger *logrus.Logger) (*OverrideCache, error) {
	localSize := config.LocalSize
	if localSize <= 0 {
		localSize = 1024
	}
	localTTL := config.LocalTTL
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	c := &OverrideCache{
		next:  next,
		local: expirable.NewLRU[string, cachedEntry](localSize, nil, localTTL),
		ttl:   ttl,
		log:   logger,
	}

	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		if config.PoolSize > 0 {
			opts.PoolSize = config.PoolSize
		}
		if config.PoolTimeout > 0 {
			opts.PoolTimeout = config.PoolTimeout
		}
		if config.MaxRetries > 0 {
			opts.MaxRetries = config.MaxRetries
		}
		c.redis = redis.NewClient(opts)

		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "override-cache-redis",
			MaxRequests: 5,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Cache circuit breaker state changed")
			},
		})
	}
	return c, nil
}

func cacheKey(parameterID *uuid.UUID, normalizedValue string) string {
	scope := globalScopeKey
	if parameterID != nil {
		scope = parameterID.String()
	}
	return "override:" + scope + ":" + normalizedValue
}

// Find implements domain.OverrideFinder. Lookup order: Redis, local
// tier, then the wrapped finder; the outcome (hit or miss) is written
// back to both tiers.
func (c *OverrideCache) Find(ctx context.Context, parameterID *uuid.UUID, normalizedValue string) (*domain.ResultStatusOverride, error) {
	key := cacheKey(parameterID, normalizedValue)

	if entry, ok := c.redisGet(ctx, key); ok {
		return entry.result()
	}
	if entry, ok := c.local.Get(key); ok {
		return entry.result()
	}

	override, err := c.next.Find(ctx, parameterID, normalizedValue)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.store(ctx, key, cachedEntry{Miss: true, CachedAt: time.Now().UTC()})
		}
		return nil, err
	}

	c.store(ctx, key, cachedEntry{Override: override, CachedAt: time.Now().UTC()})
	return override, nil
}

// Invalidate drops the cached outcome for one scope and value. Called
// by override writers after a save or delete.
func (c *OverrideCache) Invalidate(ctx context.Context, parameterID *uuid.UUID, normalizedValue string) {
	key := cacheKey(parameterID, normalizedValue)
	c.local.Remove(key)
	if c.redis == nil {
		return
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.redis.Del(ctx, key).Err()
	})
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Warn("Failed to invalidate Redis cache entry")
	}
}

// Close releases the Redis connection
func (c *OverrideCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func (e cachedEntry) result() (*domain.ResultStatusOverride, error) {
	if e.Miss {
		return nil, fmt.Errorf("override not found: %w", domain.ErrNotFound)
	}
	return e.Override, nil
}

func (c *OverrideCache) redisGet(ctx context.Context, key string) (cachedEntry, bool) {
	if c.redis == nil {
		return cachedEntry{}, false
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.redis.Get(ctx, key).Result()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithFields(logrus.Fields{
				"key":   key,
				"error": err,
			}).Debug("Redis lookup failed, using fallback tier")
		}
		return cachedEntry{}, false
	}

	var entry cachedEntry
	if err := json.Unmarshal([]byte(raw.(string)), &entry); err != nil {
		// Corrupted entry: drop it and treat as a miss.
		c.redis.Del(ctx, key)
		return cachedEntry{}, false
	}
	return entry, true
}

func (c *OverrideCache) store(ctx context.Context, key string, entry cachedEntry) {
	c.local.Add(key, entry)
	if c.redis == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.redis.Set(ctx, key, payload, c.ttl).Err()
	})
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Debug("Failed to write Redis cache entry")
	}
}
