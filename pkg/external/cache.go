package external

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cvrisk-engine/internal/domain"
)

// RedisEvaluationCache memoizes completed evaluations in Redis, keyed by the
// pipeline's content hash. Entries carry their own expiry metadata so a
// stale or corrupted entry is deleted on read instead of being served.
type RedisEvaluationCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisEvaluationCache creates a new Redis-backed evaluation cache and
// verifies connectivity.
func NewRedisEvaluationCache(config domain.CacheConfig) (*RedisEvaluationCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisEvaluationCache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// cachedEvaluation is the stored envelope around one evaluation result.
type cachedEvaluation struct {
	Result    *domain.EvaluationResult `json:"result"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// Get implements domain.EvaluationCache.
func (c *RedisEvaluationCache) Get(ctx context.Context, key string) (*domain.EvaluationResult, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get evaluation cache: %w", err)
	}

	var cached cachedEvaluation
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Corrupted entry: delete and miss.
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Result, true, nil
}

// Set implements domain.EvaluationCache.
func (c *RedisEvaluationCache) Set(ctx context.Context, key string, result *domain.EvaluationResult, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedEvaluation{
		Result:    result,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation cache entry: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl).Err()
}

// Invalidate removes one cached evaluation.
func (c *RedisEvaluationCache) Invalidate(ctx context.Context, key string) error {
	return c.redis.Del(ctx, key).Err()
}

// Close releases the Redis connection pool.
func (c *RedisEvaluationCache) Close() error {
	return c.redis.Close()
}
