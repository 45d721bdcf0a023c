package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

const (
	latestBatchKey    = "scorer:latest-batch"
	runLockKey        = "scorer:run-lock"
	latestPricePrefix = "scorer:latest-price:"
)

// ErrLockHeld is returned when another run holds the lock
var ErrLockHeld = errors.New("lock is held by another run")

// releaseScript deletes the lock only if the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Cache stores the latest scored batch and the pipeline run lock in Redis
type Cache struct {
	client   *redis.Client
	cacheTTL time.Duration
	lockTTL  time.Duration
	log      zerolog.Logger
}

// New creates a Cache on an existing client
func New(client *redis.Client, cacheTTL, lockTTL time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		client:   client,
		cacheTTL: cacheTTL,
		lockTTL:  lockTTL,
		log:      log.With().Str("module", "cache").Logger(),
	}
}

// NewClient opens a Redis client and checks it responds
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// SetLatestBatch caches the most recent scored batch
func (c *Cache) SetLatestBatch(ctx context.Context, batch *models.ScoredBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	if err := c.client.Set(ctx, latestBatchKey, data, c.cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache latest batch: %w", err)
	}
	return nil
}

// LatestBatch returns the cached batch, or nil when nothing is cached
func (c *Cache) LatestBatch(ctx context.Context) (*models.ScoredBatch, error) {
	data, err := c.client.Get(ctx, latestBatchKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest batch: %w", err)
	}

	var batch models.ScoredBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest batch: %w", err)
	}
	return &batch, nil
}

// AcquireRunLock takes the pipeline lock and returns the token needed to release it
func (c *Cache) AcquireRunLock(ctx context.Context) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, runLockKey, token, c.lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// ReleaseRunLock drops the lock if token still owns it
func (c *Cache) ReleaseRunLock(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, c.client, []string{runLockKey}, token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Memoize returns the cached value under key, or calls fn and caches its
// result. Redis failures fall through to fn and are only logged.
func Memoize[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var result T

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(cached, &result); jsonErr == nil {
			return result, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	result, err = fn()
	if err != nil {
		return result, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("failed to marshal cache entry")
		return result, nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return result, nil
}

// Invalidate removes memoized keys
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// LatestPrice returns the cached latest close of ticker, loading it with load on a miss
func (c *Cache) LatestPrice(ctx context.Context, ticker string, load func() (*models.PriceHistoryRow, error)) (*models.PriceHistoryRow, error) {
	return Memoize(ctx, c, latestPricePrefix+ticker, c.cacheTTL, load)
}

// InvalidateLatestPrices drops the cached latest close of each ticker
func (c *Cache) InvalidateLatestPrices(ctx context.Context, tickers ...string) error {
	keys := make([]string, len(tickers))
	for i, t := range tickers {
		keys[i] = latestPricePrefix + t
	}
	return c.Invalidate(ctx, keys...)
}
