package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

// setupTestRedis starts a Redis container and returns a connected client
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	client, err := NewClient(ctx, endpoint, "", 0)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := setupTestRedis(t)
	c := New(client, time.Minute, time.Minute, zerolog.Nop())
	ctx := context.Background()

	t.Run("LatestBatch returns nil when empty", func(t *testing.T) {
		require.NoError(t, client.FlushDB(ctx).Err())

		batch, err := c.LatestBatch(ctx)
		require.NoError(t, err)
		assert.Nil(t, batch)
	})

	t.Run("SetLatestBatch round trips", func(t *testing.T) {
		require.NoError(t, client.FlushDB(ctx).Err())

		batch := &models.ScoredBatch{
			RunID:  "run-1",
			Status: models.StatusScored,
			Companies: []models.ScoredCompany{
				{CompanyRecord: models.CompanyRecord{Ticker: "AIR"}, Score: 0.66, Risk: 0.1},
			},
		}
		require.NoError(t, c.SetLatestBatch(ctx, batch))

		got, err := c.LatestBatch(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, []string{"AIR"}, got.Tickers())
		assert.InDelta(t, 0.66, got.Companies[0].Score, 1e-12)
	})

	t.Run("run lock rejects a second holder", func(t *testing.T) {
		require.NoError(t, client.FlushDB(ctx).Err())

		token, err := c.AcquireRunLock(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		_, err = c.AcquireRunLock(ctx)
		assert.ErrorIs(t, err, ErrLockHeld)

		// a stale token cannot release someone else's lock
		require.NoError(t, c.ReleaseRunLock(ctx, "stale"))
		_, err = c.AcquireRunLock(ctx)
		assert.ErrorIs(t, err, ErrLockHeld)

		require.NoError(t, c.ReleaseRunLock(ctx, token))
		_, err = c.AcquireRunLock(ctx)
		assert.NoError(t, err)
	})

	t.Run("Memoize calls fn once", func(t *testing.T) {
		require.NoError(t, client.FlushDB(ctx).Err())

		calls := 0
		fn := func() ([]string, error) {
			calls++
			return []string{"AIR", "FPH"}, nil
		}

		for i := 0; i < 3; i++ {
			got, err := Memoize(ctx, c, "scorer:tickers", time.Minute, fn)
			require.NoError(t, err)
			assert.Equal(t, []string{"AIR", "FPH"}, got)
		}
		assert.Equal(t, 1, calls)

		require.NoError(t, c.Invalidate(ctx, "scorer:tickers"))
		_, err := Memoize(ctx, c, "scorer:tickers", time.Minute, fn)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("Memoize does not cache errors", func(t *testing.T) {
		require.NoError(t, client.FlushDB(ctx).Err())

		boom := errors.New("boom")
		_, err := Memoize(ctx, c, "scorer:broken", time.Minute, func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)

		exists, err := client.Exists(ctx, "scorer:broken").Result()
		require.NoError(t, err)
		assert.Zero(t, exists)
	})

	t.Run("LatestPrice loads once until invalidated", func(t *testing.T) {
		require.NoError(t, client.FlushDB(ctx).Err())

		loads := 0
		last := decimal.RequireFromString("2.85")
		load := func() (*models.PriceHistoryRow, error) {
			loads++
			return &models.PriceHistoryRow{Ticker: "AIR", Last: last}, nil
		}

		for i := 0; i < 2; i++ {
			got, err := c.LatestPrice(ctx, "AIR", load)
			require.NoError(t, err)
			assert.True(t, last.Equal(got.Last))
		}
		assert.Equal(t, 1, loads)

		require.NoError(t, c.InvalidateLatestPrices(ctx, "AIR", "FPH"))
		last = decimal.RequireFromString("2.90")
		got, err := c.LatestPrice(ctx, "AIR", load)
		require.NoError(t, err)
		assert.Equal(t, 2, loads)
		assert.True(t, last.Equal(got.Last))
	})

	t.Run("Memoize falls through when redis is unreachable", func(t *testing.T) {
		down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer down.Close()
		offline := New(down, time.Minute, time.Minute, zerolog.Nop())

		got, err := Memoize(ctx, offline, "scorer:offline", time.Minute, func() (int, error) { return 7, nil })
		require.NoError(t, err)
		assert.Equal(t, 7, got)
	})
}
