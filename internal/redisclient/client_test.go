package redisclient

import (
	"context"
	"testing"
	"time"

	"pos-checkout/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromRedis(rdb), mr
}

func TestCatalogCache(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.CachedProducts(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	products := []models.Product{
		{ID: "p1", Name: "Rice", SellingPrice: decimal.RequireFromString("15.50"), StockQuantity: 4},
	}
	require.NoError(t, c.CacheProducts(ctx, products, time.Minute))

	got, err := c.CachedProducts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Rice", got[0].Name)
	assert.True(t, got[0].SellingPrice.Equal(decimal.RequireFromString("15.5")))

	mr.FastForward(2 * time.Minute)
	_, err = c.CachedProducts(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss, "expired")

	require.NoError(t, c.CacheProducts(ctx, products, time.Minute))
	require.NoError(t, c.InvalidateProducts(ctx))
	_, err = c.CachedProducts(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCachedProductsInvalidJSON(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(catalogKey, "{not json"))

	_, err := c.CachedProducts(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestIdempotencyKey(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.GetIdempotencyKey(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.SetIdempotencyKey(ctx, "k1", `{"id":"s1"}`, time.Hour))
	data, err := c.GetIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"s1"}`, string(data))
	assert.True(t, mr.Exists("idempotency:k1"))
	assert.Equal(t, time.Hour, mr.TTL("idempotency:k1"))
}

func TestLockOwnership(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, "commit:k1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "commit:k1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock already held")

	released, err := c.ReleaseLock(ctx, "commit:k1", "owner-b")
	require.NoError(t, err)
	assert.False(t, released, "only the owner may release")
	assert.True(t, mr.Exists("lock:commit:k1"))

	released, err = c.ReleaseLock(ctx, "commit:k1", "owner-a")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("lock:commit:k1"))
}
