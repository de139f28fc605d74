package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/domain"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T, opts ...RedisOption) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, opts...), mr
}

func sampleCart() domain.CartSnapshot {
	return domain.NewCartSnapshot([]domain.CartLineItem{
		{ID: "A", Name: "Mug", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
		{ID: "B", Name: "Cap", UnitPrice: decimal.RequireFromString("7.25"), Quantity: 1},
	})
}

func TestSetThenGet(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "user123", sampleCart()))

	got, err := c.Get(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "A", got.Items[0].ID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("32.25").Equal(got.TotalAmount))
	assert.True(t, got.Consistent())
}

func TestGet_CacheMiss(t *testing.T) {
	c, _ := setupTestRedis(t)
	_, err := c.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_InvalidJSON(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(c.key("user123"), `{"cartItems":[`))

	_, err := c.Get(context.Background(), "user123")
	require.ErrorContains(t, err, "unmarshal cached cart")
}

func TestSet_WithTTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, c.Set(context.Background(), "user789", domain.NewCartSnapshot(nil)))

	ttl := mr.TTL(c.key("user789"))
	assert.True(t, ttl >= DefaultTTL, "TTL should be at least base TTL")
	assert.True(t, ttl < DefaultTTL+DefaultJitter, "TTL should be below base + max jitter")
}

func TestSet_ConfiguredTTL(t *testing.T) {
	c, mr := setupTestRedis(t, WithTTL(2*time.Hour, 0))
	require.NoError(t, c.Set(context.Background(), "u1", sampleCart()))
	assert.Equal(t, 2*time.Hour, mr.TTL(c.key("u1")))

	c, mr = setupTestRedis(t, WithTTL(time.Minute, 30*time.Second))
	for i := 0; i < 20; i++ {
		require.NoError(t, c.Set(context.Background(), "u2", sampleCart()))
		ttl := mr.TTL(c.key("u2"))
		assert.GreaterOrEqual(t, ttl, time.Minute)
		assert.Less(t, ttl, 90*time.Second)
	}
}

func TestDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "user999", sampleCart()))
	assert.True(t, mr.Exists(c.key("user999")))

	require.NoError(t, c.Delete(ctx, "user999"))
	assert.False(t, mr.Exists(c.key("user999")))

	// deleting a missing key is not an error
	assert.NoError(t, c.Delete(ctx, "nonexistent"))
}

func TestKeyPrefix(t *testing.T) {
	c, mr := setupTestRedis(t)
	assert.Equal(t, "storefront:cart:test123", c.key("test123"))

	scoped, _ := setupTestRedis(t, WithKeyPrefix("tenant-a:cart:"))
	assert.Equal(t, "tenant-a:cart:test123", scoped.key("test123"))

	require.NoError(t, c.Set(context.Background(), "test123", sampleCart()))
	assert.Equal(t, []string{"storefront:cart:test123"}, mr.Keys())
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, err := c.Get(ctx, "u")
	assert.ErrorIs(t, err, ErrCacheMiss)

	cart := sampleCart()
	require.NoError(t, c.Set(ctx, "u", cart))
	cart.Items[0].Quantity = 99

	got, err := c.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Items[0].Quantity)

	require.NoError(t, c.Delete(ctx, "u"))
	_, err = c.Get(ctx, "u")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
