package market

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNonceCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	cache := NewMemoryNonceCache()
	cache.now = func() time.Time { return now }

	fresh, err := cache.Claim(ctx, "0xA", "n", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = cache.Claim(ctx, "0xA", "n", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	now = now.Add(2 * time.Minute)
	fresh, err = cache.Claim(ctx, "0xA", "n", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Len(t, cache.seen, 1)
}

// Set MARKET_TEST_REDIS_URL to run against a live redis.
func TestRedisNonceCache(t *testing.T) {
	url := os.Getenv("MARKET_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MARKET_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	cache := NewRedisNonceCache(ledger.NewRedisPool(url, os.Getenv("MARKET_TEST_REDIS_PASSWORD")), "MARKET_TEST:"+uuid.NewString()+":")
	defer cache.Close()

	fresh, err := cache.Claim(ctx, "0xA", "n", 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = cache.Claim(ctx, "0xA", "n", 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = cache.Claim(ctx, "0xB", "n", 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, fresh)

	time.Sleep(400 * time.Millisecond)
	fresh, err = cache.Claim(ctx, "0xA", "n", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}
