package utils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/bbsboard/models"
)

func TestListCacheWithoutRedis(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*ListCache{nil, NewListCache(nil, time.Minute, nil)} {
		_, ok := c.Generation(ctx, 1)
		assert.False(t, ok)
		c.Set(ctx, 1, 0, []models.Board{{No: 1}})
		_, ok = c.Get(ctx, 1)
		assert.False(t, ok)
		c.Invalidate(ctx, 1)
	}
}

// Needs a disposable Redis, e.g. REDIS_TEST_ADDR=127.0.0.1:6379.
func TestListCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rc := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err())

	c := NewListCache(rc, time.Minute, nil)
	c.Invalidate(ctx, 91)

	_, ok := c.Get(ctx, 91)
	require.False(t, ok)

	gen, ok := c.Generation(ctx, 91)
	require.True(t, ok)
	boards := []models.Board{{No: 3, Category: 91, Title: "t", WriterNo: 5, Writer: models.Member{No: 5}}}
	c.Set(ctx, 91, gen, boards)

	got, ok := c.Get(ctx, 91)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "t", got[0].Title)
	assert.Equal(t, uint(5), got[0].WriterNo)

	c.Invalidate(ctx, 91)
	_, ok = c.Get(ctx, 91)
	assert.False(t, ok)
}

func TestListCacheRejectsListReadBeforeInvalidate(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rc := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err())

	c := NewListCache(rc, time.Minute, nil)
	c.Invalidate(ctx, 92)

	gen, ok := c.Generation(ctx, 92)
	require.True(t, ok)
	// a writer commits and invalidates between the store read and Set
	c.Invalidate(ctx, 92)
	c.Set(ctx, 92, gen, []models.Board{})

	_, ok = c.Get(ctx, 92)
	assert.False(t, ok)

	fresh, ok := c.Generation(ctx, 92)
	require.True(t, ok)
	assert.Equal(t, gen+1, fresh)
	c.Set(ctx, 92, fresh, []models.Board{{No: 1}})
	got, ok := c.Get(ctx, 92)
	require.True(t, ok)
	assert.Len(t, got, 1)
	c.Invalidate(ctx, 92)
}
