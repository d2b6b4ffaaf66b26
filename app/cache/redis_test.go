package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewCache(context.Background(), mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c, mr
}

func TestGenerateListKey(t *testing.T) {
	a := GenerateListKey(0, "Forum", "US", 100)
	assert.Equal(t, a, GenerateListKey(0, "forum", "us", 100), "key should ignore case")
	assert.NotEqual(t, a, GenerateListKey(0, "Forum", "US", 10))
	assert.NotEqual(t, a, GenerateListKey(0, "Forum", "IN", 100))
	assert.NotEqual(t, a, GenerateListKey(1, "Forum", "US", 100))
	assert.True(t, strings.HasPrefix(a, "workflows:"))
}

func TestListKeyFollowsGeneration(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute)

	before, err := c.ListKey(ctx, "Forum", "US", 100)
	require.NoError(t, err)
	assert.Equal(t, GenerateListKey(0, "Forum", "US", 100), before)

	require.NoError(t, c.Invalidate(ctx))

	after, err := c.ListKey(ctx, "Forum", "US", 100)
	require.NoError(t, err)
	assert.Equal(t, GenerateListKey(1, "Forum", "US", 100), after)
}

func TestNewCacheUnreachable(t *testing.T) {
	_, err := NewCache(context.Background(), "127.0.0.1:1", time.Minute)
	assert.Error(t, err)
}

func TestListRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)

	key, err := c.ListKey(ctx, "", "", 100)
	require.NoError(t, err)
	_, hit, err := c.GetList(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetList(ctx, key, []byte(`[{"workflow":"a"}]`)))

	payload, hit, err := c.GetList(ctx, key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `[{"workflow":"a"}]`, string(payload))

	mr.FastForward(2 * time.Minute)
	_, hit, err = c.GetList(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit, "entry should expire after ttl")
}

func TestSetListDisabledTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, 0)

	require.NoError(t, c.SetList(ctx, "workflows:x", []byte("[]")))
	assert.False(t, mr.Exists("workflows:x"))
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)

	for _, limit := range []int{1, 2, 3, 4, 5} {
		key, err := c.ListKey(ctx, "", "", limit)
		require.NoError(t, err)
		require.NoError(t, c.SetList(ctx, key, []byte("[]")))
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, c.Invalidate(ctx))

	assert.Equal(t, []string{"unrelated", generationKey}, mr.Keys())
}

func TestInvalidateSupersedesInFlightRead(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute)

	// A read misses, a collection run invalidates, then the read stores
	// the payload it loaded before the run.
	staleKey, err := c.ListKey(ctx, "", "", 100)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.SetList(ctx, staleKey, []byte(`[{"workflow":"old"}]`)))

	key, err := c.ListKey(ctx, "", "", 100)
	require.NoError(t, err)
	_, hit, err := c.GetList(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit, "reads after invalidation must not see the stale payload")
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)

	health := c.Health(ctx)
	assert.Equal(t, "healthy", health["status"])

	mr.Close()
	health = c.Health(ctx)
	assert.Equal(t, "unhealthy", health["status"])
	assert.NotEmpty(t, health["error"])
}
