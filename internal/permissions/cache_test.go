package permissions_test

import (
	"context"
	"testing"
	"time"

	"authgate/internal/permissions"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*permissions.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return permissions.NewCache(client, ttl), mr
}

func testClosure(userID, slug string) *permissions.Closure {
	return &permissions.Closure{
		UserID:     userID,
		TenantSlug: slug,
		Modules: []permissions.ModuleGrant{
			{Key: "TENANTS", Operations: []string{"CREATE", "READ"}},
		},
		ResolvedAt: time.Now().Truncate(time.Second),
	}
}

func TestCacheSetGet(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	closure := testClosure("user-1", "acme")
	require.NoError(t, cache.Set(ctx, closure))

	got, err := cache.Get(ctx, "user-1", "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, closure.UserID, got.UserID)
	assert.Equal(t, closure.Modules, got.Modules)
}

func TestCacheMiss(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)

	got, err := cache.Get(context.Background(), "nobody", "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheEntryExpires(t *testing.T) {
	cache, mr := setupTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testClosure("user-1", "acme")))

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "user-1", "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testClosure("user-1", "acme")))
	require.NoError(t, cache.Invalidate(ctx, "user-1", "acme"))

	got, err := cache.Get(ctx, "user-1", "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheInvalidateUserAllSlugs(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testClosure("user-1", "acme")))
	require.NoError(t, cache.Set(ctx, testClosure("user-1", "globex")))
	require.NoError(t, cache.Set(ctx, testClosure("user-2", "acme")))

	require.NoError(t, cache.InvalidateUser(ctx, "user-1"))

	got, err := cache.Get(ctx, "user-1", "acme")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = cache.Get(ctx, "user-1", "globex")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Other users are untouched
	got, err = cache.Get(ctx, "user-2", "acme")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestCacheCorruptEntryDropped(t *testing.T) {
	cache, mr := setupTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, mr.Set("permclosure:user-1:acme", "{not json"))

	_, err := cache.Get(ctx, "user-1", "acme")
	assert.Error(t, err)

	// The bad entry was deleted, not left to fail again
	assert.False(t, mr.Exists("permclosure:user-1:acme"))
}

func TestNilCacheIsSafe(t *testing.T) {
	var cache *permissions.Cache
	ctx := context.Background()

	got, err := cache.Get(ctx, "user-1", "acme")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, cache.Set(ctx, testClosure("user-1", "acme")))
	assert.NoError(t, cache.Invalidate(ctx, "user-1", "acme"))
	assert.NoError(t, cache.InvalidateUser(ctx, "user-1"))
}
