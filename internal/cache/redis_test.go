package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, DefaultConfig())
	t.Cleanup(func() {
		_ = store.Close()
		mr.Close()
	})
	return store, mr
}

func TestNewRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()

	store, err := NewRedisStore(context.Background(), config)
	require.NoError(t, err)
	defer store.Close()
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	config := DefaultRedisConfig()
	config.Addr = "localhost:99999" // invalid port

	_, err := NewRedisStore(context.Background(), config)
	assert.Error(t, err)
}

func TestRedisStore_SetAndGet(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "test-key", []byte("test-value"), time.Minute))

	got, err := store.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("test-value"), got)
	assert.True(t, mr.Exists("hierarchicalroutes:test-key"))
}

func TestRedisStore_GetMiss(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.Get(context.Background(), "nonexistent")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, store.Set(ctx, "forever", []byte("v"), 0))

	assert.Equal(t, time.Second, mr.TTL("hierarchicalroutes:short"))
	assert.Zero(t, mr.TTL("hierarchicalroutes:forever"))

	mr.FastForward(2 * time.Second)
	ok, err := store.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_DeleteAndClear(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, store.Delete(ctx, "a"))
	ok, _ := store.Exists(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, store.Clear(ctx))
	ok, _ = store.Exists(ctx, "b")
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}
