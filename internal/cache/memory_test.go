package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "test-key", []byte("test-value"), time.Minute))

	got, err := store.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("test-value"), got)

	// returned slices are copies
	got[0] = 'X'
	again, err := store.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("test-value"), again)
}

func TestMemoryStore_GetMiss(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nonexistent")
	assert.Error(t, err)
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryStore_DeleteAndExists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "k"))
	ok, err = store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TTLExpiration(t *testing.T) {
	store := NewMemoryStoreWithConfig(Config{DefaultTTL: time.Hour, Prefix: "test:"})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, store.Set(ctx, "default", []byte("v"), 0))
	require.NoError(t, store.Set(ctx, "forever", []byte("v"), -1))

	now = now.Add(2 * time.Second)
	_, err := store.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
	ok, _ := store.Exists(ctx, "default")
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	ok, _ = store.Exists(ctx, "default")
	assert.False(t, ok)
	ok, _ = store.Exists(ctx, "forever")
	assert.True(t, ok)
}

func TestMemoryStore_NoDefaultTTL(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	now = now.Add(24 * 365 * time.Hour)
	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_ClearOnlyOwnPrefix(t *testing.T) {
	a := NewMemoryStoreWithConfig(Config{Prefix: "a:"})
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "one", []byte("1"), 0))
	a.data["b:other"] = memoryItem{value: []byte("2")}

	require.NoError(t, a.Clear(ctx))
	ok, _ := a.Exists(ctx, "one")
	assert.False(t, ok)
	assert.Contains(t, a.data, "b:other")
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 50; j++ {
				_ = store.Set(ctx, key, []byte{byte(j)}, time.Minute)
				_, _ = store.Get(ctx, key)
				_, _ = store.Exists(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		ok, err := store.Exists(ctx, string(rune('a'+i)))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestMemoryStore_ContextCancellation(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Set(ctx, "k", []byte("v"), 0), context.Canceled)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Delete(ctx, "k"), context.Canceled)
	assert.ErrorIs(t, store.Clear(ctx), context.Canceled)
	_, err = store.Exists(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
