package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hierroutes/internal/web/auth"
	"github.com/conduit-lang/hierroutes/internal/web/response"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTokenBucket(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tb := NewTokenBucket(TokenBucketConfig{Capacity: 2, Window: time.Minute})
	defer tb.Close()
	tb.now = c.now
	ctx := context.Background()

	d, err := tb.Allow(ctx, "sub:alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, 2, d.Limit)

	d, _ = tb.Allow(ctx, "sub:alice")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = tb.Allow(ctx, "sub:alice")
	assert.False(t, d.Allowed)
	assert.Equal(t, c.t.Add(time.Minute), d.ResetAt)

	d, _ = tb.Allow(ctx, "sub:bob")
	assert.True(t, d.Allowed, "buckets are per key")

	c.t = c.t.Add(30 * time.Second)
	d, _ = tb.Allow(ctx, "sub:alice")
	assert.True(t, d.Allowed, "half a window refills half the capacity")
	assert.Equal(t, 0, d.Remaining)

	c.t = c.t.Add(10 * time.Minute)
	tb.dropIdle()
	tb.mu.Lock()
	assert.Empty(t, tb.buckets)
	tb.mu.Unlock()

	assert.NoError(t, tb.Close())
	assert.NoError(t, tb.Close())
}

func newRedisLimiter(t *testing.T, limit int) (*RedisLimiter, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewRedisLimiter(RedisLimiterConfig{
		Client: client,
		Limit:  limit,
		Window: time.Minute,
		Prefix: "hierarchicalroutes:ratelimit:",
	})
	require.NoError(t, err)
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.now = c.now
	return l, c
}

func TestNewRedisLimiter_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config RedisLimiterConfig
		want   string
	}{
		{"nil client", RedisLimiterConfig{Limit: 1, Window: time.Minute}, "redis client is required"},
		{"zero limit", RedisLimiterConfig{Client: &redis.Client{}, Window: time.Minute}, "limit must be greater than 0"},
		{"zero window", RedisLimiterConfig{Client: &redis.Client{}, Limit: 1}, "window must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedisLimiter(tt.config)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestRedisLimiter(t *testing.T) {
	l, c := newRedisLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "sub:alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
		c.t = c.t.Add(time.Second)
	}

	d, err := l.Allow(ctx, "sub:alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	n, err := l.Count(ctx, "sub:alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c.t = c.t.Add(2 * time.Minute)
	d, err = l.Allow(ctx, "sub:alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "entries outside the window are trimmed")

	require.NoError(t, l.Reset(ctx, "sub:alice"))
	n, err = l.Count(ctx, "sub:alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisLimiter_SameInstant(t *testing.T) {
	l, _ := newRedisLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
	}
	d, err := l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*Decision, error) {
	return nil, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	tb := NewTokenBucket(TokenBucketConfig{Capacity: 1, Window: time.Minute})
	defer tb.Close()

	h := Middleware(tb, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/_hierarchy/rebuild", nil)
	req.RemoteAddr = "10.0.0.1:4000"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "1", w.Header().Get(HeaderLimit))
	assert.Equal(t, "0", w.Header().Get(HeaderRemaining))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, response.CodeTooManyRequests, body.Error.Code)
	assert.Equal(t, "/_hierarchy/rebuild", body.Path)

	other := httptest.NewRequest(http.MethodPost, "/_hierarchy/rebuild", nil)
	other.RemoteAddr = "10.0.0.2:4000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, other)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	h := Middleware(failingLimiter{}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get(HeaderLimit))
}

func TestSubjectKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51000"
	assert.Equal(t, "ip:192.0.2.7", SubjectKey(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "ip:pipe", SubjectKey(req))

	claims := &auth.Claims{}
	claims.Subject = "alice"
	req = req.WithContext(auth.WithClaims(req.Context(), claims))
	assert.Equal(t, "sub:alice", SubjectKey(req))
}
