package redis

import (
	"context"
	"testing"
	"time"

	"portal/internal/domain/service"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (service.CounterStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCounterStore(client), server
}

func TestCounterStore_LoginWindow(t *testing.T) {
	store, _ := newMiniredisStore(t)
	ctx := context.Background()
	const key = "ratelimit:login:203.0.113.5"
	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		result, err := store.Hit(ctx, key, 5, time.Minute, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, result.Allowed, "hit %d", i+1)
		assert.Equal(t, i+1, result.Count)
		assert.Zero(t, result.RetryAfter)
	}

	result, err := store.Hit(ctx, key, 5, time.Minute, start.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 5, result.Count)
	assert.Equal(t, 50*time.Second, result.RetryAfter)

	// A rejected hit is not recorded, so it does not push the window out.
	result, err = store.Hit(ctx, key, 5, time.Minute, start.Add(time.Minute-time.Millisecond))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Millisecond, result.RetryAfter)

	// The first hit leaves the window exactly one window later.
	result, err = store.Hit(ctx, key, 5, time.Minute, start.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 5, result.Count)
}

func TestCounterStore_KeysAreIndependent(t *testing.T) {
	store, server := newMiniredisStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for range 3 {
		result, err := store.Hit(ctx, "ratelimit:password_reset:198.51.100.1", 3, 15*time.Minute, now)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
	result, err := store.Hit(ctx, "ratelimit:password_reset:198.51.100.1", 3, 15*time.Minute, now)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 15*time.Minute, result.RetryAfter)

	result, err = store.Hit(ctx, "ratelimit:password_reset:198.51.100.2", 3, 15*time.Minute, now)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Count)

	members, err := server.ZMembers("ratelimit:password_reset:198.51.100.1")
	require.NoError(t, err)
	assert.Len(t, members, 3)
	assert.Positive(t, server.TTL("ratelimit:password_reset:198.51.100.1"))
}

func TestCounterStore_UnreachableServerReturnsError(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store := NewCounterStore(client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := store.Hit(ctx, "ratelimit:login:10.0.0.1", 5, time.Minute, time.Now())
	assert.Error(t, err)
	assert.Nil(t, result)
}
