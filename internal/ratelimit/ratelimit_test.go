package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, true), mr
}

func TestCheckFixedWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	var allowed []bool
	var last Decision
	for i := 0; i < 4; i++ {
		last = limiter.Check(ctx, "rank", "user:1", 3, time.Minute)
		allowed = append(allowed, last.Allowed)
	}
	require.Equal(t, []bool{true, true, true, false}, allowed)
	require.Equal(t, 0, last.Remaining)
	require.Greater(t, last.RetryAfterSeconds, 0)
}

func TestCheckWindowExpiryResets(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Check(ctx, "rank", "user:1", 3, time.Minute)
	}
	require.False(t, limiter.Check(ctx, "rank", "user:1", 3, time.Minute).Allowed)

	mr.FastForward(61 * time.Second)
	dec := limiter.Check(ctx, "rank", "user:1", 3, time.Minute)
	require.True(t, dec.Allowed)
	require.Equal(t, 2, dec.Remaining)
}

func TestCheckActorsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Check(ctx, "rank", "user:1", 3, time.Minute)
	}
	require.False(t, limiter.Check(ctx, "rank", "user:1", 3, time.Minute).Allowed)
	require.True(t, limiter.Check(ctx, "rank", "user:2", 3, time.Minute).Allowed)
	require.True(t, limiter.Check(ctx, "statement", "user:1", 3, time.Minute).Allowed)
}

func TestCheckFailsOpen(t *testing.T) {
	ctx := context.Background()

	require.True(t, New(nil, true).Check(ctx, "rank", "u", 3, time.Minute).Allowed)
	require.True(t, New(nil, false).Check(ctx, "rank", "u", 3, time.Minute).Allowed)

	limiter, _ := newTestLimiter(t)
	require.True(t, limiter.Check(ctx, "rank", "u", 0, time.Minute).Allowed)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()
	dec := New(client, true).Check(ctx, "rank", "u", 3, time.Minute)
	require.True(t, dec.Allowed)
	require.Equal(t, 3, dec.Remaining)
}
