// Package ratelimit implements a fixed-window counter over redis. The
// limiter fails open: availability of the recommendation path takes
// priority over strict throttling.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Decision struct {
	Allowed           bool
	Limit             int
	Remaining         int
	RetryAfterSeconds int
}

type Limiter struct {
	rdb     redis.Cmdable
	enabled bool
}

func New(rdb redis.Cmdable, enabled bool) *Limiter {
	return &Limiter{rdb: rdb, enabled: enabled}
}

func allowAll(limit int) Decision {
	return Decision{Allowed: true, Limit: limit, Remaining: limit}
}

// Check increments the window counter for (namespace, actor) and compares
// it against the limit. The first increment of a new window sets the
// expiry. Store errors, a nil client, a disabled limiter and a
// non-positive limit all mean always-allowed.
func (l *Limiter) Check(ctx context.Context, namespace, actor string, limit int, window time.Duration) Decision {
	if !l.enabled || limit <= 0 || l.rdb == nil {
		return allowAll(limit)
	}
	key := fmt.Sprintf("rate:ai-service:%s:%s", namespace, actor)
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		logutil.GetLogger(ctx).Warn("rate limit incr failed, allowing", zap.String("key", key), zap.Error(err))
		return allowAll(limit)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			logutil.GetLogger(ctx).Warn("rate limit expire failed", zap.String("key", key), zap.Error(err))
		}
	}
	retryAfter := int(window / time.Second)
	if ttl, err := l.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		retryAfter = int(ttl / time.Second)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:           int(count) <= limit,
		Limit:             limit,
		Remaining:         remaining,
		RetryAfterSeconds: retryAfter,
	}
}
