// Package limiter throttles authentication attempts per scope and key
// (for example per normalized email on login).
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sso/internal/common"
	"github.com/redis/go-redis/v9"
)

const (
	ScopeLogin    = "login"
	ScopeRecovery = "recovery"
)

// Limiter returns common.ErrRateLimited once key exceeds its allowance
// within the current window. Other errors mean the backend failed.
type Limiter interface {
	Allow(ctx context.Context, scope, key string) error
}

// Noop never limits.
type Noop struct{}

func (Noop) Allow(context.Context, string, string) error { return nil }

// RedisFixedWindow counts attempts with INCR and starts the window with
// EXPIRE on the first hit.
type RedisFixedWindow struct {
	redis  redis.UniversalClient
	limits map[string]int
	window time.Duration
}

// NewRedisFixedWindow builds a limiter. limits maps scope to the maximum
// attempts per window; a scope missing from limits or with a limit <= 0 is
// not limited.
func NewRedisFixedWindow(client redis.UniversalClient, window time.Duration, limits map[string]int) *RedisFixedWindow {
	copied := make(map[string]int, len(limits))
	for k, v := range limits {
		copied[k] = v
	}
	return &RedisFixedWindow{redis: client, limits: copied, window: window}
}

func (l *RedisFixedWindow) Allow(ctx context.Context, scope, key string) error {
	allowed := l.limits[scope]
	if allowed <= 0 {
		return nil
	}

	rkey := "sso:rl:" + scope + ":" + key
	count, err := l.redis.Incr(ctx, rkey).Result()
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, rkey, l.window).Err(); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	if count > int64(allowed) {
		return common.ErrRateLimited
	}
	return nil
}
