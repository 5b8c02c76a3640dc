package recoverytokens

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sso/internal/common"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "sso:recovery:used:"

// RedisLedger keeps consumed ids as SET NX keys that expire together with
// the token.
type RedisLedger struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	return &RedisLedger{client: client, now: time.Now}
}

func (l *RedisLedger) Consume(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+jti, userID, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return common.ErrTokenAlreadyUsed
	}
	return nil
}

// DeleteExpired is a no-op: keys expire on their own.
func (l *RedisLedger) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
