package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard claims keys with SET NX.
type RedisGuard struct {
	Client *redis.Client
	Prefix string
	// TTL bounds how long a claim lives. Zero keeps claims forever.
	TTL time.Duration
}

// NewRedisGuard creates a RedisGuard.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{Client: client, Prefix: "claim:", TTL: ttl}
}

var _ Guard = (*RedisGuard)(nil)

func (g *RedisGuard) TryClaim(ctx context.Context, key string) (bool, error) {
	ok, err := g.Client.SetNX(ctx, g.Prefix+key, time.Now().UTC().Format(time.RFC3339), g.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s in redis: %w", key, err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.Client.Del(ctx, g.Prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release %s in redis: %w", key, err)
	}
	return nil
}
