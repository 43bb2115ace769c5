package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisGuard(t *testing.T, ttl time.Duration) (*RedisGuard, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisGuard(client, ttl), mr
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "settlement:tx1", SettlementKey("tx1"))
	assert.Equal(t, "reminder:r1:u1", ReminderKey("r1", "u1"))
}

func exerciseGuard(t *testing.T, guard Guard) {
	ctx := context.Background()

	t.Run("Claim Once", func(t *testing.T) {
		ok, err := guard.TryClaim(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = guard.TryClaim(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Release Allows Reclaim", func(t *testing.T) {
		ok, err := guard.TryClaim(ctx, "k2")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, guard.Release(ctx, "k2"))

		ok, err = guard.TryClaim(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Concurrent Claims", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := guard.TryClaim(ctx, "k3")
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestMemoryGuard(t *testing.T) {
	exerciseGuard(t, NewMemoryGuard())
}

func TestRedisGuard(t *testing.T) {
	guard, _ := setupRedisGuard(t, 0)
	exerciseGuard(t, guard)
}

func TestRedisGuard_TTL(t *testing.T) {
	guard, mr := setupRedisGuard(t, time.Minute)
	ctx := context.Background()

	ok, err := guard.TryClaim(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("claim:k"))

	mr.FastForward(2 * time.Minute)

	ok, err = guard.TryClaim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisGuard_ServerDown(t *testing.T) {
	guard, mr := setupRedisGuard(t, 0)
	mr.Close()

	ok, err := guard.TryClaim(context.Background(), "k")

	assert.Error(t, err)
	assert.False(t, ok)
}
