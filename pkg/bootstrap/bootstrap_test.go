package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/idempotency"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig() *config.Config {
	return &config.Config{
		Env:         "development",
		Storage:     "memory",
		Idempotency: config.Idempotency{Backend: "memory"},
		Settlement:  config.Settlement{FlatCommissions: config.DefaultFlatCommissions, NotifyBuyer: true},
		Reminder:    config.Reminder{DueWindow: 15 * time.Minute, MaxAttempts: 3, Concurrency: 2, ChannelTimeout: time.Second},
	}
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Local", func(t *testing.T) {
		s, err := New(context.Background(), localConfig(), logger)
		require.NoError(t, err)
		defer s.Close()

		assert.IsType(t, &idempotency.MemoryGuard{}, s.Guard)
		assert.IsType(t, &scheduler.InlineScheduler{}, s.Scheduler)
		assert.True(t, s.Dispatcher.Supports(models.ChannelEmail))
		assert.True(t, s.Dispatcher.Supports(models.ChannelInApp))
		assert.False(t, s.Dispatcher.Supports(models.ChannelPush))
		assert.False(t, s.Dispatcher.Supports(models.ChannelChat))
		assert.NotNil(t, s.Engine.Notifier)
		assert.Nil(t, s.FeedTokens)

		families, err := s.Registry.Gather()
		require.NoError(t, err)
		assert.NotEmpty(t, families)
	})

	t.Run("Secret Enables Feed Tokens", func(t *testing.T) {
		cfg := localConfig()
		cfg.CronSecret = "s3cret"

		s, err := New(context.Background(), cfg, logger)
		require.NoError(t, err)

		require.NotNil(t, s.FeedTokens)
		token, _, err := s.FeedTokens.Issue("u1")
		require.NoError(t, err)
		userID, err := s.FeedTokens.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
	})

	t.Run("Providers Enabled", func(t *testing.T) {
		cfg := localConfig()
		cfg.OneSignal = config.OneSignalProvider{AppID: "app", APIKey: "key", BaseURL: "https://onesignal.example.com"}
		cfg.WhatsApp = config.WhatsAppProvider{BaseURL: "https://wa.example.com", Token: "t", RatePerSecond: 1, Burst: 1}
		cfg.Settlement.NotifyBuyer = false

		s, err := New(context.Background(), cfg, logger)
		require.NoError(t, err)

		assert.True(t, s.Dispatcher.Supports(models.ChannelPush))
		assert.True(t, s.Dispatcher.Supports(models.ChannelChat))
		assert.Nil(t, s.Engine.Notifier)
	})

	t.Run("Redis Guard", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := localConfig()
		cfg.Idempotency = config.Idempotency{Backend: "redis", RedisAddr: mr.Addr()}

		s, err := New(context.Background(), cfg, logger)
		require.NoError(t, err)
		defer s.Close()

		require.IsType(t, &idempotency.RedisGuard{}, s.Guard)
		claimed, err := s.Guard.TryClaim(context.Background(), idempotency.SettlementKey("tx-1"))
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.True(t, mr.Exists("claim:"+idempotency.SettlementKey("tx-1")))
	})

	t.Run("Redis Unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg := localConfig()
		cfg.Idempotency = config.Idempotency{Backend: "redis", RedisAddr: addr}

		_, err := New(context.Background(), cfg, logger)

		assert.ErrorContains(t, err, "failed to connect to redis")
	})
}
