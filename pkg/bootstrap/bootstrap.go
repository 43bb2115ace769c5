// Package bootstrap builds the shared service graph for the HTTP server and the lambdas.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/membership-settlement/pkg/auth"
	"github.com/chris/membership-settlement/pkg/channels/chat"
	"github.com/chris/membership-settlement/pkg/channels/email"
	"github.com/chris/membership-settlement/pkg/channels/inapp"
	"github.com/chris/membership-settlement/pkg/channels/push"
	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/dispatch"
	"github.com/chris/membership-settlement/pkg/idempotency"
	"github.com/chris/membership-settlement/pkg/metrics"
	"github.com/chris/membership-settlement/pkg/reminder"
	"github.com/chris/membership-settlement/pkg/scheduler"
	"github.com/chris/membership-settlement/pkg/settlement"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/chris/membership-settlement/pkg/storage/cache"
	dydbstore "github.com/chris/membership-settlement/pkg/storage/dynamodb"
	"github.com/chris/membership-settlement/pkg/storage/memory"
	"github.com/chris/membership-settlement/pkg/websockets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// inlineSettleTimeout bounds a settlement started by the in-process scheduler.
const inlineSettleTimeout = time.Minute

// Services is the wired service graph.
type Services struct {
	Config     *config.Config
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Store      storage.Storage
	Guard      idempotency.Guard
	Hub        *websockets.Hub
	Dispatcher *dispatch.Dispatcher
	Engine     *settlement.Engine
	Runner     *reminder.Runner
	Scheduler  scheduler.Scheduler
	FeedTokens *auth.FeedTokens

	closers []func() error
}

// New wires every component from cfg. AWS clients are only created when a backend needs them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	s := &Services{Config: cfg, Logger: logger}

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.Metrics = metrics.New(s.Registry)

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	// 1. Storage.
	var dbClient *dynamodb.Client
	switch cfg.Storage {
	case "memory":
		logger.Warn("Using in-memory storage, data is lost on restart")
		s.Store = memory.New()
	default:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		dbClient = dynamodb.NewFromConfig(c)
		s.Store = dydbstore.New(dbClient, cfg.Tables)
	}

	// 2. Idempotency guard.
	switch cfg.Idempotency.Backend {
	case "memory":
		s.Guard = idempotency.NewMemoryGuard()
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Idempotency.RedisAddr, DB: cfg.Idempotency.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Idempotency.RedisAddr, err)
		}
		s.closers = append(s.closers, client.Close)
		s.Guard = idempotency.NewRedisGuard(client, cfg.Idempotency.ClaimTTL)
	default:
		if dbClient == nil {
			c, err := loadAWS()
			if err != nil {
				return nil, err
			}
			dbClient = dynamodb.NewFromConfig(c)
		}
		s.Guard = dydbstore.NewClaimGuard(dbClient, cfg.Tables.Claims, cfg.Idempotency.ClaimTTL)
	}

	// 3. Delivery channels.
	s.Hub = websockets.NewHub(logger)
	if cfg.CronSecret != "" {
		s.FeedTokens = auth.NewFeedTokens(cfg.CronSecret, cfg.FeedTokenTTL)
	}
	httpClient := &http.Client{Timeout: cfg.Reminder.ChannelTimeout}
	senders := []dispatch.Sender{
		email.New(cfg.SendGrid, cfg.IsDevelopment(), logger),
		inapp.New(s.Store, s.Hub, logger),
	}
	if cfg.OneSignal.Enabled() {
		senders = append(senders, push.New(cfg.OneSignal, httpClient))
	}
	if cfg.WhatsApp.Enabled() {
		senders = append(senders, chat.New(cfg.WhatsApp, httpClient))
	}
	s.Dispatcher = dispatch.New(cfg.Reminder.ChannelTimeout, logger, s.Metrics, senders...)

	// 4. Settlement and reminders.
	var notifier settlement.Notifier
	if cfg.Settlement.NotifyBuyer {
		notifier = &dispatch.SettlementNotifier{
			Dispatcher: s.Dispatcher,
			Profiles:   s.Store,
			Wallets:    s.Store,
			Publisher:  s.Hub,
			Links:      cfg.Links,
			Logger:     logger,
		}
	}
	s.Engine = settlement.New(s.Store, s.Guard, notifier, cfg.Settlement.FlatCommissions, logger, s.Metrics)
	s.Runner = reminder.NewRunner(cache.WrapReminderBackend(s.Store, 0, cfg.Reminder.CatalogTTL), s.Guard, s.Dispatcher, cfg.Reminder, cfg.Links, logger, s.Metrics)

	// 5. Settlement scheduling.
	if cfg.SQSQueueURL != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		s.Scheduler = scheduler.NewSQSScheduler(sqs.NewFromConfig(c), cfg.SQSQueueURL)
	} else {
		logger.Warn("SQS_QUEUE_URL not set, settling in process")
		s.Scheduler = scheduler.NewInlineScheduler(s.Engine, inlineSettleTimeout, logger)
	}

	return s, nil
}

// Close releases held connections.
func (s *Services) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
