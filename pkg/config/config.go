package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the process configuration. It is loaded once per invocation and passed
// explicitly to the components that need it.
type Config struct {
	Env        string `env:"APP_ENV" env-default:"production"`
	HTTPPort   string `env:"HTTP_PORT" env-default:"8080"`
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
	CronSecret string `env:"CRON_SECRET"`

	// FeedTokenTTL bounds the live feed tokens signed with CronSecret.
	FeedTokenTTL time.Duration `env:"FEED_TOKEN_TTL" env-default:"15m"`

	// Storage is one of dynamodb or memory.
	Storage     string `env:"STORAGE_BACKEND" env-default:"dynamodb"`
	Tables      Tables
	SQSQueueURL string `env:"SQS_QUEUE_URL"`

	Idempotency Idempotency
	Settlement  Settlement
	Reminder    Reminder
	Links       Links

	SendGrid  SendGridProvider
	OneSignal OneSignalProvider
	WhatsApp  WhatsAppProvider
}

// Tables holds the DynamoDB table names.
type Tables struct {
	Transactions  string `env:"DYNAMODB_TRANSACTIONS_TABLE_NAME" env-default:"transactions"`
	Entitlements  string `env:"DYNAMODB_ENTITLEMENTS_TABLE_NAME" env-default:"entitlements"`
	Commissions   string `env:"DYNAMODB_COMMISSIONS_TABLE_NAME" env-default:"commissions"`
	Wallets       string `env:"DYNAMODB_WALLETS_TABLE_NAME" env-default:"wallets"`
	Catalog       string `env:"DYNAMODB_CATALOG_TABLE_NAME" env-default:"catalog"`
	Profiles      string `env:"DYNAMODB_PROFILES_TABLE_NAME" env-default:"profiles"`
	ReminderRules string `env:"DYNAMODB_REMINDER_RULES_TABLE_NAME" env-default:"reminder_rules"`
	ReminderLogs  string `env:"DYNAMODB_REMINDER_LOGS_TABLE_NAME" env-default:"reminder_logs"`
	Notifications string `env:"DYNAMODB_NOTIFICATIONS_TABLE_NAME" env-default:"notifications"`
	Claims        string `env:"DYNAMODB_CLAIMS_TABLE_NAME" env-default:"claims"`
}

// Idempotency selects the claim backend.
type Idempotency struct {
	// Backend is one of dynamodb, redis or memory.
	Backend   string        `env:"IDEMPOTENCY_BACKEND" env-default:"dynamodb"`
	RedisAddr string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisDB   int           `env:"REDIS_DB" env-default:"0"`
	ClaimTTL  time.Duration `env:"IDEMPOTENCY_CLAIM_TTL" env-default:"0s"`
}

// Settlement configures the settlement engine.
type Settlement struct {
	// FlatCommissions maps an item label to a fixed commission, e.g.
	// "Paket Ekspor Yuk Lifetime:325000;Paket Ekspor Yuk 12 Bulan:275000".
	FlatCommissions map[string]int64 `env:"FLAT_COMMISSION_RATES" env-separator:";"`
	StuckThreshold  time.Duration    `env:"SETTLEMENT_STUCK_THRESHOLD" env-default:"20m"`
	ReconcileSpec   string           `env:"RECONCILE_CRON_SPEC" env-default:"@every 10m"`
	NotifyBuyer     bool             `env:"SETTLEMENT_NOTIFY_BUYER" env-default:"true"`
}

// Reminder configures the reminder runner.
type Reminder struct {
	DueWindow      time.Duration `env:"REMINDER_DUE_WINDOW" env-default:"15m"`
	MaxAttempts    int           `env:"REMINDER_MAX_ATTEMPTS" env-default:"3"`
	Concurrency    int           `env:"REMINDER_CONCURRENCY" env-default:"4"`
	ChannelTimeout time.Duration `env:"REMINDER_CHANNEL_TIMEOUT" env-default:"10s"`
	CronSpec       string        `env:"REMINDER_CRON_SPEC" env-default:"*/15 * * * *"`
	RunTimeout     time.Duration `env:"REMINDER_RUN_TIMEOUT" env-default:"10m"`
	CatalogTTL     time.Duration `env:"REMINDER_CATALOG_CACHE_TTL" env-default:"5m"`
}

// Links are the absolute URLs substituted into notification templates.
type Links struct {
	Dashboard string `env:"LINK_DASHBOARD" env-default:"https://app.example.com/dashboard"`
	Payment   string `env:"LINK_PAYMENT" env-default:"https://app.example.com/checkout"`
	Group     string `env:"LINK_GROUP"`
	Course    string `env:"LINK_COURSE" env-default:"https://app.example.com/courses"`
}

// DefaultFlatCommissions is used when FLAT_COMMISSION_RATES is not set.
var DefaultFlatCommissions = map[string]int64{
	"Paket Ekspor Yuk Lifetime": 325000,
	"Paket Ekspor Yuk 12 Bulan": 275000,
	"Paket Ekspor Yuk 6 Bulan":  225000,
}

// ErrMissingCronSecret is returned when no shared secret is set and APP_ENV is not
// explicitly development.
var ErrMissingCronSecret = errors.New("CRON_SECRET must be set")

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}
	if len(cfg.Settlement.FlatCommissions) == 0 {
		cfg.Settlement.FlatCommissions = DefaultFlatCommissions
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if !c.IsDevelopment() && c.CronSecret == "" {
		return ErrMissingCronSecret
	}
	switch c.Storage {
	case "dynamodb", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	switch c.Idempotency.Backend {
	case "dynamodb", "redis", "memory":
	default:
		return fmt.Errorf("unknown idempotency backend %q", c.Idempotency.Backend)
	}
	if c.Reminder.MaxAttempts < 1 {
		return errors.New("REMINDER_MAX_ATTEMPTS must be at least 1")
	}
	if c.Reminder.Concurrency < 1 {
		return errors.New("REMINDER_CONCURRENCY must be at least 1")
	}
	for _, p := range c.Providers() {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid %s provider: %w", p.Name(), err)
		}
	}
	return nil
}

// Providers returns the delivery providers that have been configured.
func (c *Config) Providers() []Provider {
	var providers []Provider
	for _, p := range []Provider{c.SendGrid, c.OneSignal, c.WhatsApp} {
		if p.Enabled() {
			providers = append(providers, p)
		}
	}
	return providers
}

// IsDevelopment reports whether APP_ENV was explicitly set to development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
