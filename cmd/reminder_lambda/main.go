package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chris/membership-settlement/pkg/bootstrap"
	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/reminder"
	"github.com/joho/godotenv"
)

// Runner is satisfied by *reminder.Runner.
type Runner interface {
	Run(ctx context.Context, now time.Time) (reminder.Summary, error)
}

// Handler runs one reminder pass per scheduled event.
type Handler struct {
	Runner  Runner
	Timeout time.Duration
	Logger  *slog.Logger
}

// HandleRequest is triggered by an EventBridge Schedule. The event time is the
// evaluation instant so a delayed invocation still evaluates the intended tick.
func (h *Handler) HandleRequest(ctx context.Context, event events.CloudWatchEvent) (reminder.Summary, error) {
	now := event.Time.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	summary, err := h.Runner.Run(ctx, now)
	if err != nil {
		h.Logger.Error("Reminder pass failed", "error", err, "at", now)
		return summary, err
	}
	h.Logger.Info("Reminder pass finished",
		"at", now,
		"rules", summary.Rules,
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

func main() {
	// Load environment variables for local testing.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	svc, err := bootstrap.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}
	handler := &Handler{Runner: svc.Runner, Timeout: cfg.Reminder.RunTimeout, Logger: logger}
	lambda.Start(handler.HandleRequest)
}
