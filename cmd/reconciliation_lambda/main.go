package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chris/membership-settlement/pkg/bootstrap"
	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/settlement"
	"github.com/joho/godotenv"
)

// Reconciler is satisfied by *settlement.Engine.
type Reconciler interface {
	ReconcileStuck(ctx context.Context, olderThan time.Duration) (settlement.Summary, error)
}

// Handler retries settlements that stalled after their claim was taken.
type Handler struct {
	Engine    Reconciler
	Threshold time.Duration
	Logger    *slog.Logger
}

// HandleRequest is triggered by an EventBridge Schedule.
func (h *Handler) HandleRequest(ctx context.Context) (settlement.Summary, error) {
	h.Logger.Info("Starting reconciliation of stuck transactions", "older_than", h.Threshold.String())

	summary, err := h.Engine.ReconcileStuck(ctx, h.Threshold)
	if err != nil {
		h.Logger.Error("Reconciliation failed", "error", err)
		return summary, err
	}
	if summary.Processed == 0 {
		h.Logger.Info("No stuck transactions found")
		return summary, nil
	}
	for _, msg := range summary.Errors {
		h.Logger.Warn("Transaction still unsettled", "error", msg)
	}
	h.Logger.Info("Reconciliation finished", "processed", summary.Processed, "settled", summary.Settled, "skipped", summary.Skipped, "failed", summary.Failed)
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
	handler := &Handler{Engine: svc.Engine, Threshold: cfg.Settlement.StuckThreshold, Logger: logger}
	lambda.Start(handler.HandleRequest)
}
