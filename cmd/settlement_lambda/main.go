package main

import (
	"context"
	"errors"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chris/membership-settlement/pkg/bootstrap"
	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/scheduler"
	"github.com/chris/membership-settlement/pkg/settlement"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file (useful for local testing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	// Dependencies are built once per container.
	svc, err := bootstrap.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}
	handler := &Handler{Engine: svc.Engine, Logger: logger}
	lambda.Start(handler.HandleRequest)
}

// Handler settles the transactions named by queued messages.
type Handler struct {
	Engine scheduler.Settler
	Logger *slog.Logger
}

// HandleRequest processes SQS messages and reports the ones to retry. Duplicates
// and permanently bad messages are acknowledged so they do not loop.
func (h *Handler) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, message := range sqsEvent.Records {
		logger := h.Logger.With("message_id", message.MessageId)

		txID, err := scheduler.ParseSettlementMessage(message.Body)
		if err != nil {
			logger.Error("Dropping malformed settlement message", "error", err)
			continue
		}
		logger = logger.With("transaction_id", txID)

		outcome, err := h.Engine.Settle(ctx, txID)
		switch {
		case err == nil:
			logger.Info("Settlement processed", "status", outcome.Status)
		case errors.Is(err, settlement.ErrTransactionNotFound), errors.Is(err, settlement.ErrNotSettleable):
			logger.Warn("Dropping settlement message", "error", err)
		default:
			logger.Error("Settlement failed, will retry", "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: message.MessageId})
		}
	}
	return resp, nil
}
