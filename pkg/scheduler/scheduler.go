package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/chris/membership-settlement/pkg/settlement"
)

// Scheduler defines the interface for a component that queues a transaction for settlement.
type Scheduler interface {
	// ScheduleSettlement enqueues a settlement attempt after delay.
	ScheduleSettlement(ctx context.Context, txID string, delay time.Duration) error
}

// SettlementMessage is the queue payload consumed by the settlement worker.
type SettlementMessage struct {
	TransactionId string `json:"transaction_id"`
}

// Settler is satisfied by *settlement.Engine.
type Settler interface {
	Settle(ctx context.Context, txID string) (*settlement.Outcome, error)
}

// InlineScheduler settles in-process on a background goroutine. It backs local
// runs that have no queue.
type InlineScheduler struct {
	Engine  Settler
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewInlineScheduler creates an InlineScheduler.
func NewInlineScheduler(engine Settler, timeout time.Duration, logger *slog.Logger) *InlineScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineScheduler{Engine: engine, Timeout: timeout, Logger: logger}
}

var _ Scheduler = (*InlineScheduler)(nil)

// ScheduleSettlement returns immediately; the settlement outlives the caller's context.
func (s *InlineScheduler) ScheduleSettlement(_ context.Context, txID string, delay time.Duration) error {
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		defer cancel()
		outcome, err := s.Engine.Settle(ctx, txID)
		if err != nil {
			s.Logger.Error("Inline settlement failed", "transaction_id", txID, "error", err)
			return
		}
		s.Logger.Info("Inline settlement finished", "transaction_id", txID, "status", outcome.Status)
	}()
	return nil
}
