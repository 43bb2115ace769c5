package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chris/membership-settlement/pkg/idempotency"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
)

// Confirm moves a pending transaction to SUCCESS and settles it. actor is the
// admin or webhook source, recorded in the log only.
func (e *Engine) Confirm(ctx context.Context, txID, actor string) (*Outcome, error) {
	_, err := e.Store.TransitionTransaction(ctx, txID,
		[]models.TransactionStatus{models.PENDING, models.PENDING_CONFIRMATION},
		models.SUCCESS, e.Now())
	if err != nil && !errors.Is(err, storage.ErrInvalidTransition) {
		return nil, fmt.Errorf("%w: failed to confirm transaction: %v", ErrPersistenceFailed, err)
	}
	if err != nil {
		// Already SUCCESS is fine, anything else is not.
		tx, getErr := e.Store.GetTransaction(ctx, txID)
		if getErr != nil {
			if errors.Is(getErr, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
			}
			return nil, fmt.Errorf("%w: failed to load transaction: %v", ErrPersistenceFailed, getErr)
		}
		if tx.Status != models.SUCCESS {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotSettleable, txID, tx.Status)
		}
	} else {
		e.Logger.Info("Transaction confirmed", "transaction_id", txID, "actor", actor)
	}
	return e.Settle(ctx, txID)
}

// Refund marks a SUCCESS transaction as REFUNDED. Grants made at settlement stay in place.
func (e *Engine) Refund(ctx context.Context, txID string) (*models.Transaction, error) {
	tx, err := e.Store.TransitionTransaction(ctx, txID, []models.TransactionStatus{models.SUCCESS}, models.REFUNDED, e.Now())
	if err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %s cannot be refunded", ErrNotSettleable, txID)
		}
		return nil, fmt.Errorf("%w: failed to refund transaction: %v", ErrPersistenceFailed, err)
	}
	e.Logger.Info("Transaction refunded", "transaction_id", txID)
	return tx, nil
}

// Reconcile retries a transaction that is SUCCESS but was never marked settled,
// typically because a worker died after claiming it. Only call it for
// transactions older than the stuck threshold.
func (e *Engine) Reconcile(ctx context.Context, txID string) (*Outcome, error) {
	if err := e.Guard.Release(ctx, idempotency.SettlementKey(txID)); err != nil {
		return nil, fmt.Errorf("%w: failed to release stale claim: %v", ErrPersistenceFailed, err)
	}
	return e.Settle(ctx, txID)
}

// Summary reports a batch of settlements.
type Summary struct {
	Processed int           `json:"processed"`
	Settled   int           `json:"settled"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors"`
	Items     []SummaryItem `json:"items"`
}

type SummaryItem struct {
	TransactionId string        `json:"transaction_id"`
	Status        OutcomeStatus `json:"status,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// SettleBatch settles each transaction in turn. One failure never stops the batch.
func (e *Engine) SettleBatch(ctx context.Context, txIDs []string) Summary {
	summary := Summary{Errors: []string{}, Items: []SummaryItem{}}
	for _, id := range txIDs {
		summary.Processed++
		outcome, err := e.Settle(ctx, id)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", id, err))
			summary.Items = append(summary.Items, SummaryItem{TransactionId: id, Error: err.Error()})
			continue
		}
		if outcome.Status == StatusAlreadySettled {
			summary.Skipped++
		} else {
			summary.Settled++
		}
		summary.Items = append(summary.Items, SummaryItem{TransactionId: id, Status: outcome.Status})
	}
	return summary
}

// ReconcileStuck re-settles every SUCCESS transaction left unsettled for longer
// than olderThan.
func (e *Engine) ReconcileStuck(ctx context.Context, olderThan time.Duration) (Summary, error) {
	summary := Summary{Errors: []string{}, Items: []SummaryItem{}}
	stuck, err := e.Store.ListUnsettledTransactions(ctx, olderThan)
	if err != nil {
		return summary, fmt.Errorf("failed to list unsettled transactions: %w", err)
	}
	if len(stuck) == 0 {
		return summary, nil
	}
	e.Logger.Info("Reconciling stuck transactions", "count", len(stuck))

	for _, tx := range stuck {
		summary.Processed++
		outcome, err := e.Reconcile(ctx, tx.Id)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", tx.Id, err))
			summary.Items = append(summary.Items, SummaryItem{TransactionId: tx.Id, Error: err.Error()})
			continue
		}
		if outcome.Status == StatusAlreadySettled {
			summary.Skipped++
		} else {
			summary.Settled++
		}
		summary.Items = append(summary.Items, SummaryItem{TransactionId: tx.Id, Status: outcome.Status})
	}
	return summary, nil
}
