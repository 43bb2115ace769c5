// Package settlement turns a confirmed payment into access grants and an affiliate
// commission, exactly once per transaction.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/membership-settlement/pkg/idempotency"
	"github.com/chris/membership-settlement/pkg/metrics"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotSettleable       = errors.New("transaction is not in SUCCESS status")
	ErrItemNotFound        = errors.New("catalog item not found")
	ErrAlreadySettled      = errors.New("transaction already settled")
	ErrNotificationFailed  = errors.New("settlement notification failed")
	ErrPersistenceFailed   = errors.New("settlement persistence failed")
)

// maxWriteAttempts bounds the optimistic retry loop on a membership window.
const maxWriteAttempts = 3

type OutcomeStatus string

const (
	StatusSettled        OutcomeStatus = "SETTLED"
	StatusAlreadySettled OutcomeStatus = "ALREADY_SETTLED"
)

// Outcome describes what a Settle call did.
type Outcome struct {
	TransactionId      string                  `json:"transaction_id"`
	Status             OutcomeStatus           `json:"status"`
	Granted            []string                `json:"granted,omitempty"`
	Commission         *models.CommissionEntry `json:"commission,omitempty"`
	NotificationFailed bool                    `json:"notification_failed,omitempty"`
}

// Err returns ErrAlreadySettled for duplicate deliveries and nil otherwise.
func (o *Outcome) Err() error {
	if o.Status == StatusAlreadySettled {
		return ErrAlreadySettled
	}
	return nil
}

// Notifier tells the buyer that their purchase is active.
type Notifier interface {
	NotifySettlement(ctx context.Context, tx *models.Transaction, item *models.CatalogItem, outcome *Outcome) error
}

// Engine settles transactions. Store writes are individually idempotent so a
// settlement that fails half way can be retried after its claim is released.
type Engine struct {
	Store           storage.SettlementStore
	Guard           idempotency.Guard
	Notifier        Notifier
	FlatCommissions map[string]int64
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

// New creates an Engine. notifier may be nil.
func New(store storage.SettlementStore, guard idempotency.Guard, notifier Notifier, flat map[string]int64, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Store:           store,
		Guard:           guard,
		Notifier:        notifier,
		FlatCommissions: flat,
		Logger:          logger,
		Metrics:         m,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// Settle grants everything a SUCCESS transaction paid for. A second call for the
// same transaction returns StatusAlreadySettled without touching any state.
func (e *Engine) Settle(ctx context.Context, txID string) (*Outcome, error) {
	start := time.Now()
	outcome, err := e.settle(ctx, txID)
	switch {
	case err != nil:
		e.Metrics.ObserveSettlement("error", time.Since(start))
	default:
		e.Metrics.ObserveSettlement(string(outcome.Status), time.Since(start))
	}
	return outcome, err
}

func (e *Engine) settle(ctx context.Context, txID string) (*Outcome, error) {
	logger := e.Logger.With("transaction_id", txID)

	// 1. Load the transaction and check it is settleable.
	tx, err := e.Store.GetTransaction(ctx, txID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
		}
		return nil, fmt.Errorf("%w: failed to load transaction: %v", ErrPersistenceFailed, err)
	}
	if tx.Status != models.SUCCESS {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotSettleable, txID, tx.Status)
	}
	if tx.IsSettled() {
		return &Outcome{TransactionId: txID, Status: StatusAlreadySettled}, nil
	}

	// 2. Claim the settlement. The claim is the lock.
	key := idempotency.SettlementKey(txID)
	claimed, err := e.Guard.TryClaim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to claim settlement: %v", ErrPersistenceFailed, err)
	}
	if !claimed {
		logger.Info("Settlement already claimed")
		return &Outcome{TransactionId: txID, Status: StatusAlreadySettled}, nil
	}

	// 3. Apply grants, commission and the settled flag.
	outcome, item, err := e.apply(ctx, tx)
	if err != nil {
		if relErr := e.Guard.Release(ctx, key); relErr != nil {
			logger.Error("Failed to release settlement claim", "error", relErr)
		}
		logger.Error("Settlement failed", "error", err)
		return nil, err
	}
	logger.Info("Transaction settled", "granted", outcome.Granted)

	// 4. Notify the buyer. Never rolls back the settlement.
	if e.Notifier != nil {
		if err := e.Notifier.NotifySettlement(ctx, tx, item, outcome); err != nil {
			logger.Warn("Settlement notification failed", "error", fmt.Errorf("%w: %v", ErrNotificationFailed, err))
			outcome.NotificationFailed = true
		}
	}
	return outcome, nil
}

func (e *Engine) apply(ctx context.Context, tx *models.Transaction) (*Outcome, *models.CatalogItem, error) {
	now := e.Now()
	outcome := &Outcome{TransactionId: tx.Id, Status: StatusSettled}

	item, err := e.Store.GetCatalogItem(ctx, tx.Category, tx.ItemId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s %s", ErrItemNotFound, tx.Category, tx.ItemId)
		}
		return nil, nil, fmt.Errorf("%w: failed to load %s %s: %v", ErrPersistenceFailed, tx.Category, tx.ItemId, err)
	}

	switch tx.Category {
	case models.CategoryMembership:
		grant, err := e.grantMembership(ctx, tx, item, now)
		if err != nil {
			return nil, nil, err
		}
		outcome.Granted = append(outcome.Granted, grant.GrantKey)
		for _, courseID := range item.BundledCourses {
			if err := e.grantOnce(ctx, tx, models.EntitlementCourse, courseID, now); err != nil {
				return nil, nil, err
			}
			outcome.Granted = append(outcome.Granted, models.GrantKey(models.EntitlementCourse, courseID))
		}
		for _, productID := range item.BundledProducts {
			if err := e.grantOnce(ctx, tx, models.EntitlementProduct, productID, now); err != nil {
				return nil, nil, err
			}
			outcome.Granted = append(outcome.Granted, models.GrantKey(models.EntitlementProduct, productID))
		}
	case models.CategoryCourse:
		if err := e.grantOnce(ctx, tx, models.EntitlementCourse, item.Id, now); err != nil {
			return nil, nil, err
		}
		outcome.Granted = append(outcome.Granted, models.GrantKey(models.EntitlementCourse, item.Id))
	case models.CategoryProduct:
		if err := e.grantOnce(ctx, tx, models.EntitlementProduct, item.Id, now); err != nil {
			return nil, nil, err
		}
		outcome.Granted = append(outcome.Granted, models.GrantKey(models.EntitlementProduct, item.Id))
	default:
		return nil, nil, fmt.Errorf("%w: unknown category %q", ErrItemNotFound, tx.Category)
	}

	if tx.AffiliateId != "" && tx.AffiliateId != tx.UserId {
		entry, err := e.creditAffiliate(ctx, tx, item, now)
		if err != nil {
			return nil, nil, err
		}
		outcome.Commission = entry
	}

	if err := e.Store.MarkTransactionSettled(ctx, tx.Id, now); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to mark transaction settled: %v", ErrPersistenceFailed, err)
	}
	return outcome, item, nil
}

// grantMembership creates or extends the buyer's window for the plan. Active
// windows stack: the new end is max(now, end) plus the plan duration.
func (e *Engine) grantMembership(ctx context.Context, tx *models.Transaction, item *models.CatalogItem, now time.Time) (*models.Entitlement, error) {
	if _, err := WindowEnd(item.Duration, now); err != nil {
		return nil, fmt.Errorf("plan %s: %w", item.Id, err)
	}
	key := models.GrantKey(models.EntitlementMembership, item.Id)

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		current, err := e.Store.GetEntitlement(ctx, tx.UserId, key)
		if errors.Is(err, storage.ErrNotFound) {
			end, _ := WindowEnd(item.Duration, now)
			grant := &models.Entitlement{
				UserId:              tx.UserId,
				GrantKey:            key,
				Kind:                models.EntitlementMembership,
				ItemId:              item.Id,
				TransactionId:       tx.Id,
				StartsAt:            now,
				EndsAt:              end,
				AppliedTransactions: []string{tx.Id},
			}
			err = e.Store.CreateEntitlement(ctx, grant)
			if err == nil {
				return grant, nil
			}
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			return nil, fmt.Errorf("%w: failed to create membership: %v", ErrPersistenceFailed, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load membership: %v", ErrPersistenceFailed, err)
		}

		if current.HasApplied(tx.Id) {
			return current, nil
		}

		expected := current.Version
		base := now
		if current.EndsAt.After(now) {
			base = current.EndsAt
		} else {
			current.StartsAt = now
		}
		current.EndsAt, _ = WindowEnd(item.Duration, base)
		current.TransactionId = tx.Id
		current.AppliedTransactions = append(current.AppliedTransactions, tx.Id)

		err = e.Store.UpdateEntitlementWindow(ctx, current, expected)
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: failed to extend membership: %v", ErrPersistenceFailed, err)
		}
		e.Logger.Debug("Membership version conflict, retrying", "transaction_id", tx.Id, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("%w: membership %s for user %s kept conflicting", ErrPersistenceFailed, key, tx.UserId)
}

// grantOnce creates a course or product grant. An existing grant is left alone.
func (e *Engine) grantOnce(ctx context.Context, tx *models.Transaction, kind models.EntitlementKind, itemID string, now time.Time) error {
	grant := &models.Entitlement{
		UserId:              tx.UserId,
		GrantKey:            models.GrantKey(kind, itemID),
		Kind:                kind,
		ItemId:              itemID,
		TransactionId:       tx.Id,
		StartsAt:            now,
		EndsAt:              now.AddDate(lifetimeYears, 0, 0),
		AppliedTransactions: []string{tx.Id},
	}
	err := e.Store.CreateEntitlement(ctx, grant)
	if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		return fmt.Errorf("%w: failed to grant %s: %v", ErrPersistenceFailed, grant.GrantKey, err)
	}
	return nil
}

func (e *Engine) creditAffiliate(ctx context.Context, tx *models.Transaction, item *models.CatalogItem, now time.Time) (*models.CommissionEntry, error) {
	c := ComputeCommission(tx.Amount, item, e.FlatCommissions)
	if c.Amount <= 0 {
		return nil, nil
	}
	entry := &models.CommissionEntry{
		TransactionId: tx.Id,
		AffiliateId:   tx.AffiliateId,
		Amount:        c.Amount,
		Type:          c.Type,
		Rate:          c.Rate,
		CreatedAt:     now,
	}
	credited, err := e.Store.CreditCommission(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to credit commission: %v", ErrPersistenceFailed, err)
	}
	if !credited {
		existing, err := e.Store.GetCommission(ctx, tx.Id)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load existing commission: %v", ErrPersistenceFailed, err)
		}
		return existing, nil
	}
	e.Metrics.ObserveCommission(entry.Amount)
	return entry, nil
}
