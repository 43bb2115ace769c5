package storage

import (
	"context"

	"github.com/chris/membership-settlement/pkg/models"
)

// ReminderStore defines the interface for reading rules and recording deliveries.
type ReminderStore interface {
	// ListActiveRules retrieves every rule with is_active set.
	ListActiveRules(ctx context.Context) ([]models.ReminderRule, error)

	// GetReminderLog returns ErrNotFound when the pair has never been attempted.
	GetReminderLog(ctx context.Context, ruleID, userID string) (*models.ReminderLog, error)

	// PutReminderLog upserts the log row of a (rule, user) pair.
	PutReminderLog(ctx context.Context, log *models.ReminderLog) error

	// IncrementRuleCounters atomically adds to a rule's sent and failed counters.
	IncrementRuleCounters(ctx context.Context, ruleID string, sent, failed int64) error
}

// ReminderBackend is everything the reminder runner needs to find and notify subjects.
type ReminderBackend interface {
	ReminderStore
	EntitlementReader
	CatalogReader
}
