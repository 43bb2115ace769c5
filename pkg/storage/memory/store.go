// Package memory is an in-process implementation of storage.Storage. It honours the
// same conditional-write contracts as the DynamoDB store and is used for local runs
// and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/google/uuid"
)

type entitlementKey struct{ userID, grantKey string }
type catalogKey struct {
	category models.Category
	id       string
}
type logKey struct{ ruleID, userID string }

// Store keeps every table in maps guarded by a single mutex.
type Store struct {
	mu            sync.Mutex
	transactions  map[string]models.Transaction
	entitlements  map[entitlementKey]models.Entitlement
	commissions   map[string]models.CommissionEntry
	wallets       map[string]models.Wallet
	catalog       map[catalogKey]models.CatalogItem
	profiles      map[string]models.UserProfile
	rules         map[string]models.ReminderRule
	logs          map[logKey]models.ReminderLog
	notifications map[string][]models.InAppNotification
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		transactions:  make(map[string]models.Transaction),
		entitlements:  make(map[entitlementKey]models.Entitlement),
		commissions:   make(map[string]models.CommissionEntry),
		wallets:       make(map[string]models.Wallet),
		catalog:       make(map[catalogKey]models.CatalogItem),
		profiles:      make(map[string]models.UserProfile),
		rules:         make(map[string]models.ReminderRule),
		logs:          make(map[logKey]models.ReminderLog),
		notifications: make(map[string][]models.InAppNotification),
	}
}

var _ storage.Storage = (*Store)(nil)

// PutCatalogItem seeds a plan, course or product.
func (s *Store) PutCatalogItem(item models.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[catalogKey{item.Category, item.Id}] = item
}

// PutUserProfile seeds a user profile.
func (s *Store) PutUserProfile(p models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserId] = p
}

// PutRule seeds a reminder rule.
func (s *Store) PutRule(r models.ReminderRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.Id] = r
}

// PutEntitlement seeds a grant, overwriting any existing one.
func (s *Store) PutEntitlement(e models.Entitlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.AppliedTransactions = slices.Clone(e.AppliedTransactions)
	s.entitlements[entitlementKey{e.UserId, e.GrantKey}] = e
}

// GetRule returns a copy of a seeded rule, mainly for assertions.
func (s *Store) GetRule(ruleID string) (models.ReminderRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	return r, ok
}

// CommissionCount returns how many commission entries exist.
func (s *Store) CommissionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commissions)
}

// Transactions

func (s *Store) CreateTransaction(_ context.Context, tx *models.Transaction) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if tx.Id == "" {
		tx.Id = uuid.New().String()
	}
	if tx.Status == "" {
		tx.Status = models.PENDING
	}
	if _, exists := s.transactions[tx.Id]; exists {
		return nil, fmt.Errorf("transaction %s: %w", tx.Id, storage.ErrAlreadyExists)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = now
	}
	s.transactions[tx.Id] = *tx
	out := *tx
	return &out, nil
}

func (s *Store) GetTransaction(_ context.Context, txID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("transaction with ID %s: %w", txID, storage.ErrNotFound)
	}
	return &tx, nil
}

func (s *Store) ListUnsettledTransactions(_ context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var out []models.Transaction
	for _, tx := range s.transactions {
		if tx.Status == models.SUCCESS && !tx.IsSettled() && tx.UpdatedAt.Before(cutoff) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) ListTransactionsByUserID(_ context.Context, userID string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for _, tx := range s.transactions {
		if tx.UserId == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) TransitionTransaction(_ context.Context, txID string, from []models.TransactionStatus, to models.TransactionStatus, at time.Time) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok || !slices.Contains(from, tx.Status) {
		return nil, fmt.Errorf("transaction %s to %s: %w", txID, to, storage.ErrInvalidTransition)
	}
	at = at.UTC()
	tx.Status = to
	tx.UpdatedAt = at
	if to == models.SUCCESS && tx.PaidAt == nil {
		tx.PaidAt = &at
	}
	s.transactions[txID] = tx
	return &tx, nil
}

func (s *Store) MarkTransactionSettled(_ context.Context, txID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok || tx.Status != models.SUCCESS {
		return fmt.Errorf("transaction %s is no longer SUCCESS: %w", txID, storage.ErrInvalidTransition)
	}
	at = at.UTC()
	if tx.SettledAt == nil {
		tx.SettledAt = &at
	}
	tx.UpdatedAt = at
	s.transactions[txID] = tx
	return nil
}

// Catalog

func (s *Store) GetCatalogItem(_ context.Context, category models.Category, itemID string) (*models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.catalog[catalogKey{category, itemID}]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", category, itemID, storage.ErrNotFound)
	}
	return &item, nil
}

func (s *Store) GetUserProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile for user %s: %w", userID, storage.ErrNotFound)
	}
	return &p, nil
}

// Entitlements

func (s *Store) GetEntitlement(_ context.Context, userID, grantKey string) (*models.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entitlements[entitlementKey{userID, grantKey}]
	if !ok {
		return nil, fmt.Errorf("entitlement %s for user %s: %w", grantKey, userID, storage.ErrNotFound)
	}
	e.AppliedTransactions = slices.Clone(e.AppliedTransactions)
	return &e, nil
}

func (s *Store) ListEntitlementsByUser(_ context.Context, userID string) ([]models.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Entitlement
	for k, e := range s.entitlements {
		if k.userID == userID {
			e.AppliedTransactions = slices.Clone(e.AppliedTransactions)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantKey < out[j].GrantKey })
	return out, nil
}

func (s *Store) ListEntitlementsByGrant(_ context.Context, grantKey string) ([]models.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Entitlement
	for k, e := range s.entitlements {
		if k.grantKey == grantKey {
			e.AppliedTransactions = slices.Clone(e.AppliedTransactions)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserId < out[j].UserId })
	return out, nil
}

func (s *Store) CreateEntitlement(_ context.Context, e *models.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entitlementKey{e.UserId, e.GrantKey}
	if _, exists := s.entitlements[key]; exists {
		return fmt.Errorf("entitlement %s for user %s: %w", e.GrantKey, e.UserId, storage.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Version == 0 {
		e.Version = 1
	}
	stored := *e
	stored.AppliedTransactions = slices.Clone(e.AppliedTransactions)
	s.entitlements[key] = stored
	return nil
}

func (s *Store) UpdateEntitlementWindow(_ context.Context, e *models.Entitlement, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entitlementKey{e.UserId, e.GrantKey}
	current, ok := s.entitlements[key]
	if !ok || current.Version != expectedVersion {
		return fmt.Errorf("entitlement %s for user %s: %w", e.GrantKey, e.UserId, storage.ErrVersionConflict)
	}
	current.StartsAt = e.StartsAt
	current.EndsAt = e.EndsAt
	current.TransactionId = e.TransactionId
	current.AppliedTransactions = slices.Clone(e.AppliedTransactions)
	current.UpdatedAt = time.Now().UTC()
	current.Version = expectedVersion + 1
	s.entitlements[key] = current
	e.Version = current.Version
	e.UpdatedAt = current.UpdatedAt
	return nil
}

// Commissions and wallets

func (s *Store) GetWallet(_ context.Context, userID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
	}
	return &w, nil
}

func (s *Store) CreditCommission(_ context.Context, entry *models.CommissionEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.commissions[entry.TransactionId]; exists {
		return false, nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.commissions[entry.TransactionId] = *entry

	w := s.wallets[entry.AffiliateId]
	w.UserId = entry.AffiliateId
	w.Balance += entry.Amount
	w.TotalEarnings += entry.Amount
	w.UpdatedAt = entry.CreatedAt
	s.wallets[entry.AffiliateId] = w
	return true, nil
}

func (s *Store) GetCommission(_ context.Context, txID string) (*models.CommissionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commissions[txID]
	if !ok {
		return nil, fmt.Errorf("commission for transaction %s: %w", txID, storage.ErrNotFound)
	}
	return &c, nil
}

// Reminders

func (s *Store) ListActiveRules(_ context.Context) ([]models.ReminderRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ReminderRule
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (s *Store) GetReminderLog(_ context.Context, ruleID, userID string) (*models.ReminderLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[logKey{ruleID, userID}]
	if !ok {
		return nil, fmt.Errorf("reminder log %s/%s: %w", ruleID, userID, storage.ErrNotFound)
	}
	return &l, nil
}

func (s *Store) PutReminderLog(_ context.Context, l *models.ReminderLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := logKey{l.RuleId, l.UserId}
	if current, ok := s.logs[key]; ok && (current.Status == models.ReminderSent || current.Status == models.ReminderDelivered) {
		return fmt.Errorf("reminder log %s/%s: %w", l.RuleId, l.UserId, storage.ErrAlreadyExists)
	}
	stored := *l
	stored.Channels = slices.Clone(l.Channels)
	s.logs[key] = stored
	return nil
}

func (s *Store) IncrementRuleCounters(_ context.Context, ruleID string, sent, failed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("reminder rule %s: %w", ruleID, storage.ErrNotFound)
	}
	r.SentCount += sent
	r.FailedCount += failed
	s.rules[ruleID] = r
	return nil
}

// Notifications

func (s *Store) CreateNotification(_ context.Context, n *models.InAppNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.NotificationId == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate notification ID: %w", err)
		}
		n.NotificationId = id.String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications[n.UserId] = append(s.notifications[n.UserId], *n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, limit int32) ([]models.InAppNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed := s.notifications[userID]
	out := make([]models.InAppNotification, 0, len(feed))
	for i := len(feed) - 1; i >= 0; i-- {
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
		out = append(out, feed[i])
	}
	return out, nil
}
