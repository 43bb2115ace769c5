package idempotency

import (
	"context"
	"fmt"
	"sync"
)

// Guard is an atomic claim-or-skip check keyed by an operation scope.
type Guard interface {
	// TryClaim returns true exactly once per key. Later calls, including concurrent
	// ones, return false without side effects.
	TryClaim(ctx context.Context, key string) (bool, error)

	// Release removes a claim so that the operation can be retried.
	Release(ctx context.Context, key string) error
}

// SettlementKey is the claim key for settling a transaction.
func SettlementKey(txID string) string {
	return fmt.Sprintf("settlement:%s", txID)
}

// ReminderKey is the claim key for sending a rule to a user.
func ReminderKey(ruleID, userID string) string {
	return fmt.Sprintf("reminder:%s:%s", ruleID, userID)
}

// MemoryGuard keeps claims in process memory. It is safe for concurrent use but
// only deduplicates within a single process.
type MemoryGuard struct {
	claims sync.Map
}

// NewMemoryGuard creates an empty MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{}
}

var _ Guard = (*MemoryGuard)(nil)

func (g *MemoryGuard) TryClaim(_ context.Context, key string) (bool, error) {
	_, loaded := g.claims.LoadOrStore(key, struct{}{})
	return !loaded, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.claims.Delete(key)
	return nil
}
