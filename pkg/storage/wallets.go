package storage

import (
	"context"

	"github.com/chris/membership-settlement/pkg/models"
)

// WalletReader defines the interface for reading affiliate wallets.
type WalletReader interface {
	// GetWallet returns ErrNotFound when the user has never been credited.
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
}

// CommissionStore defines the interface for recording affiliate commissions.
type CommissionStore interface {
	WalletReader

	// CreditCommission records the entry and adds its amount to the affiliate's wallet
	// in one atomic unit. It returns false, nil when the transaction already has an entry.
	CreditCommission(ctx context.Context, entry *models.CommissionEntry) (bool, error)

	// GetCommission returns ErrNotFound when the transaction has no commission.
	GetCommission(ctx context.Context, txID string) (*models.CommissionEntry, error)
}
