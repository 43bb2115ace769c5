package storage

import (
	"context"
	"time"

	"github.com/chris/membership-settlement/pkg/models"
)

// TransactionReader defines the interface for reading transaction data.
type TransactionReader interface {
	// GetTransaction retrieves a transaction by its ID.
	GetTransaction(ctx context.Context, txID string) (*models.Transaction, error)

	// ListUnsettledTransactions retrieves SUCCESS transactions without a settled_at
	// that were last updated more than olderThan ago.
	ListUnsettledTransactions(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error)

	// ListTransactionsByUserID retrieves all transactions for a specific user.
	ListTransactionsByUserID(ctx context.Context, userID string) ([]models.Transaction, error)
}

// TransactionManager defines the interface for recording and moving transactions between statuses.
type TransactionManager interface {
	// CreateTransaction records a new transaction. An existing ID returns ErrAlreadyExists.
	CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)

	// TransitionTransaction moves a transaction to status `to` if its current status is one of `from`.
	// It returns ErrInvalidTransition when the condition does not hold.
	TransitionTransaction(ctx context.Context, txID string, from []models.TransactionStatus, to models.TransactionStatus, at time.Time) (*models.Transaction, error)

	// MarkTransactionSettled sets settled_at on a SUCCESS transaction.
	MarkTransactionSettled(ctx context.Context, txID string, at time.Time) error
}

// TransactionStore combines the reader and manager interfaces.
type TransactionStore interface {
	TransactionReader
	TransactionManager
}
