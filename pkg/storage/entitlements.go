package storage

import (
	"context"

	"github.com/chris/membership-settlement/pkg/models"
)

// EntitlementReader defines the interface for reading access grants.
type EntitlementReader interface {
	// GetEntitlement returns ErrNotFound when the user holds no grant for the key.
	GetEntitlement(ctx context.Context, userID, grantKey string) (*models.Entitlement, error)

	// ListEntitlementsByUser retrieves every grant a user holds.
	ListEntitlementsByUser(ctx context.Context, userID string) ([]models.Entitlement, error)

	// ListEntitlementsByGrant retrieves every holder of a grant key.
	ListEntitlementsByGrant(ctx context.Context, grantKey string) ([]models.Entitlement, error)
}

// EntitlementWriter defines the interface for creating and extending access grants.
type EntitlementWriter interface {
	// CreateEntitlement writes a new grant. An existing grant returns ErrAlreadyExists.
	CreateEntitlement(ctx context.Context, e *models.Entitlement) error

	// UpdateEntitlementWindow replaces the window and applied transactions of a grant,
	// bumping its version. It returns ErrVersionConflict if the stored version is not expectedVersion.
	UpdateEntitlementWindow(ctx context.Context, e *models.Entitlement, expectedVersion int64) error
}

// EntitlementStore combines the reader and writer interfaces.
type EntitlementStore interface {
	EntitlementReader
	EntitlementWriter
}
