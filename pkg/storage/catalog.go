package storage

import (
	"context"

	"github.com/chris/membership-settlement/pkg/models"
)

// CatalogReader resolves sellable items and buyer profiles.
type CatalogReader interface {
	// GetCatalogItem returns ErrNotFound when the item does not exist.
	GetCatalogItem(ctx context.Context, category models.Category, itemID string) (*models.CatalogItem, error)

	// GetUserProfile returns ErrNotFound when the user has no profile.
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}
