// Package cache puts a short-lived LRU in front of catalog and profile reads.
package cache

import (
	"context"
	"time"

	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultSize = 1024
	defaultTTL  = 5 * time.Minute
)

// Catalog caches successful catalog and profile lookups. Misses and errors are
// never cached so a newly added item is visible on the next read.
type Catalog struct {
	inner    storage.CatalogReader
	items    *expirable.LRU[string, *models.CatalogItem]
	profiles *expirable.LRU[string, *models.UserProfile]
}

// NewCatalog wraps inner. Non-positive size or ttl select the defaults.
func NewCatalog(inner storage.CatalogReader, size int, ttl time.Duration) *Catalog {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Catalog{
		inner:    inner,
		items:    expirable.NewLRU[string, *models.CatalogItem](size, nil, ttl),
		profiles: expirable.NewLRU[string, *models.UserProfile](size, nil, ttl),
	}
}

var _ storage.CatalogReader = (*Catalog)(nil)

func (c *Catalog) GetCatalogItem(ctx context.Context, category models.Category, itemID string) (*models.CatalogItem, error) {
	key := string(category) + "#" + itemID
	if item, ok := c.items.Get(key); ok {
		return item, nil
	}
	item, err := c.inner.GetCatalogItem(ctx, category, itemID)
	if err != nil {
		return nil, err
	}
	c.items.Add(key, item)
	return item, nil
}

func (c *Catalog) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if p, ok := c.profiles.Get(userID); ok {
		return p, nil
	}
	p, err := c.inner.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.profiles.Add(userID, p)
	return p, nil
}

// ReminderBackend serves catalog reads of a reminder backend from a Catalog cache.
type ReminderBackend struct {
	storage.ReminderBackend
	Catalog *Catalog
}

// WrapReminderBackend caches the catalog side of b.
func WrapReminderBackend(b storage.ReminderBackend, size int, ttl time.Duration) ReminderBackend {
	return ReminderBackend{ReminderBackend: b, Catalog: NewCatalog(b, size, ttl)}
}

func (b ReminderBackend) GetCatalogItem(ctx context.Context, category models.Category, itemID string) (*models.CatalogItem, error) {
	return b.Catalog.GetCatalogItem(ctx, category, itemID)
}

func (b ReminderBackend) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return b.Catalog.GetUserProfile(ctx, userID)
}
