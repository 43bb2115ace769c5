package storage

import (
	"context"

	"github.com/chris/membership-settlement/pkg/models"
)

// NotificationReader defines the interface for reading a user's in-app feed.
type NotificationReader interface {
	// ListNotifications retrieves the newest notifications of a user.
	ListNotifications(ctx context.Context, userID string, limit int32) ([]models.InAppNotification, error)
}

// NotificationStore defines the interface for the in-app notification feed.
type NotificationStore interface {
	NotificationReader

	// CreateNotification appends a notification to a user's feed.
	CreateNotification(ctx context.Context, n *models.InAppNotification) error
}
