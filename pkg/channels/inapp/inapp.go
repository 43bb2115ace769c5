// Package inapp stores dashboard notifications and pushes them to live clients.
package inapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chris/membership-settlement/pkg/dispatch"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/chris/membership-settlement/pkg/websockets"
)

// Sender writes the notification row. The live push is best effort: the row is
// what the dashboard feed reads.
type Sender struct {
	store     storage.NotificationStore
	publisher websockets.Publisher
	logger    *slog.Logger
}

func New(store storage.NotificationStore, publisher websockets.Publisher, logger *slog.Logger) *Sender {
	if publisher == nil {
		publisher = websockets.NoOpPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{store: store, publisher: publisher, logger: logger}
}

var _ dispatch.Sender = (*Sender)(nil)

func (s *Sender) Channel() models.Channel { return models.ChannelInApp }

func (s *Sender) Send(ctx context.Context, msg *dispatch.Message) error {
	if msg.InApp.Title == "" && msg.InApp.Body == "" {
		return errors.New("empty in-app template")
	}
	n := &models.InAppNotification{
		UserId:   msg.UserId,
		Title:    msg.InApp.Title,
		Body:     msg.InApp.Body,
		Link:     msg.InApp.Link,
		SourceId: msg.SourceId,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	err := s.publisher.Publish(ctx, msg.UserId, websockets.Message{
		Type: websockets.MessageTypeNotification,
		Payload: websockets.NotificationPayload{
			NotificationID: n.NotificationId,
			Title:          n.Title,
			Body:           n.Body,
			Link:           n.Link,
			CreatedAt:      n.CreatedAt,
		},
	})
	if err != nil {
		s.logger.Warn("Failed to publish notification", "user_id", msg.UserId, "error", err)
	}
	return nil
}
