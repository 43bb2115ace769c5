package inapp

import (
	"context"
	"errors"
	"testing"

	"github.com/chris/membership-settlement/pkg/dispatch"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage/memory"
	"github.com/chris/membership-settlement/pkg/websockets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	userIDs  []string
	messages []websockets.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, userID string, message websockets.Message) error {
	p.userIDs = append(p.userIDs, userID)
	p.messages = append(p.messages, message)
	return p.err
}

func TestSender_Send(t *testing.T) {
	ctx := context.Background()
	msg := &dispatch.Message{
		UserId:   "u1",
		SourceId: "rule-1",
		InApp:    models.InAppContent{Title: "Renew", Body: "3 days left", Link: "/dashboard"},
	}

	t.Run("Stores And Publishes", func(t *testing.T) {
		store := memory.New()
		publisher := &recordingPublisher{}
		sender := New(store, publisher, nil)

		require.NoError(t, sender.Send(ctx, msg))

		feed, err := store.ListNotifications(ctx, "u1", 10)
		require.NoError(t, err)
		require.Len(t, feed, 1)
		assert.Equal(t, "rule-1", feed[0].SourceId)
		assert.NotEmpty(t, feed[0].NotificationId)
		require.Len(t, publisher.messages, 1)
		assert.Equal(t, "u1", publisher.userIDs[0])
		assert.Equal(t, websockets.MessageTypeNotification, publisher.messages[0].Type)
	})

	t.Run("Publish Failure Still Delivers", func(t *testing.T) {
		store := memory.New()
		sender := New(store, &recordingPublisher{err: errors.New("hub closed")}, nil)

		err := sender.Send(ctx, msg)

		assert.NoError(t, err)
	})

	t.Run("Empty Template", func(t *testing.T) {
		sender := New(memory.New(), nil, nil)

		err := sender.Send(ctx, &dispatch.Message{UserId: "u1"})

		assert.Error(t, err)
	})
}
