package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/settlement"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/chris/membership-settlement/pkg/websockets"
)

// ProfileReader looks up recipient contact details.
type ProfileReader interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

const (
	purchaseSubject = "Your purchase of {plan_name} is active"
	purchaseBody    = "Hi {name}, thank you for your payment. {plan_name} is now available in your dashboard."
)

// SettlementNotifier tells buyers and affiliates about a completed settlement.
type SettlementNotifier struct {
	Dispatcher *Dispatcher
	Profiles   ProfileReader
	Wallets    storage.WalletReader
	Publisher  websockets.Publisher
	Links      config.Links
	Logger     *slog.Logger
}

var _ settlement.Notifier = (*SettlementNotifier)(nil)

// NotifySettlement sends the purchase confirmation over email and in-app, then pushes
// live updates to the buyer and the affiliate. It fails only when no channel delivered.
func (n *SettlementNotifier) NotifySettlement(ctx context.Context, tx *models.Transaction, item *models.CatalogItem, outcome *settlement.Outcome) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	profile, err := n.Profiles.GetUserProfile(ctx, tx.UserId)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to load buyer profile: %w", err)
		}
		profile = &models.UserProfile{UserId: tx.UserId, Name: tx.CustomerName, Email: tx.CustomerEmail}
	}

	tc := NewTemplateContext(&models.Subject{UserId: tx.UserId, Profile: *profile, ItemTitle: item.Label}, "", n.Links, time.Now())
	msg := &Message{
		UserId:    tx.UserId,
		SourceId:  tx.Id,
		Recipient: *profile,
		Email: models.EmailContent{
			Subject: tc.Render(purchaseSubject),
			Body:    tc.Render(purchaseBody),
			CTA:     "Open dashboard",
			CTALink: n.Links.Dashboard,
		},
		InApp: models.InAppContent{
			Title: tc.Render(purchaseSubject),
			Body:  tc.Render(purchaseBody),
			Link:  n.Links.Dashboard,
		},
	}
	result := n.Dispatcher.Dispatch(ctx, []models.Channel{models.ChannelEmail, models.ChannelInApp}, msg)

	n.publish(ctx, logger, tx.UserId, websockets.Message{
		Type:    websockets.MessageTypeEntitlementUpdate,
		Payload: websockets.EntitlementUpdatePayload{TransactionID: tx.Id, Granted: outcome.Granted},
	})
	if c := outcome.Commission; c != nil {
		payload := websockets.WalletUpdatePayload{UserID: c.AffiliateId, TransactionID: tx.Id, Change: c.Amount}
		if n.Wallets != nil {
			if wallet, err := n.Wallets.GetWallet(ctx, c.AffiliateId); err == nil {
				payload.NewBalance = wallet.Balance
			}
		}
		n.publish(ctx, logger, c.AffiliateId, websockets.Message{Type: websockets.MessageTypeWalletUpdate, Payload: payload})
	}

	if result.Status() != models.ReminderSent {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, result.LastError)
	}
	return nil
}

func (n *SettlementNotifier) publish(ctx context.Context, logger *slog.Logger, userID string, msg websockets.Message) {
	if n.Publisher == nil {
		return
	}
	if err := n.Publisher.Publish(ctx, userID, msg); err != nil {
		logger.Warn("Failed to publish live update", "user_id", userID, "type", msg.Type, "error", err)
	}
}
