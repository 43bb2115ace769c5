package mapping

import (
	"time"

	"github.com/chris/membership-settlement/pkg/models"
	"github.com/oapi-codegen/runtime/types"
)

// Transaction is the API view of a payment.
type Transaction struct {
	Id            string                   `json:"id"`
	UserId        string                   `json:"user_id"`
	Amount        int64                    `json:"amount"`
	Category      models.Category          `json:"category"`
	ItemId        string                   `json:"item_id"`
	AffiliateId   string                   `json:"affiliate_id,omitempty"`
	Status        models.TransactionStatus `json:"status"`
	PaymentMethod string                   `json:"payment_method,omitempty"`
	CustomerEmail *types.Email             `json:"customer_email,omitempty"`
	Settled       bool                     `json:"settled"`
	CreatedAt     time.Time                `json:"created_at"`
	PaidAt        *time.Time               `json:"paid_at,omitempty"`
	SettledAt     *time.Time               `json:"settled_at,omitempty"`
}

// Entitlement is the API view of an access grant.
type Entitlement struct {
	Kind      models.EntitlementKind `json:"kind"`
	ItemId    string                 `json:"item_id"`
	StartsOn  types.Date             `json:"starts_on"`
	ExpiresOn types.Date             `json:"expires_on"`
	Active    bool                   `json:"active"`
}

// Wallet is the API view of an affiliate wallet.
type Wallet struct {
	UserId        string    `json:"user_id"`
	Balance       int64     `json:"balance"`
	TotalEarnings int64     `json:"total_earnings"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Notification is the API view of an in-app notification.
type Notification struct {
	Id        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ToApiTransaction converts a domain Transaction model to its API view.
func ToApiTransaction(tx *models.Transaction) *Transaction {
	out := &Transaction{
		Id:            tx.Id,
		UserId:        tx.UserId,
		Amount:        tx.Amount,
		Category:      tx.Category,
		ItemId:        tx.ItemId,
		AffiliateId:   tx.AffiliateId,
		Status:        tx.Status,
		PaymentMethod: tx.PaymentMethod,
		Settled:       tx.IsSettled(),
		CreatedAt:     tx.CreatedAt,
		PaidAt:        tx.PaidAt,
		SettledAt:     tx.SettledAt,
	}
	if tx.CustomerEmail != "" {
		email := types.Email(tx.CustomerEmail)
		out.CustomerEmail = &email
	}
	return out
}

// ToApiEntitlement converts a grant to its API view, evaluating activity at now.
func ToApiEntitlement(e *models.Entitlement, now time.Time) *Entitlement {
	return &Entitlement{
		Kind:      e.Kind,
		ItemId:    e.ItemId,
		StartsOn:  types.Date{Time: e.StartsAt},
		ExpiresOn: types.Date{Time: e.EndsAt},
		Active:    e.IsActiveAt(now),
	}
}

// ToApiWallet converts a domain Wallet model to its API view.
func ToApiWallet(wallet *models.Wallet) *Wallet {
	return &Wallet{
		UserId:        wallet.UserId,
		Balance:       wallet.Balance,
		TotalEarnings: wallet.TotalEarnings,
		UpdatedAt:     wallet.UpdatedAt,
	}
}

// ToApiNotification converts an in-app notification to its API view.
func ToApiNotification(n *models.InAppNotification) *Notification {
	return &Notification{
		Id:        n.NotificationId,
		Title:     n.Title,
		Body:      n.Body,
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
