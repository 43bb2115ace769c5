package websockets

import "time"

// MessageType tells dashboard clients how to decode the payload.
type MessageType string

const (
	// MessageTypeNotification carries a new in-app notification.
	MessageTypeNotification MessageType = "notification"
	// MessageTypeEntitlementUpdate is sent when a purchase becomes active.
	MessageTypeEntitlementUpdate MessageType = "entitlementUpdate"
	// MessageTypeWalletUpdate is sent to an affiliate credited with a commission.
	MessageTypeWalletUpdate MessageType = "walletUpdate"
)

// Message is the envelope written to every live connection.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// NotificationPayload is the payload for a notification message.
type NotificationPayload struct {
	NotificationID string    `json:"notification_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Link           string    `json:"link,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// EntitlementUpdatePayload is the payload for an entitlementUpdate message.
type EntitlementUpdatePayload struct {
	TransactionID string   `json:"transaction_id"`
	Granted       []string `json:"granted"`
}

// WalletUpdatePayload reports a commission credit. NewBalance is zero when the
// wallet could not be re-read.
type WalletUpdatePayload struct {
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id"`
	Change        int64  `json:"change"`
	NewBalance    int64  `json:"new_balance,omitempty"`
}
