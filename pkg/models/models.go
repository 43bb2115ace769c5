package models

import (
	"time"
)

// TransactionStatus defines the possible states of a transaction.
type TransactionStatus string

const (
	PENDING              TransactionStatus = "PENDING"
	PENDING_CONFIRMATION TransactionStatus = "PENDING_CONFIRMATION"
	SUCCESS              TransactionStatus = "SUCCESS"
	FAILED               TransactionStatus = "FAILED"
	REFUNDED             TransactionStatus = "REFUNDED"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	PENDING:              {PENDING_CONFIRMATION, SUCCESS, FAILED},
	PENDING_CONFIRMATION: {SUCCESS, FAILED},
	SUCCESS:              {REFUNDED},
}

// CanTransitionTo reports whether a transaction in status s may move to next.
// Transitions only go forward; REFUNDED may only follow SUCCESS.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Category is the kind of item a transaction pays for.
type Category string

const (
	CategoryMembership Category = "MEMBERSHIP"
	CategoryCourse     Category = "COURSE"
	CategoryProduct    Category = "PRODUCT"
)

// Transaction represents the internal domain model for a payment.
// It includes dynamodbav tags for marshalling.
type Transaction struct {
	Id            string            `json:"id" dynamodbav:"id"`
	UserId        string            `json:"user_id" dynamodbav:"user_id"`
	Amount        int64             `json:"amount" dynamodbav:"amount"`
	Category      Category          `json:"category" dynamodbav:"category"`
	ItemId        string            `json:"item_id" dynamodbav:"item_id"`
	AffiliateId   string            `json:"affiliate_id,omitempty" dynamodbav:"affiliate_id,omitempty"`
	Status        TransactionStatus `json:"status" dynamodbav:"status"`
	PaymentMethod string            `json:"payment_method,omitempty" dynamodbav:"payment_method,omitempty"`
	CustomerName  string            `json:"customer_name,omitempty" dynamodbav:"customer_name,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty" dynamodbav:"customer_email,omitempty"`
	CreatedAt     time.Time         `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" dynamodbav:"updated_at"`
	PaidAt        *time.Time        `json:"paid_at,omitempty" dynamodbav:"paid_at,omitempty"`
	SettledAt     *time.Time        `json:"settled_at,omitempty" dynamodbav:"settled_at,omitempty"`
}

// IsSettled reports whether entitlements were already granted for the transaction.
func (t *Transaction) IsSettled() bool {
	return t.SettledAt != nil
}

// EntitlementKind identifies what an entitlement grants access to.
type EntitlementKind string

const (
	EntitlementMembership EntitlementKind = "MEMBERSHIP"
	EntitlementCourse     EntitlementKind = "COURSE"
	EntitlementProduct    EntitlementKind = "PRODUCT"
)

// GrantKey builds the sort key of an entitlement for the given kind and item.
func GrantKey(kind EntitlementKind, itemID string) string {
	return string(kind) + "#" + itemID
}

// Entitlement is an access grant keyed by (UserId, GrantKey).
type Entitlement struct {
	UserId              string          `json:"user_id" dynamodbav:"user_id"`
	GrantKey            string          `json:"grant_key" dynamodbav:"grant_key"`
	Kind                EntitlementKind `json:"kind" dynamodbav:"kind"`
	ItemId              string          `json:"item_id" dynamodbav:"item_id"`
	TransactionId       string          `json:"transaction_id" dynamodbav:"transaction_id"`
	StartsAt            time.Time       `json:"starts_at" dynamodbav:"starts_at"`
	EndsAt              time.Time       `json:"ends_at" dynamodbav:"ends_at"`
	AppliedTransactions []string        `json:"applied_transactions,omitempty" dynamodbav:"applied_transactions,stringset,omitempty"`
	Version             int64           `json:"version" dynamodbav:"version"`
	CreatedAt           time.Time       `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" dynamodbav:"updated_at"`
}

// IsActiveAt reports whether the grant window covers t.
func (e *Entitlement) IsActiveAt(t time.Time) bool {
	return !t.Before(e.StartsAt) && t.Before(e.EndsAt)
}

// HasApplied reports whether the transaction has already been folded into the window.
func (e *Entitlement) HasApplied(txID string) bool {
	if e.TransactionId == txID {
		return true
	}
	for _, id := range e.AppliedTransactions {
		if id == txID {
			return true
		}
	}
	return false
}

// CommissionType defines how an affiliate commission is computed.
type CommissionType string

const (
	CommissionFlat       CommissionType = "FLAT"
	CommissionPercentage CommissionType = "PERCENTAGE"
)

// CommissionEntry records an affiliate commission, one per transaction.
type CommissionEntry struct {
	TransactionId string         `json:"transaction_id" dynamodbav:"transaction_id"`
	AffiliateId   string         `json:"affiliate_id" dynamodbav:"affiliate_id"`
	Amount        int64          `json:"amount" dynamodbav:"amount"`
	Type          CommissionType `json:"type" dynamodbav:"type"`
	Rate          float64        `json:"rate" dynamodbav:"rate"`
	PaidOut       bool           `json:"paid_out" dynamodbav:"paid_out"`
	PaidOutAt     *time.Time     `json:"paid_out_at,omitempty" dynamodbav:"paid_out_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at" dynamodbav:"created_at"`
}

// Wallet represents the internal domain model for a user's wallet.
type Wallet struct {
	UserId        string    `json:"user_id" dynamodbav:"user_id"`
	Balance       int64     `json:"balance" dynamodbav:"balance"`
	TotalEarnings int64     `json:"total_earnings" dynamodbav:"total_earnings"`
	UpdatedAt     time.Time `json:"updated_at" dynamodbav:"updated_at"`
}
