package models

// DurationCode is the billing period of a membership plan.
type DurationCode string

const (
	ONE_MONTH     DurationCode = "ONE_MONTH"
	THREE_MONTHS  DurationCode = "THREE_MONTHS"
	SIX_MONTHS    DurationCode = "SIX_MONTHS"
	TWELVE_MONTHS DurationCode = "TWELVE_MONTHS"
	LIFETIME      DurationCode = "LIFETIME"
)

// CatalogItem is the part of a sellable item that settlement needs.
type CatalogItem struct {
	Id             string         `json:"id" dynamodbav:"id"`
	Category       Category       `json:"category" dynamodbav:"category"`
	Label          string         `json:"label" dynamodbav:"label"`
	CommissionType CommissionType `json:"commission_type,omitempty" dynamodbav:"commission_type,omitempty"`
	CommissionRate float64        `json:"commission_rate,omitempty" dynamodbav:"commission_rate,omitempty"`

	// Membership plans only.
	Duration        DurationCode `json:"duration,omitempty" dynamodbav:"duration,omitempty"`
	BundledCourses  []string     `json:"bundled_courses,omitempty" dynamodbav:"bundled_courses,stringset,omitempty"`
	BundledProducts []string     `json:"bundled_products,omitempty" dynamodbav:"bundled_products,stringset,omitempty"`
}

// UserProfile holds the contact details used to personalise notifications.
type UserProfile struct {
	UserId     string `json:"user_id" dynamodbav:"user_id"`
	Name       string `json:"name" dynamodbav:"name"`
	Email      string `json:"email" dynamodbav:"email"`
	Phone      string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	PushPlayer string `json:"push_player,omitempty" dynamodbav:"push_player,omitempty"`
}
