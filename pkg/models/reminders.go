package models

import (
	"time"
)

// TriggerType defines what a reminder's target time is computed from.
type TriggerType string

const (
	AFTER_EVENT      TriggerType = "AFTER_EVENT"
	BEFORE_DEADLINE  TriggerType = "BEFORE_DEADLINE"
	ON_SPECIFIC_DATE TriggerType = "ON_SPECIFIC_DATE"
	CONDITIONAL      TriggerType = "CONDITIONAL"
)

// DelayUnit is the unit of a reminder delay.
type DelayUnit string

const (
	Minutes DelayUnit = "minutes"
	Hours   DelayUnit = "hours"
	Days    DelayUnit = "days"
	Weeks   DelayUnit = "weeks"
)

// IsDayBased reports whether the unit counts calendar days rather than clock time.
func (u DelayUnit) IsDayBased() bool {
	return u == Days || u == Weeks
}

// Channel is a reminder delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
	ChannelChat  Channel = "chat"
)

// AllChannels lists channels in dispatch order.
var AllChannels = []Channel{ChannelEmail, ChannelPush, ChannelInApp, ChannelChat}

// ReminderTarget names the population a rule is evaluated against.
type ReminderTarget struct {
	Kind   EntitlementKind `json:"kind" dynamodbav:"kind"`
	ItemId string          `json:"item_id" dynamodbav:"item_id"`
}

// EmailContent is the email template of a rule.
type EmailContent struct {
	Subject string `json:"subject,omitempty" dynamodbav:"subject,omitempty"`
	Body    string `json:"body,omitempty" dynamodbav:"body,omitempty"`
	CTA     string `json:"cta,omitempty" dynamodbav:"cta,omitempty"`
	CTALink string `json:"cta_link,omitempty" dynamodbav:"cta_link,omitempty"`
}

// PushContent is the push template of a rule.
type PushContent struct {
	Title string `json:"title,omitempty" dynamodbav:"title,omitempty"`
	Body  string `json:"body,omitempty" dynamodbav:"body,omitempty"`
	Link  string `json:"link,omitempty" dynamodbav:"link,omitempty"`
}

// InAppContent is the in-app template of a rule.
type InAppContent struct {
	Title string `json:"title,omitempty" dynamodbav:"title,omitempty"`
	Body  string `json:"body,omitempty" dynamodbav:"body,omitempty"`
	Link  string `json:"link,omitempty" dynamodbav:"link,omitempty"`
}

// ChatContent is the chat (WhatsApp) template of a rule.
type ChatContent struct {
	Message string `json:"message,omitempty" dynamodbav:"message,omitempty"`
	CTA     string `json:"cta,omitempty" dynamodbav:"cta,omitempty"`
	CTALink string `json:"cta_link,omitempty" dynamodbav:"cta_link,omitempty"`
}

// ReminderRule is an operator-defined recurring notification.
type ReminderRule struct {
	Id            string         `json:"id" dynamodbav:"id"`
	Title         string         `json:"title" dynamodbav:"title"`
	Target        ReminderTarget `json:"target" dynamodbav:"target"`
	TriggerType   TriggerType    `json:"trigger_type" dynamodbav:"trigger_type"`
	DelayAmount   int            `json:"delay_amount" dynamodbav:"delay_amount"`
	DelayUnit     DelayUnit      `json:"delay_unit" dynamodbav:"delay_unit"`
	PreferredTime string         `json:"preferred_time,omitempty" dynamodbav:"preferred_time,omitempty"`
	Timezone      string         `json:"timezone,omitempty" dynamodbav:"timezone,omitempty"`
	DaysOfWeek    []int          `json:"days_of_week,omitempty" dynamodbav:"days_of_week,omitempty"`
	AvoidWeekends bool           `json:"avoid_weekends" dynamodbav:"avoid_weekends"`
	SpecificDate  *time.Time     `json:"specific_date,omitempty" dynamodbav:"specific_date,omitempty"`

	EmailEnabled bool `json:"email_enabled" dynamodbav:"email_enabled"`
	PushEnabled  bool `json:"push_enabled" dynamodbav:"push_enabled"`
	InAppEnabled bool `json:"in_app_enabled" dynamodbav:"in_app_enabled"`
	ChatEnabled  bool `json:"chat_enabled" dynamodbav:"chat_enabled"`

	Email EmailContent `json:"email" dynamodbav:"email"`
	Push  PushContent  `json:"push" dynamodbav:"push"`
	InApp InAppContent `json:"in_app" dynamodbav:"in_app"`
	Chat  ChatContent  `json:"chat" dynamodbav:"chat"`

	IsActive    bool      `json:"is_active" dynamodbav:"is_active"`
	SentCount   int64     `json:"sent_count" dynamodbav:"sent_count"`
	FailedCount int64     `json:"failed_count" dynamodbav:"failed_count"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
}

// EnabledChannels returns the rule's enabled channels in dispatch order.
func (r *ReminderRule) EnabledChannels() []Channel {
	var enabled []Channel
	for _, ch := range AllChannels {
		switch {
		case ch == ChannelEmail && r.EmailEnabled,
			ch == ChannelPush && r.PushEnabled,
			ch == ChannelInApp && r.InAppEnabled,
			ch == ChannelChat && r.ChatEnabled:
			enabled = append(enabled, ch)
		}
	}
	return enabled
}

// ReminderStatus defines the states of a reminder log row.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "PENDING"
	ReminderSent      ReminderStatus = "SENT"
	ReminderFailed    ReminderStatus = "FAILED"
	ReminderDelivered ReminderStatus = "DELIVERED"
)

// ReminderLog is the single per-(rule, user) record of a reminder delivery.
type ReminderLog struct {
	RuleId      string         `json:"rule_id" dynamodbav:"rule_id"`
	UserId      string         `json:"user_id" dynamodbav:"user_id"`
	Status      ReminderStatus `json:"status" dynamodbav:"status"`
	Channels    []Channel      `json:"channels,omitempty" dynamodbav:"channels,omitempty"`
	Attempts    int            `json:"attempts" dynamodbav:"attempts"`
	LastError   string         `json:"last_error,omitempty" dynamodbav:"last_error,omitempty"`
	ScheduledAt time.Time      `json:"scheduled_at" dynamodbav:"scheduled_at"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty" dynamodbav:"claimed_at,omitempty"`
	SentAt      *time.Time     `json:"sent_at,omitempty" dynamodbav:"sent_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty" dynamodbav:"failed_at,omitempty"`
}

// Subject is one candidate recipient of a rule, derived from an entitlement.
type Subject struct {
	UserId    string      `json:"user_id"`
	Profile   UserProfile `json:"profile"`
	ItemTitle string      `json:"item_title"`
	EventAt   time.Time   `json:"event_at"`
	Deadline  time.Time   `json:"deadline"`
}

// InAppNotification is a notification shown in the user's dashboard feed.
type InAppNotification struct {
	UserId         string    `json:"user_id" dynamodbav:"user_id"`
	NotificationId string    `json:"notification_id" dynamodbav:"notification_id"`
	Title          string    `json:"title" dynamodbav:"title"`
	Body           string    `json:"body" dynamodbav:"body"`
	Link           string    `json:"link,omitempty" dynamodbav:"link,omitempty"`
	SourceId       string    `json:"source_id,omitempty" dynamodbav:"source_id,omitempty"`
	Read           bool      `json:"read" dynamodbav:"read"`
	CreatedAt      time.Time `json:"created_at" dynamodbav:"created_at"`
}
