package config

import (
	"errors"

	"github.com/oapi-codegen/runtime/types"
)

// Provider is a configured delivery backend. Each concrete type carries only the
// fields its backend requires.
type Provider interface {
	Name() string
	Enabled() bool
	Validate() error
}

// SendGridProvider configures the email channel.
type SendGridProvider struct {
	APIKey    string      `env:"SENDGRID_API_KEY"`
	FromEmail types.Email `env:"EMAIL_FROM" env-default:"no-reply@example.com"`
	FromName  string      `env:"EMAIL_FROM_NAME" env-default:"Membership"`
}

func (p SendGridProvider) Name() string  { return "sendgrid" }
func (p SendGridProvider) Enabled() bool { return p.APIKey != "" }

func (p SendGridProvider) Validate() error {
	if p.FromEmail == "" {
		return errors.New("EMAIL_FROM is required")
	}
	return nil
}

// OneSignalProvider configures the push channel.
type OneSignalProvider struct {
	AppID   string `env:"ONESIGNAL_APP_ID"`
	APIKey  string `env:"ONESIGNAL_API_KEY"`
	BaseURL string `env:"ONESIGNAL_BASE_URL" env-default:"https://onesignal.com/api/v1"`
}

func (p OneSignalProvider) Name() string  { return "onesignal" }
func (p OneSignalProvider) Enabled() bool { return p.AppID != "" || p.APIKey != "" }

func (p OneSignalProvider) Validate() error {
	if p.AppID == "" || p.APIKey == "" {
		return errors.New("ONESIGNAL_APP_ID and ONESIGNAL_API_KEY are both required")
	}
	return nil
}

// WhatsAppProvider configures the chat channel gateway.
type WhatsAppProvider struct {
	BaseURL       string  `env:"WHATSAPP_BASE_URL"`
	Token         string  `env:"WHATSAPP_TOKEN"`
	Sender        string  `env:"WHATSAPP_SENDER"`
	DefaultRegion string  `env:"WHATSAPP_DEFAULT_REGION" env-default:"ID"`
	RatePerSecond float64 `env:"WHATSAPP_RATE_PER_SECOND" env-default:"5"`
	Burst         int     `env:"WHATSAPP_BURST" env-default:"5"`
}

func (p WhatsAppProvider) Name() string  { return "whatsapp" }
func (p WhatsAppProvider) Enabled() bool { return p.BaseURL != "" }

func (p WhatsAppProvider) Validate() error {
	if p.Token == "" {
		return errors.New("WHATSAPP_TOKEN is required")
	}
	if p.RatePerSecond <= 0 || p.Burst < 1 {
		return errors.New("WHATSAPP_RATE_PER_SECOND and WHATSAPP_BURST must be positive")
	}
	return nil
}
