// Package email is the SendGrid email channel.
package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/dispatch"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	ErrNoAddress     = errors.New("recipient has no email address")
	ErrNotConfigured = errors.New("sendgrid is not configured")
)

// Client is the part of the SendGrid client the sender uses.
type Client interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Sender sends email through SendGrid. Without a client it either only logs, in
// console mode, or fails every send with ErrNotConfigured.
type Sender struct {
	client   Client
	console  bool
	fromName string
	from     string
	logger   *slog.Logger
}

// New creates a Sender from the provider config. An unset API key selects console
// mode when console is true, which callers only allow in development.
func New(cfg config.SendGridProvider, console bool, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	var client Client
	if cfg.Enabled() {
		client = sendgrid.NewSendClient(cfg.APIKey)
		logger.Info("Email channel initialized with SendGrid")
	} else if console {
		logger.Warn("Email channel in console-only mode, set SENDGRID_API_KEY for production")
	} else {
		logger.Error("SENDGRID_API_KEY not set, email deliveries will fail")
	}
	s := NewWithClient(client, string(cfg.FromEmail), cfg.FromName, logger)
	s.console = console
	return s
}

func NewWithClient(client Client, fromEmail, fromName string, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{client: client, from: fromEmail, fromName: fromName, logger: logger}
}

var _ dispatch.Sender = (*Sender)(nil)

func (s *Sender) Channel() models.Channel { return models.ChannelEmail }

func (s *Sender) Send(ctx context.Context, msg *dispatch.Message) error {
	if msg.Recipient.Email == "" {
		return ErrNoAddress
	}
	content := msg.Email
	if content.Subject == "" && content.Body == "" {
		return errors.New("empty email template")
	}

	if s.client == nil {
		if !s.console {
			return ErrNotConfigured
		}
		s.logger.Info("Email not sent (console mode)", "to", msg.Recipient.Email, "subject", content.Subject)
		return nil
	}

	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail(msg.Recipient.Name, msg.Recipient.Email)
	message := mail.NewSingleEmail(from, content.Subject, to, plainText(content), htmlBody(content))

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}
	s.logger.Debug("Email sent", "to", msg.Recipient.Email, "status", response.StatusCode)
	return nil
}

func plainText(c models.EmailContent) string {
	text := c.Body
	if c.CTA != "" && c.CTALink != "" {
		text += "\n\n" + c.CTA + ": " + c.CTALink
	}
	return text
}

func htmlBody(c models.EmailContent) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(c.Body, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	if c.CTA != "" && c.CTALink != "" {
		fmt.Fprintf(&b, `<p><a href="%s" style="background-color: #2196F3; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">%s</a></p>`,
			html.EscapeString(c.CTALink), html.EscapeString(c.CTA))
	}
	b.WriteString("</body></html>")
	return b.String()
}
