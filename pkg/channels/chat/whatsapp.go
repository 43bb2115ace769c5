// Package chat is the WhatsApp gateway channel.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/dispatch"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/time/rate"
)

var (
	ErrNoPhone  = errors.New("recipient has no phone number")
	ErrRejected = errors.New("whatsapp gateway rejected the message")
)

type sendRequest struct {
	Sender  string `json:"sender,omitempty"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// Sender posts chat messages to an HTTP WhatsApp gateway. Outgoing messages share
// one token-bucket limiter because gateways throttle per sender number.
type Sender struct {
	baseURL string
	token   string
	from    string
	region  string
	limiter *rate.Limiter
	client  *http.Client
}

func New(cfg config.WhatsAppProvider, client *http.Client) *Sender {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sender{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		from:    cfg.Sender,
		region:  cfg.DefaultRegion,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		client:  client,
	}
}

var _ dispatch.Sender = (*Sender)(nil)

func (s *Sender) Channel() models.Channel { return models.ChannelChat }

func (s *Sender) Send(ctx context.Context, msg *dispatch.Message) error {
	phone := NormalizePhone(msg.Recipient.Phone, s.region)
	if phone == "" {
		return ErrNoPhone
	}
	text := msg.Chat.Message
	if text == "" {
		return errors.New("empty chat template")
	}
	if msg.Chat.CTA != "" && msg.Chat.CTALink != "" {
		text += "\n\n" + msg.Chat.CTA + ": " + msg.Chat.CTALink
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(sendRequest{Sender: s.from, To: phone, Message: text})
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send chat message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// NormalizePhone parses phone in the sender's default region and returns it in
// E.164 digits without the leading plus. Unparseable input yields "".
func NormalizePhone(phone, region string) string {
	parsed, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(phonenumbers.Format(parsed, phonenumbers.E164), "+")
}
