// Package push is the OneSignal push notification channel.
package push

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
)

var ErrRejected = errors.New("onesignal rejected the notification")

type notificationRequest struct {
	AppID                  string            `json:"app_id"`
	IncludePlayerIDs       []string          `json:"include_player_ids,omitempty"`
	IncludeExternalUserIDs []string          `json:"include_external_user_ids,omitempty"`
	Headings               map[string]string `json:"headings"`
	Contents               map[string]string `json:"contents"`
	URL                    string            `json:"url,omitempty"`
}

type notificationResponse struct {
	ID     string          `json:"id"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

// Sender posts notifications to the OneSignal REST API.
type Sender struct {
	appID   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a Sender. client may be nil to use http.DefaultClient; the dispatcher
// bounds every call with its own timeout.
func New(cfg config.OneSignalProvider, client *http.Client) *Sender {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sender{
		appID:   cfg.AppID,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

var _ dispatch.Sender = (*Sender)(nil)

func (s *Sender) Channel() models.Channel { return models.ChannelPush }

func (s *Sender) Send(ctx context.Context, msg *dispatch.Message) error {
	if msg.Push.Body == "" {
		return errors.New("empty push template")
	}
	reqBody := notificationRequest{
		AppID:    s.appID,
		Headings: map[string]string{"en": msg.Push.Title},
		Contents: map[string]string{"en": msg.Push.Body},
		URL:      msg.Push.Link,
	}
	if msg.Recipient.PushPlayer != "" {
		reqBody.IncludePlayerIDs = []string{msg.Recipient.PushPlayer}
	} else {
		reqBody.IncludeExternalUserIDs = []string{msg.UserId}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal push notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Basic "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read push response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out notificationResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode push response: %w", err)
	}
	// OneSignal answers 200 with an errors field when no subscriber matched.
	if out.ID == "" || (len(out.Errors) > 0 && string(out.Errors) != "null") {
		return fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(string(raw)))
	}
	return nil
}
