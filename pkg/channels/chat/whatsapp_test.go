package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/dispatch"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) config.WhatsAppProvider {
	return config.WhatsAppProvider{BaseURL: url, Token: "secret", Sender: "6281100000000", DefaultRegion: "ID", RatePerSecond: 100, Burst: 1}
}

func testMessage() *dispatch.Message {
	return &dispatch.Message{
		UserId:    "u1",
		Recipient: models.UserProfile{UserId: "u1", Phone: "0812-3456-789"},
		Chat:      models.ChatContent{Message: "Hi Sari, 3 days left", CTA: "Renew", CTALink: "https://app.example.com/checkout"},
	}
}

func TestSender_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		var got sendRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/send", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()
		sender := New(testConfig(server.URL), server.Client())

		err := sender.Send(ctx, testMessage())

		require.NoError(t, err)
		assert.Equal(t, "628123456789", got.To)
		assert.Equal(t, "Hi Sari, 3 days left\n\nRenew: https://app.example.com/checkout", got.Message)
	})

	t.Run("Gateway Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()
		sender := New(testConfig(server.URL), server.Client())

		err := sender.Send(ctx, testMessage())

		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("No Phone", func(t *testing.T) {
		sender := New(testConfig("http://unused"), nil)
		msg := testMessage()
		msg.Recipient.Phone = ""

		err := sender.Send(ctx, msg)

		assert.ErrorIs(t, err, ErrNoPhone)
	})

	t.Run("Rate Limit Honours Context", func(t *testing.T) {
		cfg := testConfig("http://unused")
		cfg.RatePerSecond = 0.001
		sender := New(cfg, nil)
		require.True(t, sender.limiter.Allow())
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		err := sender.Send(ctx, testMessage())

		assert.ErrorContains(t, err, "rate limiter")
	})
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "628123456789", NormalizePhone("0812-3456-789", "ID"))
	assert.Equal(t, "628123456789", NormalizePhone("+62 812 3456 789", "ID"))
	assert.Equal(t, "6591234567", NormalizePhone("+65 9123 4567", "ID"))
	assert.Equal(t, "", NormalizePhone("n/a", "ID"))
}
