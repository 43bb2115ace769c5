package websockets_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chris/membership-settlement/pkg/auth"
	handler "github.com/chris/membership-settlement/pkg/handlers/websockets"
	"github.com/chris/membership-settlement/pkg/websockets"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + query
}

func TestServeHTTP(t *testing.T) {
	tokens := auth.NewFeedTokens("s3cret", time.Minute)

	t.Run("Publish Reaches Client", func(t *testing.T) {
		hub := websockets.NewHub(nil)
		server := httptest.NewServer(handler.NewHandler(hub, tokens, nil, nil))
		defer server.Close()
		token, _, err := tokens.Issue("u1")
		require.NoError(t, err)

		client, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token="+token), nil)
		require.NoError(t, err)
		defer client.Close()

		require.Eventually(t, func() bool { return hub.ConnectionCount("u1") == 1 }, time.Second, 10*time.Millisecond)

		err = hub.Publish(context.Background(), "u1", websockets.Message{
			Type:    websockets.MessageTypeEntitlementUpdate,
			Payload: websockets.EntitlementUpdatePayload{TransactionID: "tx-1", Granted: []string{"COURSE#course-1"}},
		})
		require.NoError(t, err)

		client.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		var msg struct {
			Type websockets.MessageType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, websockets.MessageTypeEntitlementUpdate, msg.Type)

		client.Close()
		assert.Eventually(t, func() bool { return hub.ConnectionCount("u1") == 0 }, time.Second, 10*time.Millisecond)
	})

	t.Run("Missing Token Refused", func(t *testing.T) {
		hub := websockets.NewHub(nil)
		server := httptest.NewServer(handler.NewHandler(hub, tokens, nil, nil))
		defer server.Close()

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "user_id=u1"), nil)

		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, 0, hub.ConnectionCount("u1"))
	})

	t.Run("Forged Token Refused", func(t *testing.T) {
		server := httptest.NewServer(handler.NewHandler(websockets.NewHub(nil), tokens, nil, nil))
		defer server.Close()
		forged, _, err := auth.NewFeedTokens("guessed", time.Minute).Issue("u1")
		require.NoError(t, err)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "token="+forged), nil)

		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Token For Another User", func(t *testing.T) {
		server := httptest.NewServer(handler.NewHandler(websockets.NewHub(nil), tokens, nil, nil))
		defer server.Close()
		token, _, err := tokens.Issue("u1")
		require.NoError(t, err)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "user_id=u2&token="+token), nil)

		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Bearer Header", func(t *testing.T) {
		hub := websockets.NewHub(nil)
		server := httptest.NewServer(handler.NewHandler(hub, tokens, nil, nil))
		defer server.Close()
		token, _, err := tokens.Issue("u1")
		require.NoError(t, err)

		client, _, err := websocket.DefaultDialer.Dial(wsURL(server, ""), http.Header{"Authorization": []string{"Bearer " + token}})
		require.NoError(t, err)
		defer client.Close()

		assert.Eventually(t, func() bool { return hub.ConnectionCount("u1") == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("Unauthenticated Mode Requires User", func(t *testing.T) {
		rr := httptest.NewRecorder()

		handler.NewHandler(websockets.NewHub(nil), nil, nil, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Origin Not Allowed", func(t *testing.T) {
		server := httptest.NewServer(handler.NewHandler(websockets.NewHub(nil), tokens, []string{"https://app.example.com"}, nil))
		defer server.Close()
		token, _, err := tokens.Issue("u1")
		require.NoError(t, err)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "token="+token), http.Header{"Origin": []string{"https://evil.example.com"}})

		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
