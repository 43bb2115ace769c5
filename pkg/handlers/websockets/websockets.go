package websockets

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chris/membership-settlement/pkg/auth"
	"github.com/chris/membership-settlement/pkg/websockets"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// Handler upgrades dashboard clients to a live feed of their notifications,
// entitlement changes and wallet credits.
type Handler struct {
	connManager websockets.ConnectionManager
	tokens      *auth.FeedTokens
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewHandler creates a new Handler. A nil tokens admits any user_id, which config
// only allows in development. allowedOrigins empty accepts any origin.
func NewHandler(connManager websockets.ConnectionManager, tokens *auth.FeedTokens, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	if tokens == nil {
		logger.Warn("feed tokens not configured, live feed is unauthenticated")
	}
	return &Handler{
		connManager: connManager,
		tokens:      tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return len(allowed) == 0 || allowed[r.Header.Get("Origin")]
			},
		},
		logger: logger,
	}
}

// IssueToken handles POST /users/{userId}/feed-token. It sits behind the shared
// secret and is called by the dashboard backend on behalf of a signed-in user.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		http.Error(w, "Feed tokens are not configured", http.StatusNotImplemented)
		return
	}
	token, expiresAt, err := h.tokens.Issue(chi.URLParam(r, "userId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"token": token, "expires_at": expiresAt.UTC()}); err != nil {
		h.logger.Error("failed to encode feed token", "error", err)
	}
}

// ServeHTTP handles GET /ws?token=<feed token>. Browsers cannot set headers on an
// upgrade, so the token may also come as a bearer Authorization header.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, status := h.authenticate(r)
	if status != http.StatusOK {
		h.logger.Warn("rejected live feed connection", "status", status, "remote_addr", r.RemoteAddr)
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	connectionID := uuid.New().String()
	logger := h.logger.With("userId", userID, "connectionId", connectionID)
	logger.Info("Client connected")

	// The request context ends with the handler; removal must still run.
	ctx := context.WithoutCancel(r.Context())
	if err := h.connManager.AddConnection(ctx, userID, connectionID, conn); err != nil {
		logger.Error("failed to save connection", "error", err)
		return
	}
	defer func() {
		logger.Info("Client disconnected")
		if err := h.connManager.RemoveConnection(ctx, userID, connectionID); err != nil {
			logger.Error("failed to delete connection", "error", err)
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Clients do not send messages; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("unexpected close error", "error", err)
			}
			break
		}
	}
}

// authenticate resolves the user a connection belongs to before the upgrade.
func (h *Handler) authenticate(r *http.Request) (string, int) {
	requested := r.URL.Query().Get("user_id")
	if h.tokens == nil {
		if requested == "" {
			return "", http.StatusBadRequest
		}
		return requested, http.StatusOK
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
			token = strings.TrimSpace(value)
		}
	}
	if token == "" {
		return "", http.StatusUnauthorized
	}
	userID, err := h.tokens.Verify(token)
	if err != nil {
		return "", http.StatusUnauthorized
	}
	if requested != "" && requested != userID {
		return "", http.StatusForbidden
	}
	return userID, http.StatusOK
}
