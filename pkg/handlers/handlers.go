package handlers

import (
	"log/slog"
	"net/http"

	"github.com/chris/membership-settlement/pkg/handlers/notifications"
	"github.com/chris/membership-settlement/pkg/handlers/reminders"
	"github.com/chris/membership-settlement/pkg/handlers/settlements"
	"github.com/chris/membership-settlement/pkg/handlers/transactions"
	"github.com/chris/membership-settlement/pkg/handlers/wallets"
	"github.com/chris/membership-settlement/pkg/handlers/websockets"
	"github.com/chris/membership-settlement/pkg/metrics"
	mw "github.com/chris/membership-settlement/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ApiHandler groups every HTTP handler of the service.
type ApiHandler struct {
	Settlements   *settlements.SettlementsHandler
	Transactions  *transactions.TransactionsHandler
	Wallets       *wallets.WalletsHandler
	Notifications *notifications.NotificationsHandler
	Reminders     *reminders.RemindersHandler
	WebSocket     *websockets.Handler

	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// NewRouter mounts the handlers on a chi router. Everything except health, metrics
// and the live feed sits behind the shared secret. The live feed checks a feed
// token issued behind the secret.
func NewRouter(h *ApiHandler, secret string, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.NewStructuredLogger(logger, m))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	if h.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", h.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireSecret(secret, logger))
		r.Post("/settlements", h.Settlements.Settle)
		r.Post("/transactions", h.Transactions.CreateTransaction)
		r.Post("/transactions/{transactionId}/confirm", h.Settlements.Confirm)
		r.Post("/transactions/{transactionId}/refund", h.Settlements.Refund)
		r.Post("/reminders/run", h.Reminders.Run)

		r.Get("/transactions/{transactionId}", h.Transactions.GetTransactionById)
		r.Get("/users/{userId}/transactions", h.Transactions.ListTransactionsByUserId)
		r.Get("/users/{userId}/entitlements", h.Wallets.ListEntitlements)
		r.Get("/users/{userId}/notifications", h.Notifications.ListNotifications)
		r.Get("/wallets/{userId}", h.Wallets.GetWalletByUserId)
		if h.WebSocket != nil {
			r.Post("/users/{userId}/feed-token", h.WebSocket.IssueToken)
		}
	})

	return r
}
