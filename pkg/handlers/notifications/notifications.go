package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/chris/membership-settlement/pkg/mapping"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/go-chi/chi/v5"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// NotificationsHandler serves a user's in-app feed.
type NotificationsHandler struct {
	Store storage.NotificationReader
}

// NewNotificationsHandler creates a new NotificationsHandler.
func NewNotificationsHandler(store storage.NotificationReader) *NotificationsHandler {
	return &NotificationsHandler{Store: store}
}

// ListNotifications returns the newest notifications of a user. ?limit caps the page.
func (h *NotificationsHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userId")

	limit := int32(defaultLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = int32(min(n, maxLimit))
	}

	domainEntries, err := h.Store.ListNotifications(r.Context(), userId, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve notifications: %v", err), http.StatusInternalServerError)
		return
	}

	apiEntries := make([]*mapping.Notification, len(domainEntries))
	for i := range domainEntries {
		apiEntries[i] = mapping.ToApiNotification(&domainEntries[i])
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(apiEntries); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
