package wallets

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/chris/membership-settlement/pkg/mapping"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/go-chi/chi/v5"
)

// Store is the storage the account endpoints read from.
type Store interface {
	storage.WalletReader
	storage.EntitlementReader
}

// WalletsHandler serves a user's affiliate wallet and access grants.
type WalletsHandler struct {
	Store Store
	Now   func() time.Time
}

// NewWalletsHandler creates a new WalletsHandler.
func NewWalletsHandler(store Store) *WalletsHandler {
	return &WalletsHandler{Store: store, Now: time.Now}
}

// GetWalletByUserId handles the logic for retrieving a user's wallet. A user who
// never earned a commission gets an empty wallet.
func (h *WalletsHandler) GetWalletByUserId(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userId")
	domainWallet, err := h.Store.GetWallet(r.Context(), userId)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			http.Error(w, fmt.Sprintf("Failed to retrieve wallet: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, &mapping.Wallet{UserId: userId})
		return
	}

	writeJSON(w, http.StatusOK, mapping.ToApiWallet(domainWallet))
}

// ListEntitlements returns every grant a user holds, newest expiry first.
// ?active=true drops lapsed grants.
func (h *WalletsHandler) ListEntitlements(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userId")
	grants, err := h.Store.ListEntitlementsByUser(r.Context(), userId)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve entitlements: %v", err), http.StatusInternalServerError)
		return
	}

	sort.Slice(grants, func(i, j int) bool {
		return grants[i].EndsAt.After(grants[j].EndsAt)
	})

	now := h.Now()
	activeOnly := r.URL.Query().Get("active") == "true"
	out := make([]*mapping.Entitlement, 0, len(grants))
	for i := range grants {
		e := mapping.ToApiEntitlement(&grants[i], now)
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
