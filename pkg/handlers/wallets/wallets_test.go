package wallets_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chris/membership-settlement/pkg/handlers/wallets"
	"github.com/chris/membership-settlement/pkg/mapping"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage/memory"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func router(h *wallets.WalletsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/wallets/{userId}", h.GetWalletByUserId)
	r.Get("/users/{userId}/entitlements", h.ListEntitlements)
	return r
}

func TestGetWalletByUserId(t *testing.T) {
	store := memory.New()
	_, err := store.CreditCommission(context.Background(), &models.CommissionEntry{TransactionId: "tx-1", AffiliateId: "aff-1", Amount: 275000})
	require.NoError(t, err)
	h := wallets.NewWalletsHandler(store)

	t.Run("Success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/wallets/aff-1", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var out mapping.Wallet
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
		assert.Equal(t, int64(275000), out.Balance)
		assert.Equal(t, int64(275000), out.TotalEarnings)
	})

	t.Run("Never Credited", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/wallets/nobody", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var out mapping.Wallet
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
		assert.Equal(t, "nobody", out.UserId)
		assert.Zero(t, out.Balance)
	})
}

func TestListEntitlements(t *testing.T) {
	store := memory.New()
	store.PutEntitlement(models.Entitlement{
		UserId: "u1", GrantKey: models.GrantKey(models.EntitlementMembership, "plan-12"),
		Kind: models.EntitlementMembership, ItemId: "plan-12",
		StartsAt: now.AddDate(-1, 0, 0), EndsAt: now.AddDate(0, 0, -1),
	})
	store.PutEntitlement(models.Entitlement{
		UserId: "u1", GrantKey: models.GrantKey(models.EntitlementCourse, "course-1"),
		Kind: models.EntitlementCourse, ItemId: "course-1",
		StartsAt: now.AddDate(0, 0, -1), EndsAt: now.AddDate(100, 0, 0),
	})
	h := wallets.NewWalletsHandler(store)
	h.Now = func() time.Time { return now }

	t.Run("All", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/u1/entitlements", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var out []mapping.Entitlement
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
		require.Len(t, out, 2)
		assert.Equal(t, "course-1", out[0].ItemId)
		assert.True(t, out[0].Active)
		assert.False(t, out[1].Active)
	})

	t.Run("Active Only", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/u1/entitlements?active=true", nil))

		var out []mapping.Entitlement
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
		require.Len(t, out, 1)
		assert.Equal(t, models.EntitlementCourse, out[0].Kind)
	})
}
