package settlements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/chris/membership-settlement/pkg/mapping"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/settlement"
	"github.com/go-chi/chi/v5"
)

// Settler is the part of the settlement engine exposed over HTTP.
type Settler interface {
	Settle(ctx context.Context, txID string) (*settlement.Outcome, error)
	SettleBatch(ctx context.Context, txIDs []string) settlement.Summary
	Confirm(ctx context.Context, txID, actor string) (*settlement.Outcome, error)
	Refund(ctx context.Context, txID string) (*models.Transaction, error)
}

// SettlementsHandler holds the dependencies for settlement triggers.
type SettlementsHandler struct {
	Engine Settler
	Logger *slog.Logger
}

// NewSettlementsHandler creates a new SettlementsHandler.
func NewSettlementsHandler(engine Settler, logger *slog.Logger) *SettlementsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementsHandler{Engine: engine, Logger: logger}
}

// SettleRequest carries one transaction id or a batch of them.
type SettleRequest struct {
	TransactionId  string   `json:"transactionId"`
	TransactionIds []string `json:"transactionIds,omitempty"`
}

// ConfirmRequest names who confirmed a payment.
type ConfirmRequest struct {
	ConfirmedBy string `json:"confirmedBy"`
}

// Settle handles POST /settlements. A single id answers with the outcome, a batch
// with the summary.
func (h *SettlementsHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if len(req.TransactionIds) > 0 {
		summary := h.Engine.SettleBatch(r.Context(), req.TransactionIds)
		writeJSON(w, http.StatusOK, summary)
		return
	}
	if req.TransactionId == "" {
		http.Error(w, "transactionId is required", http.StatusBadRequest)
		return
	}

	outcome, err := h.Engine.Settle(r.Context(), req.TransactionId)
	if err != nil {
		h.writeError(w, req.TransactionId, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// Confirm handles POST /transactions/{transactionId}/confirm.
func (h *SettlementsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "transactionId")

	// The body is optional.
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ConfirmedBy == "" {
		req.ConfirmedBy = "admin"
	}

	outcome, err := h.Engine.Confirm(r.Context(), txID, req.ConfirmedBy)
	if err != nil {
		h.writeError(w, txID, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// Refund handles POST /transactions/{transactionId}/refund.
func (h *SettlementsHandler) Refund(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "transactionId")

	tx, err := h.Engine.Refund(r.Context(), txID)
	if err != nil {
		h.writeError(w, txID, err)
		return
	}
	writeJSON(w, http.StatusOK, mapping.ToApiTransaction(tx))
}

func (h *SettlementsHandler) writeError(w http.ResponseWriter, txID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, settlement.ErrTransactionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, settlement.ErrNotSettleable):
		status = http.StatusConflict
	case errors.Is(err, settlement.ErrItemNotFound):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, settlement.ErrPersistenceFailed):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		h.Logger.Error("Settlement failed", "transaction_id", txID, "error", err)
	} else {
		h.Logger.Warn("Settlement rejected", "transaction_id", txID, "error", err)
	}
	writeJSON(w, status, map[string]string{"transaction_id": txID, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
