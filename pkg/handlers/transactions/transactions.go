package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chris/membership-settlement/pkg/mapping"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/scheduler"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime/types"
)

// Store is the storage the transaction endpoints need.
type Store interface {
	storage.TransactionReader
	CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
}

// TransactionsHandler holds the dependencies for transaction-related handlers.
type TransactionsHandler struct {
	Store     Store
	Scheduler scheduler.Scheduler
	Logger    *slog.Logger

	validate *validator.Validate
}

// NewTransactionsHandler creates a new TransactionsHandler. sched may be nil, in
// which case paid transactions wait for an explicit settlement trigger.
func NewTransactionsHandler(store Store, sched scheduler.Scheduler, logger *slog.Logger) *TransactionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionsHandler{Store: store, Scheduler: sched, Logger: logger, validate: validator.New()}
}

// NewTransaction is the body of POST /transactions.
type NewTransaction struct {
	Id            string                   `json:"id,omitempty" validate:"omitempty,max=64"`
	UserId        string                   `json:"user_id" validate:"required"`
	Amount        int64                    `json:"amount" validate:"gte=0"`
	Category      models.Category          `json:"category" validate:"oneof=MEMBERSHIP COURSE PRODUCT"`
	ItemId        string                   `json:"item_id" validate:"required"`
	AffiliateId   string                   `json:"affiliate_id,omitempty"`
	Status        models.TransactionStatus `json:"status,omitempty" validate:"omitempty,oneof=PENDING PENDING_CONFIRMATION SUCCESS"`
	PaymentMethod string                   `json:"payment_method,omitempty"`
	CustomerName  string                   `json:"customer_name,omitempty"`
	CustomerEmail *types.Email             `json:"customer_email,omitempty"`
}

// CreateTransaction records a checkout. A transaction recorded as SUCCESS is queued
// for settlement straight away.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var newTx NewTransaction
	if err := json.NewDecoder(r.Body).Decode(&newTx); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(newTx); err != nil {
		http.Error(w, fmt.Sprintf("Invalid transaction: %v", err), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	tx := &models.Transaction{
		Id:            newTx.Id,
		UserId:        newTx.UserId,
		Amount:        newTx.Amount,
		Category:      newTx.Category,
		ItemId:        newTx.ItemId,
		AffiliateId:   newTx.AffiliateId,
		Status:        newTx.Status,
		PaymentMethod: newTx.PaymentMethod,
		CustomerName:  newTx.CustomerName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if tx.Id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to generate transaction id: %v", err), http.StatusInternalServerError)
			return
		}
		tx.Id = id.String()
	}
	if tx.Status == "" {
		tx.Status = models.PENDING
	}
	if tx.Status == models.SUCCESS {
		tx.PaidAt = &now
	}
	if newTx.CustomerEmail != nil {
		tx.CustomerEmail = string(*newTx.CustomerEmail)
	}

	created, err := h.Store.CreateTransaction(r.Context(), tx)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			http.Error(w, "Transaction already exists", http.StatusConflict)
			return
		}
		h.Logger.Error("Failed to create transaction in store", "error", err)
		http.Error(w, fmt.Sprintf("Failed to record transaction: %v", err), http.StatusInternalServerError)
		return
	}

	// A lost enqueue is picked up by reconciliation.
	if created.Status == models.SUCCESS && h.Scheduler != nil {
		if err := h.Scheduler.ScheduleSettlement(r.Context(), created.Id, 0); err != nil {
			h.Logger.Error("Transaction recorded but failed to enqueue settlement", "transaction_id", created.Id, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, mapping.ToApiTransaction(created))
}

// GetTransactionById handles the logic for retrieving a transaction by its ID.
func (h *TransactionsHandler) GetTransactionById(w http.ResponseWriter, r *http.Request) {
	transactionId := chi.URLParam(r, "transactionId")
	domainTx, err := h.Store.GetTransaction(r.Context(), transactionId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to retrieve transaction: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, mapping.ToApiTransaction(domainTx))
}

// ListTransactionsByUserId handles the logic for retrieving all transactions for a user.
func (h *TransactionsHandler) ListTransactionsByUserId(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userId")
	domainTxs, err := h.Store.ListTransactionsByUserID(r.Context(), userId)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve transactions: %v", err), http.StatusInternalServerError)
		return
	}

	apiTxs := make([]*mapping.Transaction, len(domainTxs))
	for i := range domainTxs {
		apiTxs[i] = mapping.ToApiTransaction(&domainTxs[i])
	}
	writeJSON(w, http.StatusOK, apiTxs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
