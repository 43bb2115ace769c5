package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chris/membership-settlement/pkg/reminder"
)

// Runner is satisfied by *reminder.Runner.
type Runner interface {
	Run(ctx context.Context, now time.Time) (reminder.Summary, error)
}

// RemindersHandler exposes the reminder pass to external schedulers.
type RemindersHandler struct {
	Runner  Runner
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewRemindersHandler creates a new RemindersHandler.
func NewRemindersHandler(runner Runner, timeout time.Duration, logger *slog.Logger) *RemindersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemindersHandler{Runner: runner, Timeout: timeout, Logger: logger, Now: time.Now}
}

// Run handles POST /reminders/run. ?at=<RFC3339> evaluates the pass at another instant.
func (h *RemindersHandler) Run(w http.ResponseWriter, r *http.Request) {
	now := h.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid at parameter: %v", err), http.StatusBadRequest)
			return
		}
		now = at.UTC()
	}

	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	status := http.StatusOK
	summary, err := h.Runner.Run(ctx, now)
	if err != nil {
		h.Logger.Error("Reminder pass failed", "error", err)
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
