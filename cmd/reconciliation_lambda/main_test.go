package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chris/membership-settlement/pkg/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) ReconcileStuck(ctx context.Context, olderThan time.Duration) (settlement.Summary, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(settlement.Summary), args.Error(1)
}

func TestHandleRequest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Success", func(t *testing.T) {
		engine := new(mockReconciler)
		engine.On("ReconcileStuck", mock.Anything, 20*time.Minute).Return(settlement.Summary{
			Processed: 2, Settled: 1, Failed: 1, Errors: []string{"tx-2: catalog item not found"},
		}, nil)
		h := &Handler{Engine: engine, Threshold: 20 * time.Minute, Logger: logger}

		summary, err := h.HandleRequest(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Settled)
		engine.AssertExpectations(t)
	})

	t.Run("List Fails", func(t *testing.T) {
		engine := new(mockReconciler)
		engine.On("ReconcileStuck", mock.Anything, mock.Anything).Return(settlement.Summary{}, errors.New("scan throttled"))
		h := &Handler{Engine: engine, Threshold: time.Minute, Logger: logger}

		_, err := h.HandleRequest(context.Background())

		assert.ErrorContains(t, err, "scan throttled")
	})
}
