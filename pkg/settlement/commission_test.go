package settlement

import (
	"testing"
	"time"

	"github.com/chris/membership-settlement/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowEnd(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		code models.DurationCode
		want time.Time
	}{
		{models.ONE_MONTH, from.AddDate(0, 0, 30)},
		{models.THREE_MONTHS, from.AddDate(0, 0, 90)},
		{models.SIX_MONTHS, from.AddDate(0, 0, 180)},
		{models.TWELVE_MONTHS, from.AddDate(0, 0, 365)},
		{models.LIFETIME, time.Date(2126, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			got, err := WindowEnd(tc.code, from)

			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
		})
	}

	t.Run("Unknown", func(t *testing.T) {
		_, err := WindowEnd("FORTNIGHT", from)

		assert.ErrorIs(t, err, ErrUnknownDuration)
	})
}

func TestComputeCommission(t *testing.T) {
	flat := map[string]int64{"Paket Ekspor Yuk 12 Bulan": 275000}

	t.Run("Label Table", func(t *testing.T) {
		item := &models.CatalogItem{Label: "Paket Ekspor Yuk 12 Bulan", CommissionType: models.CommissionPercentage, CommissionRate: 10}

		got := ComputeCommission(899000, item, flat)

		assert.Equal(t, Commission{Amount: 275000, Type: models.CommissionFlat, Rate: 275000}, got)
	})

	t.Run("Flat Capped At Amount", func(t *testing.T) {
		item := &models.CatalogItem{CommissionType: models.CommissionFlat, CommissionRate: 50000}

		got := ComputeCommission(20000, item, nil)

		assert.Equal(t, int64(20000), got.Amount)
	})

	t.Run("Percentage Rounded", func(t *testing.T) {
		item := &models.CatalogItem{CommissionType: models.CommissionPercentage, CommissionRate: 15}

		got := ComputeCommission(99999, item, nil)

		assert.Equal(t, int64(15000), got.Amount)
		assert.Equal(t, models.CommissionPercentage, got.Type)
	})

	t.Run("Default Rate", func(t *testing.T) {
		got := ComputeCommission(100000, &models.CatalogItem{}, nil)

		assert.Equal(t, int64(30000), got.Amount)
		assert.Equal(t, float64(DefaultCommissionRate), got.Rate)
	})

	t.Run("Zero Amount", func(t *testing.T) {
		got := ComputeCommission(0, &models.CatalogItem{Label: "Paket Ekspor Yuk 12 Bulan"}, flat)

		assert.Zero(t, got.Amount)
	})
}
