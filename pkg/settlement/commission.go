package settlement

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chris/membership-settlement/pkg/models"
)

// DefaultCommissionRate is the percentage paid when an item carries no rate.
const DefaultCommissionRate = 30

// lifetimeYears is how far a LIFETIME grant extends. Grants never carry a null end.
const lifetimeYears = 100

var ErrUnknownDuration = errors.New("unknown membership duration")

// WindowEnd returns the end of a membership window of the given code starting at from.
func WindowEnd(code models.DurationCode, from time.Time) (time.Time, error) {
	switch code {
	case models.ONE_MONTH:
		return from.AddDate(0, 0, 30), nil
	case models.THREE_MONTHS:
		return from.AddDate(0, 0, 90), nil
	case models.SIX_MONTHS:
		return from.AddDate(0, 0, 180), nil
	case models.TWELVE_MONTHS:
		return from.AddDate(0, 0, 365), nil
	case models.LIFETIME:
		return from.AddDate(lifetimeYears, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownDuration, code)
	}
}

// Commission is the computed affiliate payout for one transaction.
type Commission struct {
	Amount int64
	Type   models.CommissionType
	Rate   float64
}

// ComputeCommission applies the label rate table first, then the item's own
// commission settings. FLAT amounts are capped at the transaction amount.
func ComputeCommission(amount int64, item *models.CatalogItem, flat map[string]int64) Commission {
	if amount <= 0 {
		return Commission{}
	}
	if fixed, ok := flat[item.Label]; ok {
		return Commission{Amount: min(fixed, amount), Type: models.CommissionFlat, Rate: float64(fixed)}
	}

	switch item.CommissionType {
	case models.CommissionFlat:
		fixed := int64(math.Round(item.CommissionRate))
		if fixed <= 0 {
			return Commission{Type: models.CommissionFlat}
		}
		return Commission{Amount: min(fixed, amount), Type: models.CommissionFlat, Rate: item.CommissionRate}
	default:
		rate := item.CommissionRate
		if rate <= 0 {
			rate = DefaultCommissionRate
		}
		value := int64(math.Round(float64(amount) * rate / 100))
		return Commission{Amount: min(value, amount), Type: models.CommissionPercentage, Rate: rate}
	}
}
