package payment

import (
	"math"
	"time"

	"chefbook/internal/domain"
	"chefbook/internal/models"
)

// RefundTier grants Fraction of the total when notice exceeds MinHours.
type RefundTier struct {
	MinHours int
	Fraction float64
}

// RefundTiers is ordered from the longest notice down.
var RefundTiers = []RefundTier{
	{MinHours: 72, Fraction: 1.0},
	{MinHours: 48, Fraction: 0.8},
	{MinHours: 24, Fraction: 0.5},
}

// RefundQuote is the outcome of ComputeRefund.
type RefundQuote struct {
	HoursBefore float64 `json:"hours_before"`
	Fraction    float64 `json:"fraction"`
	Amount      int64   `json:"amount"`
}

// ComputeRefund prices a cancellation of a paid booking at now. The booking's
// date and start time are read as wall-clock values in now's location.
// Bookings cancelled 24 hours or less before start get a *domain.NoRefundEligibleError.
func ComputeRefund(b *models.Booking, now time.Time) (RefundQuote, error) {
	if b.PaymentStatus != models.PaymentPaid {
		return RefundQuote{}, domain.NewValidationError("payment_status", "only paid bookings can be refunded, booking is %s", b.PaymentStatus)
	}
	start, err := b.ScheduledStart(now.Location())
	if err != nil {
		return RefundQuote{}, domain.NewValidationError("start_time", "%v", err)
	}

	hours := start.Sub(now).Hours()
	for _, tier := range RefundTiers {
		if hours > float64(tier.MinHours) {
			return RefundQuote{
				HoursBefore: hours,
				Fraction:    tier.Fraction,
				Amount:      int64(math.Round(float64(b.TotalPrice) * tier.Fraction)),
			}, nil
		}
	}

	cutoff := RefundTiers[len(RefundTiers)-1].MinHours
	return RefundQuote{HoursBefore: hours}, &domain.NoRefundEligibleError{HoursBefore: hours, CutoffHours: cutoff}
}
