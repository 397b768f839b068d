package payment

import (
	"errors"
	"testing"
	"time"

	"chefbook/internal/domain"
	"chefbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidBooking() *models.Booking {
	return &models.Booking{
		ID:            "b1",
		Date:          time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC),
		StartTime:     "18:00",
		DurationHours: 2,
		TotalPrice:    1000,
		Status:        models.StatusConfirmed,
		PaymentStatus: models.PaymentPaid,
	}
}

func TestComputeRefund_Boundaries(t *testing.T) {
	b := paidBooking()
	start := time.Date(2026, 11, 10, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		hours      int
		wantAmount int64
		noRefund   bool
	}{
		{73, 1000, false},
		{72, 800, false},
		{49, 800, false},
		{48, 500, false},
		{25, 500, false},
		{24, 0, true},
		{1, 0, true},
		{-3, 0, true},
	}

	for _, tt := range tests {
		t.Run(time.Duration(tt.hours*int(time.Hour)).String(), func(t *testing.T) {
			now := start.Add(-time.Duration(tt.hours) * time.Hour)
			q, err := ComputeRefund(b, now)
			if tt.noRefund {
				var nre *domain.NoRefundEligibleError
				require.True(t, errors.As(err, &nre))
				assert.Equal(t, 24, nre.CutoffHours)
				assert.Contains(t, err.Error(), "24h")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, q.Amount)
			assert.InDelta(t, float64(tt.hours), q.HoursBefore, 1e-9)
		})
	}
}

func TestComputeRefund_JustPastCutoff(t *testing.T) {
	b := paidBooking()
	start := time.Date(2026, 11, 10, 18, 0, 0, 0, time.UTC)

	q, err := ComputeRefund(b, start.Add(-72*time.Hour-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1.0, q.Fraction)

	q, err = ComputeRefund(b, start.Add(-24*time.Hour-time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.Amount)
}

func TestComputeRefund_UsesLocationOfNow(t *testing.T) {
	b := paidBooking()
	ist := time.FixedZone("IST", 5*3600+1800)

	// 18:00 IST on the 10th is 12:30 UTC; 48.5h before that is 12:00 UTC on the 8th.
	now := time.Date(2026, 11, 8, 12, 0, 0, 0, time.UTC).In(ist)
	q, err := ComputeRefund(b, now)
	require.NoError(t, err)
	assert.InDelta(t, 48.5, q.HoursBefore, 1e-9)
	assert.Equal(t, int64(800), q.Amount)
}

func TestComputeRefund_RequiresPaid(t *testing.T) {
	b := paidBooking()
	b.PaymentStatus = models.PaymentPending
	_, err := ComputeRefund(b, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}
