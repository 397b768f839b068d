// Package pricing computes booking prices. Everything here is pure: the same request
// always yields the same quote.
package pricing

import (
	"math"
	"time"

	"chefbook/internal/domain"
	"chefbook/internal/models"
)

const (
	WeekendSurge       = 1.2
	WeekendSurgeReason = "Weekend Demand"
)

// ServiceMultipliers maps each service type to its rate multiplier.
var ServiceMultipliers = map[models.ServiceType]float64{
	models.ServiceBirthday: 1.0,
	models.ServiceMarriage: 1.5,
	models.ServiceDaily:    0.8,
}

// GuestTier applies Multiplier to parties of at least MinGuests.
type GuestTier struct {
	MinGuests  int
	Multiplier float64
}

// GuestTiers is ordered by ascending MinGuests.
var GuestTiers = []GuestTier{
	{MinGuests: 1, Multiplier: 1.0},
	{MinGuests: 7, Multiplier: 1.15},
	{MinGuests: 16, Multiplier: 1.3},
}

// QuoteRequest holds the inputs of a quote.
type QuoteRequest struct {
	ServiceType   models.ServiceType
	HourlyRate    int64
	DurationHours int
	GuestCount    int
	// Date must already be the intended local calendar day; only its weekday is read.
	Date        time.Time
	AddOnPrices []int64
}

// Breakdown is a priced quote.
type Breakdown struct {
	BasePrice         int64   `json:"base_price"`
	ServiceMultiplier float64 `json:"service_multiplier"`
	GuestMultiplier   float64 `json:"guest_multiplier"`
	SurgeMultiplier   float64 `json:"surge_multiplier"`
	SurgeReason       string  `json:"surge_reason"`
	AddOnTotal        int64   `json:"add_on_total"`
	TotalPrice        int64   `json:"total_price"`
}

// Validate checks the request before quoting.
func (r QuoteRequest) Validate() error {
	if !r.ServiceType.Valid() {
		return domain.NewValidationError("service_type", "must be one of birthday, marriage, daily")
	}
	if r.DurationHours < 1 {
		return domain.NewValidationError("duration_hours", "must be at least 1")
	}
	if r.GuestCount < 1 {
		return domain.NewValidationError("guest_count", "must be at least 1")
	}
	if r.HourlyRate < 0 {
		return domain.NewValidationError("hourly_rate", "must not be negative")
	}
	return nil
}

// Quote prices a booking.
//
// total = round(base × service × guests × surge) + add-ons, where base = rate × hours.
func Quote(r QuoteRequest) (Breakdown, error) {
	if err := r.Validate(); err != nil {
		return Breakdown{}, err
	}

	q := Breakdown{
		BasePrice:         r.HourlyRate * int64(r.DurationHours),
		ServiceMultiplier: ServiceMultipliers[r.ServiceType],
		GuestMultiplier:   GuestMultiplier(r.GuestCount),
	}
	q.SurgeMultiplier, q.SurgeReason = Surge(r.Date)

	for _, p := range r.AddOnPrices {
		q.AddOnTotal += p
	}

	scaled := float64(q.BasePrice) * q.ServiceMultiplier * q.GuestMultiplier * q.SurgeMultiplier
	q.TotalPrice = int64(math.Round(scaled)) + q.AddOnTotal
	return q, nil
}

// Surge returns the demand multiplier for date. Friday through Sunday count as weekend.
func Surge(date time.Time) (float64, string) {
	switch date.Weekday() {
	case time.Friday, time.Saturday, time.Sunday:
		return WeekendSurge, WeekendSurgeReason
	}
	return 1.0, ""
}

// GuestMultiplier returns the multiplier of the highest tier guests reaches.
func GuestMultiplier(guests int) float64 {
	m := 1.0
	for _, t := range GuestTiers {
		if guests >= t.MinGuests {
			m = t.Multiplier
		}
	}
	return m
}

// Apply copies a breakdown onto a booking.
func Apply(b *models.Booking, q Breakdown) {
	b.BasePrice = q.BasePrice
	b.ServiceMultiplier = q.ServiceMultiplier
	b.GuestMultiplier = q.GuestMultiplier
	b.SurgeMultiplier = q.SurgeMultiplier
	b.SurgeReason = q.SurgeReason
	b.AddOnTotal = q.AddOnTotal
	b.TotalPrice = q.TotalPrice
}
