package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used for Booking.Date on the wire and in storage.
const DateLayout = "2006-01-02"

// ClockLayout is the time-of-day format used for Booking.StartTime.
const ClockLayout = "15:04"

// Status is the lifecycle status of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	// StatusRejected appears in legacy request payloads only. No transition produces it;
	// availability filtering treats it like cancelled.
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// HoldsSlot reports whether a booking in this status occupies its slot.
func (s Status) HoldsSlot() bool {
	return s != StatusCancelled && s != StatusRejected
}

// ParseStatus converts a raw status string.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRejected:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// PaymentStatus is the settlement status of a booking's payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ServiceType is the kind of event a chef is booked for.
type ServiceType string

const (
	ServiceBirthday ServiceType = "birthday"
	ServiceMarriage ServiceType = "marriage"
	ServiceDaily    ServiceType = "daily"
)

// ServiceTypes lists every known service type.
var ServiceTypes = []ServiceType{ServiceBirthday, ServiceMarriage, ServiceDaily}

// Valid reports whether t is one of the known service types.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceBirthday, ServiceMarriage, ServiceDaily:
		return true
	}
	return false
}

// AddOn is an extra priced at booking creation time.
type AddOn struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Booking is a chef booking record. It carries no behaviour beyond simple accessors;
// lifecycle rules live in the lifecycle and payment packages.
type Booking struct {
	ID            string      `json:"id"`
	ChefID        string      `json:"chef_id"`
	UserID        *string     `json:"user_id,omitempty"` // nil for guest bookings
	Date          time.Time   `json:"date"`              // calendar day, midnight UTC
	StartTime     string      `json:"start_time"`        // HH:MM
	DurationHours int         `json:"duration_hours"`
	GuestCount    int         `json:"guest_count"`
	ServiceType   ServiceType `json:"service_type"`

	BasePrice         int64   `json:"base_price"`
	ServiceMultiplier float64 `json:"service_multiplier"`
	GuestMultiplier   float64 `json:"guest_multiplier"`
	SurgeMultiplier   float64 `json:"surge_multiplier"`
	SurgeReason       string  `json:"surge_reason,omitempty"`
	AddOns            []AddOn `json:"add_ons,omitempty"`
	AddOnTotal        int64   `json:"add_on_total"`
	TotalPrice        int64   `json:"total_price"`

	Status           Status        `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	RefundReference  string        `json:"refund_reference,omitempty"`
	RefundAmount     int64         `json:"refund_amount,omitempty"`
	Note             string        `json:"note,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Version          int64         `json:"version"`
}

// DateString returns the booking's calendar day as YYYY-MM-DD.
func (b *Booking) DateString() string {
	return b.Date.Format(DateLayout)
}

// OwnedBy reports whether userID is the booking's owning user.
func (b *Booking) OwnedBy(userID string) bool {
	return b.UserID != nil && *b.UserID != "" && *b.UserID == userID
}

// ScheduledStart returns the instant the booking begins, interpreting Date and
// StartTime as wall-clock values in loc.
func (b *Booking) ScheduledStart(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	clock, err := time.Parse(ClockLayout, b.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start time %q: %w", b.StartTime, err)
	}
	return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// ParseDate parses a YYYY-MM-DD calendar day into midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	return time.Parse(DateLayout, raw)
}

// Day truncates t to its calendar day (in t's own location) and returns it as midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
