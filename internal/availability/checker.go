package availability

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chefbook/internal/domain"
	"chefbook/internal/models"
)

// MinutesPerDay bounds StartTime values; an interval's end may exceed it because
// slots never wrap into the next day.
const MinutesPerDay = 24 * 60

// BookingFinder loads the bookings that still hold a chef's slots on a date.
type BookingFinder interface {
	FindOverlapping(ctx context.Context, chefID string, date time.Time) ([]models.Booking, error)
}

// Checker decides whether a requested slot collides with existing bookings.
type Checker struct {
	finder BookingFinder
}

// NewChecker creates a checker backed by finder.
func NewChecker(finder BookingFinder) *Checker {
	return &Checker{finder: finder}
}

// HasConflict reports whether the slot overlaps any active booking of the chef.
func (c *Checker) HasConflict(ctx context.Context, chefID string, date time.Time, startTime string, durationHours int) (bool, error) {
	conflict, err := c.FirstConflict(ctx, chefID, date, startTime, durationHours)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

// FirstConflict returns any one conflicting booking, or nil.
func (c *Checker) FirstConflict(ctx context.Context, chefID string, date time.Time, startTime string, durationHours int) (*models.Booking, error) {
	conflicts, err := c.FindConflicts(ctx, chefID, date, startTime, durationHours)
	if err != nil || len(conflicts) == 0 {
		return nil, err
	}
	return &conflicts[0], nil
}

// FindConflicts returns every active booking of the chef on date whose slot overlaps
// the requested one.
func (c *Checker) FindConflicts(ctx context.Context, chefID string, date time.Time, startTime string, durationHours int) ([]models.Booking, error) {
	start, end, err := Interval(startTime, durationHours)
	if err != nil {
		return nil, err
	}

	existing, err := c.finder.FindOverlapping(ctx, chefID, date)
	if err != nil {
		return nil, fmt.Errorf("load bookings for chef %s: %w", chefID, err)
	}

	return Conflicting(existing, start, end), nil
}

// Conflicting filters bookings down to those that hold their slot and overlap
// [start, end) in minute-of-day space. Bookings with unparsable start times are skipped.
func Conflicting(bookings []models.Booking, start, end int) []models.Booking {
	var out []models.Booking
	for _, b := range bookings {
		if !b.Status.HoldsSlot() {
			continue
		}
		exStart, exEnd, err := Interval(b.StartTime, b.DurationHours)
		if err != nil {
			continue
		}
		if Overlaps(start, end, exStart, exEnd) {
			out = append(out, b)
		}
	}
	return out
}

// Interval converts a slot into half-open minute-of-day offsets.
func Interval(startTime string, durationHours int) (start, end int, err error) {
	if durationHours < 1 {
		return 0, 0, domain.NewValidationError("duration_hours", "must be at least 1")
	}
	start, err = MinuteOfDay(startTime)
	if err != nil {
		return 0, 0, err
	}
	return start, start + durationHours*60, nil
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// MinuteOfDay parses "HH:MM" into minutes after midnight.
func MinuteOfDay(clock string) (int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, domain.NewValidationError("start_time", "expected HH:MM, got %q", clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, domain.NewValidationError("start_time", "invalid hour in %q", clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, domain.NewValidationError("start_time", "invalid minute in %q", clock)
	}
	return h*60 + m, nil
}

// ToSlotInfo converts bookings into client-facing slot descriptions.
func ToSlotInfo(bookings []models.Booking) []domain.SlotInfo {
	out := make([]domain.SlotInfo, len(bookings))
	for i, b := range bookings {
		out[i] = domain.SlotInfo{
			BookingID:     b.ID,
			Date:          b.DateString(),
			StartTime:     b.StartTime,
			DurationHours: b.DurationHours,
		}
	}
	return out
}
