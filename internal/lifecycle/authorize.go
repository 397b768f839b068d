package lifecycle

import (
	"chefbook/internal/domain"
	"chefbook/internal/models"
)

// Authorize checks that principal may mutate b. Only the owning user or the booked
// chef qualify; guest bookings can be changed by the chef alone.
func Authorize(principal string, b *models.Booking) error {
	if principal == "" {
		return &domain.UnauthorizedError{Reason: "authentication required"}
	}
	if b.OwnedBy(principal) || b.ChefID == principal {
		return nil
	}
	return &domain.UnauthorizedError{Principal: principal, Reason: "is neither the booking owner nor the booked chef"}
}
