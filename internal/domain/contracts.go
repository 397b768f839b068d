package domain

import (
	"context"
	"time"

	"chefbook/internal/models"
)

// StatusUpdate carries the extra fields written together with a status change.
// Nil pointers leave the stored value unchanged.
type StatusUpdate struct {
	PaymentStatus    *models.PaymentStatus
	PaymentReference *string
	RefundReference  *string
	RefundAmount     *int64
	Note             *string
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}

// PaymentUpdate carries payment-only changes that do not move the booking status.
type PaymentUpdate struct {
	PaymentStatus    *models.PaymentStatus
	PaymentReference *string
	UpdatedAt        time.Time
}

// BookingRepository is the storage contract consumed by the lifecycle engine.
type BookingRepository interface {
	// Get returns the booking or a *NotFoundError.
	Get(ctx context.Context, id string) (*models.Booking, error)

	// FindOverlapping returns the chef's bookings on date that still hold their slot
	// (status not cancelled/rejected).
	FindOverlapping(ctx context.Context, chefID string, date time.Time) ([]models.Booking, error)

	// ListByChefDate returns every booking of the chef on date regardless of status.
	ListByChefDate(ctx context.Context, chefID string, date time.Time) ([]models.Booking, error)

	// Insert atomically re-checks the slot and stores the booking.
	// An overlap yields a *ConflictError.
	Insert(ctx context.Context, b *models.Booking) error

	// UpdateStatus moves the booking from expected to to. If the stored status is not
	// expected, ErrStale is returned and nothing is written.
	UpdateStatus(ctx context.Context, id string, expected, to models.Status, upd StatusUpdate) (*models.Booking, error)

	// UpdatePayment writes payment fields if the stored version equals expectedVersion.
	UpdatePayment(ctx context.Context, id string, expectedVersion int64, upd PaymentUpdate) (*models.Booking, error)

	// BulkTransition moves every booking with status from and date before the given
	// day to status to, and returns the bookings it changed.
	BulkTransition(ctx context.Context, from models.Status, before time.Time, to models.Status, upd StatusUpdate) ([]BookingRef, error)
}

// BookingRef identifies a booking and its parties.
type BookingRef struct {
	ID     string
	ChefID string
	UserID string // empty for guest bookings
}

// Chef is the catalog's view of a chef.
type Chef struct {
	ID         string `json:"id"`
	HourlyRate int64  `json:"hourly_rate"`
	Active     bool   `json:"active"`
}

// ChefCatalog resolves chef records. It returns *NotFoundError for unknown ids.
type ChefCatalog interface {
	GetChef(ctx context.Context, chefID string) (*Chef, error)
}

// OrderRequest asks the gateway for a payment order.
type OrderRequest struct {
	AmountMinor int64
	Currency    string
	ReceiptRef  string
	Metadata    map[string]string
}

// Order is the gateway's answer to OrderRequest.
type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// RefundRequest asks the gateway to refund part or all of a payment.
type RefundRequest struct {
	PaymentRef  string
	AmountMinor int64
	Metadata    map[string]string
}

// Refund is the gateway's answer to RefundRequest.
type Refund struct {
	ID string `json:"id"`
}

// Gateway is the payment provider contract.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
}

// EventPublisher receives lifecycle events. Delivery is fire-and-forget.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
