package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chefbook/internal/availability"
	"chefbook/internal/domain"
	"chefbook/internal/events"
	"chefbook/internal/metrics"
	"chefbook/internal/models"
	"chefbook/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AddOnCatalog resolves add-on names for a service type. Unknown names yield a
// *domain.ValidationError.
type AddOnCatalog interface {
	Resolve(serviceType models.ServiceType, names []string) ([]models.AddOn, error)
}

// CreateRequest is the input of Create.
type CreateRequest struct {
	ChefID        string             `json:"chef_id"`
	Date          string             `json:"date"`       // YYYY-MM-DD
	StartTime     string             `json:"start_time"` // HH:MM
	DurationHours int                `json:"duration_hours"`
	GuestCount    int                `json:"guest_count"`
	ServiceType   models.ServiceType `json:"service_type"`
	AddOns        []string           `json:"add_ons,omitempty"`
}

// Service runs the booking use cases on top of the repository.
type Service struct {
	repo      domain.BookingRepository
	chefs     domain.ChefCatalog
	addOns    AddOnCatalog
	publisher domain.EventPublisher
	checker   *availability.Checker
	fsm       *FSM
	locks     *keyedMutex
	bookings  *keyedMutex
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService wires the lifecycle service. publisher may be nil.
func NewService(
	repo domain.BookingRepository,
	chefs domain.ChefCatalog,
	addOns AddOnCatalog,
	publisher domain.EventPublisher,
	logger *zerolog.Logger,
) *Service {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "lifecycle").Logger()
	}
	return &Service{
		repo:      repo,
		chefs:     chefs,
		addOns:    addOns,
		publisher: publisher,
		checker:   availability.NewChecker(repo),
		fsm:       NewFSM(),
		locks:     newKeyedMutex(),
		bookings:  newKeyedMutex(),
		logger:    l,
		now:       time.Now,
	}
}

// LockBooking serialises read-modify-write work on one booking within this
// process. The returned func releases the lock. The lock is not reentrant.
func (s *Service) LockBooking(bookingID string) func() {
	return s.bookings.Lock(bookingID)
}

// FSM returns the state machine used by the service.
func (s *Service) FSM() *FSM {
	return s.fsm
}

func (r *CreateRequest) validate() (time.Time, error) {
	if strings.TrimSpace(r.ChefID) == "" {
		return time.Time{}, domain.NewValidationError("chef_id", "is required")
	}
	if r.Date == "" {
		return time.Time{}, domain.NewValidationError("date", "is required")
	}
	date, err := models.ParseDate(r.Date)
	if err != nil {
		return time.Time{}, domain.NewValidationError("date", "expected YYYY-MM-DD, got %q", r.Date)
	}
	if _, _, err := availability.Interval(r.StartTime, r.DurationHours); err != nil {
		return time.Time{}, err
	}
	if r.GuestCount < 1 {
		return time.Time{}, domain.NewValidationError("guest_count", "must be at least 1")
	}
	if !r.ServiceType.Valid() {
		return time.Time{}, domain.NewValidationError("service_type", "unknown service type %q", r.ServiceType)
	}
	return date, nil
}

// Create validates, prices and stores a new pending booking. principal is the
// authenticated user id or empty for a guest booking.
func (s *Service) Create(ctx context.Context, principal string, req CreateRequest) (*models.Booking, error) {
	date, addOns, quote, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	b := &models.Booking{
		ID:            uuid.NewString(),
		ChefID:        req.ChefID,
		Date:          date,
		StartTime:     req.StartTime,
		DurationHours: req.DurationHours,
		GuestCount:    req.GuestCount,
		ServiceType:   req.ServiceType,
		AddOns:        addOns,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	if principal != "" {
		p := principal
		b.UserID = &p
	}
	pricing.Apply(b, quote)

	if err := s.reserve(ctx, b); err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("chef_id", b.ChefID).
		Str("date", b.DateString()).
		Str("start_time", b.StartTime).
		Int64("total_price", b.TotalPrice).
		Msg("booking created")
	s.publishStatus(b)
	return b, nil
}

// reserve runs the conflict check and the insert under the (chef, date) lock.
func (s *Service) reserve(ctx context.Context, b *models.Booking) error {
	unlock := s.locks.Lock(b.ChefID + "|" + b.DateString())
	defer unlock()

	conflicts, err := s.checker.FindConflicts(ctx, b.ChefID, b.Date, b.StartTime, b.DurationHours)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		metrics.IncBookingConflict()
		return &domain.ConflictError{ChefID: b.ChefID, Conflicting: availability.ToSlotInfo(conflicts)}
	}

	if err := s.repo.Insert(ctx, b); err != nil {
		var ce *domain.ConflictError
		if errors.As(err, &ce) {
			metrics.IncBookingConflict()
		}
		return err
	}
	return nil
}

// Quote prices req without reserving anything.
func (s *Service) Quote(ctx context.Context, req CreateRequest) (pricing.Breakdown, error) {
	_, _, quote, err := s.price(ctx, req)
	return quote, err
}

func (s *Service) price(ctx context.Context, req CreateRequest) (time.Time, []models.AddOn, pricing.Breakdown, error) {
	date, err := req.validate()
	if err != nil {
		return time.Time{}, nil, pricing.Breakdown{}, err
	}

	var addOns []models.AddOn
	if len(req.AddOns) > 0 {
		if s.addOns == nil {
			return time.Time{}, nil, pricing.Breakdown{}, domain.NewValidationError("add_ons", "add-ons are not offered")
		}
		if addOns, err = s.addOns.Resolve(req.ServiceType, req.AddOns); err != nil {
			return time.Time{}, nil, pricing.Breakdown{}, err
		}
	}

	chef, err := s.chefs.GetChef(ctx, req.ChefID)
	if err != nil {
		return time.Time{}, nil, pricing.Breakdown{}, err
	}
	if !chef.Active {
		return time.Time{}, nil, pricing.Breakdown{}, &domain.NotFoundError{Resource: "chef", ID: req.ChefID}
	}

	prices := make([]int64, len(addOns))
	for i, a := range addOns {
		prices[i] = a.Price
	}
	quote, err := pricing.Quote(pricing.QuoteRequest{
		ServiceType:   req.ServiceType,
		HourlyRate:    chef.HourlyRate,
		DurationHours: req.DurationHours,
		GuestCount:    req.GuestCount,
		Date:          date,
		AddOnPrices:   prices,
	})
	if err != nil {
		return time.Time{}, nil, pricing.Breakdown{}, err
	}
	return date, addOns, quote, nil
}

// UpdateStatus is the manual status path. Only cancellation is accepted and only
// from the booking owner or the booked chef. A paid booking must go through the
// refund flow so the captured payment is returned.
func (s *Service) UpdateStatus(ctx context.Context, principal, bookingID string, to models.Status, note string) (*models.Booking, error) {
	unlock := s.LockBooking(bookingID)
	defer unlock()

	b, err := s.repo.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(principal, b); err != nil {
		return nil, err
	}
	if to != models.StatusCancelled {
		return nil, &domain.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("status %q cannot be set manually", to),
			Err:     domain.ErrInvalidTransition,
		}
	}
	if err := s.fsm.Check(b.Status, to); err != nil {
		return nil, err
	}
	if b.PaymentStatus == models.PaymentPaid {
		return nil, domain.NewValidationError("status", "booking %s is paid; cancel it through POST /api/v1/bookings/%s/refund", b.ID, b.ID)
	}

	upd := domain.StatusUpdate{}
	if note != "" {
		upd.Note = &note
	}
	return s.Transition(ctx, bookingID, b.Status, to, upd)
}

// Transition moves a booking from expected to to in one conditional write.
// It returns domain.ErrStale when the stored status is no longer expected.
// Callers that read the booking first hold LockBooking around both steps.
func (s *Service) Transition(ctx context.Context, bookingID string, expected, to models.Status, upd domain.StatusUpdate) (*models.Booking, error) {
	if err := s.fsm.Check(expected, to); err != nil {
		return nil, err
	}
	if s.fsm.IsNoop(expected, to) {
		b, err := s.repo.Get(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status != expected {
			return nil, domain.ErrStale
		}
		return b, nil
	}

	now := s.now()
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = now
	}
	if to == models.StatusCompleted && upd.CompletedAt == nil {
		upd.CompletedAt = &now
	}

	b, err := s.repo.UpdateStatus(ctx, bookingID, expected, to, upd)
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(expected), string(to))
	s.logger.Info().
		Str("booking_id", bookingID).
		Str("from", string(expected)).
		Str("to", string(to)).
		Msg("booking status changed")
	s.publishStatus(b)
	if upd.PaymentStatus != nil {
		s.PublishPayment(b)
	}
	return b, nil
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.repo.Get(ctx, bookingID)
}

// ListForChef returns every booking of the chef on date.
func (s *Service) ListForChef(ctx context.Context, chefID string, date time.Time) ([]models.Booking, error) {
	if chefID == "" {
		return nil, domain.NewValidationError("chef_id", "is required")
	}
	return s.repo.ListByChefDate(ctx, chefID, models.Day(date))
}

func (s *Service) publishStatus(b *models.Booking) {
	if s.publisher == nil {
		return
	}
	payload := events.StatusChanged{BookingID: b.ID, Status: string(b.Status), ChefID: b.ChefID}
	if b.UserID != nil {
		payload.UserID = *b.UserID
	}
	if err := s.publisher.PublishJSON(events.BookingStatusChanged, payload); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("publish status event")
	}
}

// PublishPayment announces the booking's current payment status.
func (s *Service) PublishPayment(b *models.Booking) {
	if s.publisher == nil {
		return
	}
	payload := events.PaymentChanged{BookingID: b.ID, PaymentStatus: string(b.PaymentStatus)}
	if err := s.publisher.PublishJSON(events.PaymentStatusChanged, payload); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("publish payment event")
	}
}
