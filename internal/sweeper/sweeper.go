// Package sweeper applies the time-driven booking transitions: stale pending
// bookings are cancelled and past confirmed bookings are completed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chefbook/internal/domain"
	"chefbook/internal/events"
	"chefbook/internal/metrics"
	"chefbook/internal/models"

	"github.com/rs/zerolog"
)

// AutoCancelNote is stored on bookings cancelled by the sweeper.
const AutoCancelNote = "auto-cancelled: booking date passed without confirmation"

const (
	StepCancelPending     = "cancel_pending"
	StepCompleteConfirmed = "complete_confirmed"
)

// Store is the bulk transition surface of the booking repository.
type Store interface {
	BulkTransition(ctx context.Context, from models.Status, before time.Time, to models.Status, upd domain.StatusUpdate) ([]domain.BookingRef, error)
}

// StepResult reports one sweep step.
type StepResult struct {
	Step    string   `json:"step"`
	IDs     []string `json:"ids"`
	Skipped bool     `json:"skipped,omitempty"`
	Err     error    `json:"-"`
}

// Result reports a whole sweep.
type Result struct {
	RanAt     time.Time  `json:"ran_at"`
	Cancelled StepResult `json:"cancelled"`
	Completed StepResult `json:"completed"`
}

// Sweeper runs the two sweep steps against the store.
type Sweeper struct {
	store     Store
	publisher domain.EventPublisher
	location  *time.Location
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a sweeper. Calendar days are evaluated in loc; publisher may be nil.
func New(store Store, publisher domain.EventPublisher, loc *time.Location, logger *zerolog.Logger) *Sweeper {
	if loc == nil {
		loc = time.Local
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sweeper").Logger()
	}
	return &Sweeper{store: store, publisher: publisher, location: loc, logger: l, now: time.Now}
}

// Sweep reads the clock once and runs both steps with that instant. A failed step
// does not prevent the other. A step whose turn comes after ctx is done is skipped.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	now := s.now().In(s.location)
	today := models.Day(now)
	res := Result{RanAt: now}

	note := AutoCancelNote
	res.Cancelled = s.step(ctx, StepCancelPending, models.StatusPending, today, models.StatusCancelled, domain.StatusUpdate{
		Note:      &note,
		UpdatedAt: now,
	})

	completedAt := now
	res.Completed = s.step(ctx, StepCompleteConfirmed, models.StatusConfirmed, today, models.StatusCompleted, domain.StatusUpdate{
		CompletedAt: &completedAt,
		UpdatedAt:   now,
	})

	metrics.ObserveSweep(time.Since(start))
	s.logger.Info().
		Str("today", today.Format(models.DateLayout)).
		Int("cancelled", len(res.Cancelled.IDs)).
		Int("completed", len(res.Completed.IDs)).
		Dur("duration", time.Since(start)).
		Msg("sweep finished")

	return res, errors.Join(res.Cancelled.Err, res.Completed.Err)
}

func (s *Sweeper) step(ctx context.Context, name string, from models.Status, before time.Time, to models.Status, upd domain.StatusUpdate) StepResult {
	out := StepResult{Step: name}
	if ctx.Err() != nil {
		out.Skipped = true
		s.logger.Warn().Str("step", name).Msg("sweep step skipped, context done")
		return out
	}

	refs, err := s.store.BulkTransition(ctx, from, before, to, upd)
	if err != nil {
		metrics.IncSweepError(name)
		out.Err = fmt.Errorf("%s: %w", name, err)
		s.logger.Error().Err(err).Str("step", name).Msg("sweep step failed")
		return out
	}
	metrics.AddSweepTransitions(name, len(refs))

	for _, ref := range refs {
		out.IDs = append(out.IDs, ref.ID)
		metrics.IncTransition(string(from), string(to))
		if s.publisher == nil {
			continue
		}
		payload := events.StatusChanged{BookingID: ref.ID, Status: string(to), ChefID: ref.ChefID, UserID: ref.UserID}
		if err := s.publisher.PublishJSON(events.BookingStatusChanged, payload); err != nil {
			s.logger.Warn().Err(err).Str("booking_id", ref.ID).Msg("publish status event")
		}
	}
	return out
}
