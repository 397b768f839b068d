// Package lifecycle implements the booking state machine and the use cases that
// create bookings and move them between statuses.
package lifecycle

import (
	"fmt"

	"chefbook/internal/domain"
	"chefbook/internal/models"
)

// FSM holds the legal status edges of a booking.
type FSM struct {
	transitions map[models.Status][]models.Status
}

// NewFSM creates the booking state machine.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[models.Status][]models.Status{
			models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
			models.StatusConfirmed: {models.StatusCancelled, models.StatusCompleted},
			models.StatusCompleted: {},
			models.StatusCancelled: {},
		},
	}
}

// CanTransition checks if transition is allowed.
// completed to completed is accepted so repeated sweeps stay harmless.
func (f *FSM) CanTransition(from, to models.Status) bool {
	if from == models.StatusCompleted && to == models.StatusCompleted {
		return true
	}
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsNoop reports whether from to is the idempotent self edge.
func (f *FSM) IsNoop(from, to models.Status) bool {
	return from == to && from == models.StatusCompleted
}

// Check returns a ValidationError wrapping ErrInvalidTransition for illegal edges.
func (f *FSM) Check(from, to models.Status) error {
	if f.CanTransition(from, to) {
		return nil
	}
	return &domain.ValidationError{
		Field:   "status",
		Message: fmt.Sprintf("cannot move booking from %s to %s", from, to),
		Err:     domain.ErrInvalidTransition,
	}
}

// Targets returns the statuses reachable from from.
func (f *FSM) Targets(from models.Status) []models.Status {
	out := make([]models.Status, len(f.transitions[from]))
	copy(out, f.transitions[from])
	return out
}
