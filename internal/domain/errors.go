// Package domain holds the error taxonomy and collaborator contracts shared by the
// booking lifecycle packages.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStale is returned by conditional updates whose expected status or version
	// no longer matches the stored booking.
	ErrStale = errors.New("booking was modified concurrently")
	// ErrInvalidTransition is wrapped by ValidationError when a status edge does not exist.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports malformed or missing input. The caller must fix the request.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent chef or booking.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// SlotInfo describes a conflicting booking's slot for client diagnostics.
type SlotInfo struct {
	BookingID     string `json:"booking_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	DurationHours int    `json:"duration_hours"`
}

// ConflictError reports that the requested slot overlaps existing bookings.
type ConflictError struct {
	ChefID      string
	Conflicting []SlotInfo
}

func (e *ConflictError) Error() string {
	if len(e.Conflicting) == 0 {
		return fmt.Sprintf("chef %s is not available for the requested slot", e.ChefID)
	}
	parts := make([]string, 0, len(e.Conflicting))
	for _, s := range e.Conflicting {
		parts = append(parts, fmt.Sprintf("%s %s for %dh", s.Date, s.StartTime, s.DurationHours))
	}
	return fmt.Sprintf("chef %s is already booked: %s", e.ChefID, strings.Join(parts, ", "))
}

// UnauthorizedError reports a principal that may not perform a mutation.
type UnauthorizedError struct {
	Principal string
	Reason    string
}

func (e *UnauthorizedError) Error() string {
	if e.Principal == "" {
		return "unauthorized: " + e.Reason
	}
	return fmt.Sprintf("unauthorized: user %s %s", e.Principal, e.Reason)
}

// SignatureMismatchError reports a payment callback whose signature does not verify.
// The booking is left untouched and the callback may be retried.
type SignatureMismatchError struct {
	OrderID string
}

func (e *SignatureMismatchError) Error() string {
	if e.OrderID == "" {
		return "webhook signature mismatch"
	}
	return fmt.Sprintf("payment signature mismatch for order %s", e.OrderID)
}

// NoRefundEligibleError reports a cancellation that falls inside the no-refund window.
type NoRefundEligibleError struct {
	HoursBefore float64
	CutoffHours int
}

func (e *NoRefundEligibleError) Error() string {
	return fmt.Sprintf("no refund: cancelled %.1fh before the booking, refunds require more than %dh notice",
		e.HoursBefore, e.CutoffHours)
}

// RepositoryError wraps a storage failure.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string { return fmt.Sprintf("repository %s: %v", e.Op, e.Err) }

func (e *RepositoryError) Unwrap() error { return e.Err }

// GatewayError wraps a payment gateway failure. It is surfaced to the caller unmodified
// and never retried by this module.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
