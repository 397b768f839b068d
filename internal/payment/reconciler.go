// Package payment reconciles bookings with the payment gateway: orders, signed
// confirmations, failures and refunds.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"chefbook/internal/domain"
	"chefbook/internal/lifecycle"
	"chefbook/internal/metrics"
	"chefbook/internal/models"

	"github.com/rs/zerolog"
)

// Bookings is the lifecycle surface the reconciler drives. LockBooking is held
// across every read, gateway call and transition on one booking.
type Bookings interface {
	LockBooking(bookingID string) func()
	Get(ctx context.Context, bookingID string) (*models.Booking, error)
	Transition(ctx context.Context, bookingID string, expected, to models.Status, upd domain.StatusUpdate) (*models.Booking, error)
}

// PaymentStore writes payment fields that do not move the booking status.
type PaymentStore interface {
	UpdatePayment(ctx context.Context, id string, expectedVersion int64, upd domain.PaymentUpdate) (*models.Booking, error)
}

// Config holds reconciler settings.
type Config struct {
	Secret          string
	ProviderKey     string
	DefaultCurrency string
	Location        *time.Location
}

// OrderResult is returned to the client to open the provider checkout.
type OrderResult struct {
	BookingID   string `json:"booking_id"`
	OrderID     string `json:"order_id"`
	ProviderKey string `json:"provider_key"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// VerifyRequest is the signed confirmation returned by the provider checkout.
type VerifyRequest struct {
	BookingID  string `json:"booking_id"`
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_id"`
	Signature  string `json:"signature"`
}

// Reconciler applies gateway outcomes to bookings.
type Reconciler struct {
	bookings Bookings
	store    PaymentStore
	gateway  domain.Gateway
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(bookings Bookings, store PaymentStore, gateway domain.Gateway, cfg Config, logger *zerolog.Logger) *Reconciler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "INR"
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "payment").Logger()
	}
	return &Reconciler{bookings: bookings, store: store, gateway: gateway, cfg: cfg, logger: l, now: time.Now}
}

// Sign returns the hex HMAC-SHA256 of "orderID|paymentRef" under secret.
func Sign(secret, orderID, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *Reconciler) signatureValid(orderID, paymentRef, signature string) bool {
	expected := Sign(r.cfg.Secret, orderID, paymentRef)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CreateOrder opens a gateway order for a pending booking and stores the order id
// as its payment reference. An owned booking only accepts its owner or chef. A
// guest booking gets its first order from anyone but only the chef may replace it.
func (r *Reconciler) CreateOrder(ctx context.Context, principal, bookingID, currency string) (*OrderResult, error) {
	unlock := r.bookings.LockBooking(bookingID)
	defer unlock()

	b, err := r.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != nil || b.PaymentReference != "" {
		if err := lifecycle.Authorize(principal, b); err != nil {
			return nil, err
		}
	}
	if b.Status != models.StatusPending || b.PaymentStatus != models.PaymentPending {
		return nil, domain.NewValidationError("status", "booking %s is %s with payment %s, orders need a pending booking", b.ID, b.Status, b.PaymentStatus)
	}
	if currency == "" {
		currency = r.cfg.DefaultCurrency
	}

	amount := b.TotalPrice * 100
	order, err := r.gateway.CreateOrder(ctx, domain.OrderRequest{
		AmountMinor: amount,
		Currency:    currency,
		ReceiptRef:  b.ID,
		Metadata:    map[string]string{"booking_id": b.ID},
	})
	if err != nil {
		r.logger.Error().Err(err).Str("booking_id", b.ID).Msg("create order")
		return nil, err
	}

	if _, err := r.store.UpdatePayment(ctx, b.ID, b.Version, domain.PaymentUpdate{
		PaymentReference: &order.ID,
		UpdatedAt:        r.now(),
	}); err != nil {
		return nil, err
	}

	r.logger.Info().Str("booking_id", b.ID).Str("order_id", order.ID).Int64("amount", amount).Msg("payment order created")
	return &OrderResult{
		BookingID:   b.ID,
		OrderID:     order.ID,
		ProviderKey: r.cfg.ProviderKey,
		Amount:      amount,
		Currency:    currency,
	}, nil
}

// Verify checks the provider signature and confirms the booking. A mismatch leaves
// the booking untouched. Verifying an already paid booking again succeeds without writing.
func (r *Reconciler) Verify(ctx context.Context, req VerifyRequest) (*models.Booking, error) {
	switch {
	case req.BookingID == "":
		return nil, domain.NewValidationError("booking_id", "is required")
	case req.OrderID == "":
		return nil, domain.NewValidationError("order_id", "is required")
	case req.PaymentRef == "":
		return nil, domain.NewValidationError("payment_id", "is required")
	case req.Signature == "":
		return nil, domain.NewValidationError("signature", "is required")
	}

	unlock := r.bookings.LockBooking(req.BookingID)
	defer unlock()

	b, err := r.bookings.Get(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	if !r.signatureValid(req.OrderID, req.PaymentRef, req.Signature) {
		metrics.IncPaymentVerification("signature_mismatch")
		r.logger.Warn().Str("booking_id", b.ID).Str("order_id", req.OrderID).Msg("payment signature mismatch")
		return nil, &domain.SignatureMismatchError{OrderID: req.OrderID}
	}

	if b.PaymentStatus == models.PaymentPaid {
		if b.PaymentReference != req.PaymentRef {
			return nil, domain.NewValidationError("payment_id", "booking %s is already paid by another payment", b.ID)
		}
		metrics.IncPaymentVerification("duplicate")
		return b, nil
	}
	if b.PaymentReference != req.OrderID {
		return nil, domain.NewValidationError("order_id", "order %s does not belong to booking %s", req.OrderID, b.ID)
	}

	paid := models.PaymentPaid
	ref := req.PaymentRef
	updated, err := r.bookings.Transition(ctx, b.ID, b.Status, models.StatusConfirmed, domain.StatusUpdate{
		PaymentStatus:    &paid,
		PaymentReference: &ref,
	})
	if err != nil {
		metrics.IncPaymentVerification("error")
		return nil, err
	}

	metrics.IncPaymentVerification("paid")
	r.logger.Info().Str("booking_id", b.ID).Str("payment_id", ref).Msg("payment verified")
	return updated, nil
}

// RecordFailure marks the payment failed and cancels the booking with reason as note.
func (r *Reconciler) RecordFailure(ctx context.Context, bookingID, reason string) (*models.Booking, error) {
	unlock := r.bookings.LockBooking(bookingID)
	defer unlock()

	b, err := r.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.StatusCancelled && b.PaymentStatus == models.PaymentFailed {
		return b, nil
	}
	if b.PaymentStatus == models.PaymentRefunded {
		return nil, domain.NewValidationError("payment_status", "payment of booking %s is already %s", b.ID, b.PaymentStatus)
	}
	if reason == "" {
		reason = "payment failed"
	}

	failed := models.PaymentFailed
	updated, err := r.bookings.Transition(ctx, b.ID, b.Status, models.StatusCancelled, domain.StatusUpdate{
		PaymentStatus: &failed,
		Note:          &reason,
	})
	if err != nil {
		return nil, err
	}

	metrics.IncPaymentVerification("failed")
	r.logger.Info().Str("booking_id", b.ID).Str("reason", reason).Msg("payment failed, booking cancelled")
	return updated, nil
}

// RefundResult describes a completed refund.
type RefundResult struct {
	Booking *models.Booking `json:"booking"`
	Quote   RefundQuote     `json:"quote"`
}

// Refund cancels a paid booking on behalf of principal and refunds the tiered amount.
// Concurrent refunds of one booking reach the gateway at most once.
func (r *Reconciler) Refund(ctx context.Context, principal, bookingID string, now time.Time) (*RefundResult, error) {
	unlock := r.bookings.LockBooking(bookingID)
	defer unlock()

	b, err := r.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Authorize(principal, b); err != nil {
		return nil, err
	}
	if b.Status != models.StatusPending && b.Status != models.StatusConfirmed {
		return nil, domain.NewValidationError("status", "booking %s is %s and cannot be refunded", b.ID, b.Status)
	}

	quote, err := ComputeRefund(b, now.In(r.cfg.Location))
	if err != nil {
		var nre *domain.NoRefundEligibleError
		if errors.As(err, &nre) {
			metrics.IncRefund("not_eligible")
		}
		return nil, err
	}

	refund, err := r.gateway.Refund(ctx, domain.RefundRequest{
		PaymentRef:  b.PaymentReference,
		AmountMinor: quote.Amount * 100,
		Metadata:    map[string]string{"booking_id": b.ID},
	})
	if err != nil {
		metrics.IncRefund("gateway_error")
		r.logger.Error().Err(err).Str("booking_id", b.ID).Msg("gateway refund")
		return nil, err
	}

	refunded := models.PaymentRefunded
	amount := quote.Amount
	note := fmt.Sprintf("cancelled with %.0f%% refund", quote.Fraction*100)
	updated, err := r.bookings.Transition(ctx, b.ID, b.Status, models.StatusCancelled, domain.StatusUpdate{
		PaymentStatus:   &refunded,
		RefundReference: &refund.ID,
		RefundAmount:    &amount,
		Note:            &note,
	})
	if err != nil {
		// The provider already refunded; the record needs manual repair.
		r.logger.Error().Err(err).
			Str("booking_id", b.ID).
			Str("refund_id", refund.ID).
			Int64("amount", amount).
			Msg("refund issued but booking update failed")
		return nil, err
	}

	metrics.IncRefund("refunded")
	r.logger.Info().Str("booking_id", b.ID).Str("refund_id", refund.ID).Int64("amount", amount).Msg("booking refunded")
	return &RefundResult{Booking: updated, Quote: quote}, nil
}
