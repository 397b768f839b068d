package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"chefbook/internal/domain"
	"chefbook/internal/metrics"
	"chefbook/internal/models"
)

// Gateway webhook event names.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderExpired    = "order.expired"
)

// WebhookSignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const WebhookSignatureHeader = "X-Signature"

// SignWebhook returns the hex HMAC-SHA256 of body under secret.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookEvent is the provider's asynchronous notification envelope.
type WebhookEvent struct {
	Event      string `json:"event"`
	BookingID  string `json:"booking_id"`
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_id"`
	Signature  string `json:"signature"`
	Reason     string `json:"reason"`
}

// ParseWebhook decodes and validates a webhook body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&ev); err != nil {
		return nil, domain.NewValidationError("body", "invalid webhook payload: %v", err)
	}
	switch ev.Event {
	case EventPaymentCaptured, EventPaymentFailed, EventOrderExpired:
	case "":
		return nil, domain.NewValidationError("event", "is required")
	default:
		return nil, domain.NewValidationError("event", "unsupported event %q", ev.Event)
	}
	if ev.BookingID == "" {
		return nil, domain.NewValidationError("booking_id", "is required")
	}
	return &ev, nil
}

// HandleWebhook authenticates the raw body against signature, then dispatches the
// event to Verify or RecordFailure. Unsigned or mismatched bodies are rejected
// with *domain.SignatureMismatchError before anything is read or written.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature string) (*models.Booking, error) {
	if signature == "" || !hmac.Equal([]byte(SignWebhook(r.cfg.Secret, body)), []byte(signature)) {
		metrics.IncPaymentVerification("webhook_signature_mismatch")
		r.logger.Warn().Int("body_bytes", len(body)).Msg("webhook signature mismatch")
		return nil, &domain.SignatureMismatchError{}
	}
	ev, err := ParseWebhook(body)
	if err != nil {
		return nil, err
	}

	switch ev.Event {
	case EventPaymentCaptured:
		return r.Verify(ctx, VerifyRequest{
			BookingID:  ev.BookingID,
			OrderID:    ev.OrderID,
			PaymentRef: ev.PaymentRef,
			Signature:  ev.Signature,
		})
	case EventPaymentFailed, EventOrderExpired:
		reason := ev.Reason
		if reason == "" {
			reason = fmt.Sprintf("payment %s", ev.Event)
		}
		return r.RecordFailure(ctx, ev.BookingID, reason)
	}
	return nil, domain.NewValidationError("event", "unsupported event %q", ev.Event)
}
