package api

import (
	"io"
	"net/http"

	"chefbook/internal/payment"
)

// OrderRequest is the optional body of POST /api/v1/bookings/{id}/orders.
type OrderRequest struct {
	Currency string `json:"currency,omitempty"`
}

// POST /api/v1/bookings/{id}/orders
func (s *HTTPServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeDomainError(w, err)
		return
	}
	order, err := s.payments.CreateOrder(r.Context(), principal(r), r.PathValue("id"), req.Currency)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// POST /api/v1/payments/verify
func (s *HTTPServer) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req payment.VerifyRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeDomainError(w, err)
		return
	}
	b, err := s.payments.Verify(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// POST /api/v1/payments/webhook
// The raw body is authenticated by the X-Signature header before it is parsed.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	b, err := s.payments.HandleWebhook(r.Context(), body, r.Header.Get(payment.WebhookSignatureHeader))
	if err != nil {
		s.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("webhook rejected")
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"booking_id":     b.ID,
		"status":         string(b.Status),
		"payment_status": string(b.PaymentStatus),
	})
}

// POST /api/v1/bookings/{id}/refund
func (s *HTTPServer) handleRefund(w http.ResponseWriter, r *http.Request) {
	res, err := s.payments.Refund(r.Context(), principal(r), r.PathValue("id"), s.now())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
