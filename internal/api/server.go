// Package api exposes the booking lifecycle over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"chefbook/internal/domain"
	"chefbook/internal/lifecycle"
	"chefbook/internal/metrics"
	"chefbook/internal/models"
	"chefbook/internal/payment"
	"chefbook/internal/pricing"

	"github.com/rs/zerolog"
)

// PrincipalHeader carries the authenticated user id set by the identity provider.
const PrincipalHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// Bookings is the lifecycle surface used by the HTTP handlers.
type Bookings interface {
	Quote(ctx context.Context, req lifecycle.CreateRequest) (pricing.Breakdown, error)
	Create(ctx context.Context, principal string, req lifecycle.CreateRequest) (*models.Booking, error)
	Get(ctx context.Context, bookingID string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, principal, bookingID string, to models.Status, note string) (*models.Booking, error)
	ListForChef(ctx context.Context, chefID string, date time.Time) ([]models.Booking, error)
}

// Payments is the reconciliation surface used by the HTTP handlers.
type Payments interface {
	CreateOrder(ctx context.Context, principal, bookingID, currency string) (*payment.OrderResult, error)
	Verify(ctx context.Context, req payment.VerifyRequest) (*models.Booking, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*models.Booking, error)
	Refund(ctx context.Context, principal, bookingID string, now time.Time) (*payment.RefundResult, error)
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	server   *http.Server
	bookings Bookings
	payments Payments
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHTTPServer builds the server and registers every route.
func NewHTTPServer(addr string, bookings Bookings, payments Payments, readTimeout, writeTimeout time.Duration, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}
	s := &HTTPServer{bookings: bookings, payments: payments, logger: l, now: time.Now}

	mux := http.NewServeMux()
	s.handle(mux, "POST /api/v1/quotes", "quotes", s.handleQuote)
	s.handle(mux, "POST /api/v1/bookings", "bookings_create", s.handleCreateBooking)
	s.handle(mux, "GET /api/v1/bookings/{id}", "bookings_get", s.handleGetBooking)
	s.handle(mux, "POST /api/v1/bookings/{id}/status", "bookings_status", s.handleUpdateStatus)
	s.handle(mux, "POST /api/v1/bookings/{id}/orders", "bookings_order", s.handleCreateOrder)
	s.handle(mux, "POST /api/v1/bookings/{id}/refund", "bookings_refund", s.handleRefund)
	s.handle(mux, "GET /api/v1/chefs/{id}/bookings", "chef_bookings", s.handleChefBookings)
	s.handle(mux, "POST /api/v1/payments/verify", "payments_verify", s.handleVerifyPayment)
	s.handle(mux, "POST /api/v1/payments/webhook", "payments_webhook", s.handleWebhook)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rec, r)
		metrics.IncHTTP(route, strconv.Itoa(rec.status))
		s.logger.Debug().
			Str("route", route).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request served")
	})
}

func principal(r *http.Request) string {
	return r.Header.Get(PrincipalHeader)
}

// decodeJSON decodes the request body into out. An empty body is accepted when
// allowEmpty is set.
func decodeJSON(r *http.Request, out any, allowEmpty bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("body", "invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type conflictResponse struct {
	Error     string            `json:"error"`
	Conflicts []domain.SlotInfo `json:"conflicts"`
}

// writeDomainError maps the error taxonomy to HTTP status codes.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve  *domain.ValidationError
		nf  *domain.NotFoundError
		ce  *domain.ConflictError
		ue  *domain.UnauthorizedError
		sme *domain.SignatureMismatchError
		nre *domain.NoRefundEligibleError
		ge  *domain.GatewayError
	)
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, conflictResponse{Error: ce.Error(), Conflicts: ce.Conflicting})
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &ue):
		writeError(w, http.StatusForbidden, ue.Error())
	case errors.As(err, &sme):
		writeError(w, http.StatusUnprocessableEntity, sme.Error())
	case errors.As(err, &nre):
		writeError(w, http.StatusUnprocessableEntity, nre.Error())
	case errors.Is(err, domain.ErrStale):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ge):
		s.logger.Error().Err(err).Msg("payment gateway error")
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
