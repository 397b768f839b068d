package api

import (
	"net/http"

	"chefbook/internal/domain"
	"chefbook/internal/lifecycle"
	"chefbook/internal/models"
)

// StatusRequest is the body of POST /api/v1/bookings/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// ChefBookingsResponse lists a chef's bookings on one day.
type ChefBookingsResponse struct {
	ChefID   string           `json:"chef_id"`
	Date     string           `json:"date"`
	Bookings []models.Booking `json:"bookings"`
}

// POST /api/v1/quotes
func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeDomainError(w, err)
		return
	}
	quote, err := s.bookings.Quote(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// POST /api/v1/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeDomainError(w, err)
		return
	}
	b, err := s.bookings.Create(r.Context(), principal(r), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GET /api/v1/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// POST /api/v1/bookings/{id}/status
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeDomainError(w, err)
		return
	}
	to, err := models.ParseStatus(req.Status)
	if err != nil {
		s.writeDomainError(w, domain.NewValidationError("status", "%v", err))
		return
	}
	b, err := s.bookings.UpdateStatus(r.Context(), principal(r), r.PathValue("id"), to, req.Note)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/v1/chefs/{id}/bookings?date=YYYY-MM-DD
func (s *HTTPServer) handleChefBookings(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	chefID := r.PathValue("id")
	list, err := s.bookings.ListForChef(r.Context(), chefID, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, ChefBookingsResponse{ChefID: chefID, Date: raw, Bookings: list})
}
