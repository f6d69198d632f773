package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/auth"
	"github.com/pawmart/api/internal/platform/httpx"
	"github.com/pawmart/api/internal/services"
)

// BookingHandlers exposes the authenticated booking endpoints.
type BookingHandlers struct {
	bookings services.BookingService
}

// NewBookingHandlers constructs handlers backed by the booking service.
func NewBookingHandlers(bookings services.BookingService) *BookingHandlers {
	return &BookingHandlers{bookings: bookings}
}

// Routes wires the /bookings endpoints onto the provided router.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.create)
	r.Get("/", h.listMine)
	r.Get("/upcoming", h.listUpcoming)
	r.With(auth.RequireRole(auth.RoleDoctor)).Get("/doctor", h.listForDoctor)
	r.Get("/{bookingID}", h.get)
	r.Patch("/{bookingID}/confirm", h.confirmCompleted)
	r.Patch("/{bookingID}/cancel", h.cancel)
}

func (h *BookingHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	var req createBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.AppointmentDate))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "appointment_date must be YYYY-MM-DD", http.StatusBadRequest))
		return
	}

	booking, err := h.bookings.CreateBooking(ctx, services.CreateBookingCommand{
		UserID:           identity.UID,
		DoctorID:         req.DoctorID,
		AppointmentDate:  date,
		AppointmentTime:  req.AppointmentTime,
		ConsultationType: domain.ConsultationType(strings.ToLower(strings.TrimSpace(req.ConsultationType))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bookingResponse{Booking: buildBookingPayload(booking)})
}

func (h *BookingHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListByUser(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeBookingList(w, bookings)
}

func (h *BookingHandlers) listUpcoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListUpcoming(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeBookingList(w, bookings)
}

func (h *BookingHandlers) listForDoctor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListByDoctor(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeBookingList(w, bookings)
}

func (h *BookingHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(ctx, identity.UID, chi.URLParam(r, "bookingID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(booking)})
}

func (h *BookingHandlers) confirmCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	booking, err := h.bookings.ConfirmCompleted(ctx, identity.UID, chi.URLParam(r, "bookingID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(booking)})
}

func (h *BookingHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	booking, err := h.bookings.CancelBooking(ctx, identity.UID, chi.URLParam(r, "bookingID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(booking)})
}

func writeBookingList(w http.ResponseWriter, bookings []services.Booking) {
	payload := make([]bookingPayload, 0, len(bookings))
	for _, booking := range bookings {
		payload = append(payload, buildBookingPayload(booking))
	}
	httpx.WriteJSON(w, http.StatusOK, bookingListResponse{Bookings: payload})
}

type createBookingRequest struct {
	DoctorID         string `json:"doctor_id"`
	AppointmentDate  string `json:"appointment_date"`
	AppointmentTime  string `json:"appointment_time"`
	ConsultationType string `json:"consultation_type"`
}

type bookingResponse struct {
	Booking bookingPayload `json:"booking"`
}

type bookingListResponse struct {
	Bookings []bookingPayload `json:"bookings"`
}

type bookingPayload struct {
	ID               string `json:"id"`
	BookingNumber    string `json:"booking_number"`
	UserID           string `json:"user_id"`
	DoctorID         string `json:"doctor_id"`
	AppointmentDate  string `json:"appointment_date"`
	AppointmentTime  string `json:"appointment_time"`
	ConsultationType string `json:"consultation_type"`
	Subtotal         int64  `json:"subtotal"`
	AdminFee         int64  `json:"admin_fee"`
	Total            int64  `json:"total"`
	Status           string `json:"status"`
	PaymentID        string `json:"payment_id,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
}

func buildBookingPayload(booking services.Booking) bookingPayload {
	payload := bookingPayload{
		ID:               booking.ID,
		BookingNumber:    booking.OrderNumber,
		UserID:           booking.UserID,
		DoctorID:         booking.DoctorID,
		AppointmentDate:  booking.AppointmentDate.UTC().Format("2006-01-02"),
		AppointmentTime:  booking.AppointmentTime,
		ConsultationType: string(booking.ConsultationType),
		Subtotal:         booking.Subtotal,
		AdminFee:         booking.AdminFee,
		Total:            booking.Total,
		Status:           string(booking.Status),
	}
	if booking.PaymentID != nil {
		payload.PaymentID = *booking.PaymentID
	}
	if !booking.CreatedAt.IsZero() {
		payload.CreatedAt = booking.CreatedAt.UTC().Format(timeFormat)
	}
	if booking.CancelledAt != nil {
		payload.CancelledAt = booking.CancelledAt.UTC().Format(timeFormat)
	}
	return payload
}
