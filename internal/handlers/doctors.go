package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pawmart/api/internal/platform/httpx"
	"github.com/pawmart/api/internal/services"
)

// DoctorHandlers exposes the doctor directory endpoints.
type DoctorHandlers struct {
	doctors services.DoctorService
}

// NewDoctorHandlers constructs handlers backed by the doctor service.
func NewDoctorHandlers(doctors services.DoctorService) *DoctorHandlers {
	return &DoctorHandlers{doctors: doctors}
}

// Routes wires the /doctors endpoints onto the provided router.
func (h *DoctorHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Get("/{doctorID}", h.get)
	r.Get("/{doctorID}/availability", h.availability)
}

func (h *DoctorHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	onlyVerified := true
	if raw := strings.TrimSpace(r.URL.Query().Get("include_unverified")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "include_unverified must be a boolean", http.StatusBadRequest))
			return
		}
		onlyVerified = !include
	}

	doctors, err := h.doctors.ListDoctors(ctx, onlyVerified)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]doctorPayload, 0, len(doctors))
	for _, doctor := range doctors {
		payload = append(payload, buildDoctorPayload(doctor))
	}
	httpx.WriteJSON(w, http.StatusOK, doctorListResponse{Doctors: payload})
}

func (h *DoctorHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doctor, err := h.doctors.GetDoctor(ctx, chi.URLParam(r, "doctorID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doctorResponse{Doctor: buildDoctorPayload(doctor)})
}

func (h *DoctorHandlers) availability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	rawDate := strings.TrimSpace(query.Get("date"))
	if rawDate == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "date query parameter is required", http.StatusBadRequest))
		return
	}
	date, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "date must be YYYY-MM-DD", http.StatusBadRequest))
		return
	}

	available, err := h.doctors.CheckAvailability(ctx, services.AvailabilityCommand{
		DoctorID:        chi.URLParam(r, "doctorID"),
		AppointmentDate: date,
		AppointmentTime: query.Get("time"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{Available: available})
}

type doctorResponse struct {
	Doctor doctorPayload `json:"doctor"`
}

type doctorListResponse struct {
	Doctors []doctorPayload `json:"doctors"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

type doctorPayload struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Specialization  string               `json:"specialization,omitempty"`
	Biography       string               `json:"biography,omitempty"`
	ConsultationFee int64                `json:"consultation_fee"`
	TotalPatients   int                  `json:"total_patients"`
	Rating          float64              `json:"rating"`
	WorkingHours    []workingHourPayload `json:"working_hours,omitempty"`
	IsOnline        bool                 `json:"is_online"`
	IsVerified      bool                 `json:"is_verified"`
}

type workingHourPayload struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
	Full  bool   `json:"full"`
}

func buildDoctorPayload(doctor services.Doctor) doctorPayload {
	payload := doctorPayload{
		ID:              doctor.ID,
		Name:            doctor.Name,
		Specialization:  doctor.Specialization,
		Biography:       doctor.Biography,
		ConsultationFee: doctor.ConsultationFee,
		TotalPatients:   doctor.TotalPatients,
		Rating:          doctor.Rating,
		IsOnline:        doctor.IsOnline,
		IsVerified:      doctor.IsVerified,
	}
	for _, slot := range doctor.WorkingHours {
		payload.WorkingHours = append(payload.WorkingHours, workingHourPayload{
			Day:   strings.ToLower(slot.Day.String()),
			Start: slot.Start,
			End:   slot.End,
			Full:  slot.Full,
		})
	}
	return payload
}
