package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/services"
)

func TestDoctorHandlersListDefaultsToVerified(t *testing.T) {
	var capturedOnlyVerified bool
	service := &stubDoctorService{
		listFunc: func(ctx context.Context, onlyVerified bool) ([]services.Doctor, error) {
			capturedOnlyVerified = onlyVerified
			return []services.Doctor{
				{
					ID:              "doc_1",
					Name:            "drh. Sari Wijaya",
					Specialization:  "small animals",
					ConsultationFee: 150000,
					Rating:          4.8,
					IsVerified:      true,
					WorkingHours: []domain.WorkingHour{
						{Day: time.Monday, Start: "09:00", End: "12:00"},
					},
				},
			}, nil
		},
	}

	rr := serveDoctors(t, service, "/doctors")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !capturedOnlyVerified {
		t.Fatalf("expected verified-only listing by default")
	}

	var resp doctorListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Doctors) != 1 {
		t.Fatalf("expected 1 doctor, got %d", len(resp.Doctors))
	}
	doctor := resp.Doctors[0]
	if doctor.ConsultationFee != 150000 {
		t.Fatalf("unexpected fee %d", doctor.ConsultationFee)
	}
	if len(doctor.WorkingHours) != 1 || doctor.WorkingHours[0].Day != "monday" {
		t.Fatalf("unexpected working hours %+v", doctor.WorkingHours)
	}
}

func TestDoctorHandlersListIncludeUnverified(t *testing.T) {
	var capturedOnlyVerified bool
	service := &stubDoctorService{
		listFunc: func(ctx context.Context, onlyVerified bool) ([]services.Doctor, error) {
			capturedOnlyVerified = onlyVerified
			return nil, nil
		},
	}

	rr := serveDoctors(t, service, "/doctors?include_unverified=true")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedOnlyVerified {
		t.Fatalf("expected unverified doctors to be included")
	}
}

func TestDoctorHandlersGetMapsNotFound(t *testing.T) {
	service := &stubDoctorService{
		getFunc: func(ctx context.Context, doctorID string) (services.Doctor, error) {
			return services.Doctor{}, services.ErrDoctorNotFound
		},
	}

	rr := serveDoctors(t, service, "/doctors/doc_missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "doctor_not_found" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestDoctorHandlersAvailability(t *testing.T) {
	var captured services.AvailabilityCommand
	service := &stubDoctorService{
		availabilityFunc: func(ctx context.Context, cmd services.AvailabilityCommand) (bool, error) {
			captured = cmd
			return true, nil
		},
	}

	rr := serveDoctors(t, service, "/doctors/doc_1/availability?date=2025-03-17&time=10:00")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.DoctorID != "doc_1" || captured.AppointmentTime != "10:00" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if !captured.AppointmentDate.Equal(time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", captured.AppointmentDate)
	}

	var resp availabilityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Available {
		t.Fatalf("expected available true")
	}
}

func TestDoctorHandlersAvailabilityRequiresDate(t *testing.T) {
	rr := serveDoctors(t, &stubDoctorService{}, "/doctors/doc_1/availability?time=10:00")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func serveDoctors(t *testing.T, service services.DoctorService, target string) *httptest.ResponseRecorder {
	t.Helper()

	handler := NewDoctorHandlers(service)
	router := chi.NewRouter()
	router.Route("/doctors", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type stubDoctorService struct {
	getFunc          func(ctx context.Context, doctorID string) (services.Doctor, error)
	listFunc         func(ctx context.Context, onlyVerified bool) ([]services.Doctor, error)
	availabilityFunc func(ctx context.Context, cmd services.AvailabilityCommand) (bool, error)
}

func (s *stubDoctorService) GetDoctor(ctx context.Context, doctorID string) (services.Doctor, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, doctorID)
	}
	return services.Doctor{}, errors.New("not implemented")
}

func (s *stubDoctorService) ListDoctors(ctx context.Context, onlyVerified bool) ([]services.Doctor, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, onlyVerified)
	}
	return nil, errors.New("not implemented")
}

func (s *stubDoctorService) CheckAvailability(ctx context.Context, cmd services.AvailabilityCommand) (bool, error) {
	if s.availabilityFunc != nil {
		return s.availabilityFunc(ctx, cmd)
	}
	return false, errors.New("not implemented")
}
