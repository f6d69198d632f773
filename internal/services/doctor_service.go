package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/cache"
	"github.com/pawmart/api/internal/repositories"
)

var (
	// ErrDoctorInvalidInput signals the caller provided invalid data.
	ErrDoctorInvalidInput = errors.New("doctor: invalid input")
	// ErrDoctorNotFound indicates the doctor does not exist.
	ErrDoctorNotFound = errors.New("doctor: not found")
)

// DoctorServiceDeps bundles collaborators required to construct the doctor service.
type DoctorServiceDeps struct {
	Doctors  repositories.DoctorRepository
	Cache    cache.Store
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   Logger
}

type doctorService struct {
	doctors repositories.DoctorRepository
	cache   cacheSyncer
	clock   func() time.Time
	logger  Logger
}

// NewDoctorService wires dependencies into a concrete DoctorService implementation.
func NewDoctorService(deps DoctorServiceDeps) (DoctorService, error) {
	if deps.Doctors == nil {
		return nil, errors.New("doctor service: doctor repository is required")
	}

	logger := normalizeLogger(deps.Logger)
	return &doctorService{
		doctors: deps.Doctors,
		cache:   newCacheSyncer(deps.Cache, deps.CacheTTL, logger),
		clock:   utcClock(deps.Clock),
		logger:  logger,
	}, nil
}

func (s *doctorService) GetDoctor(ctx context.Context, doctorID string) (Doctor, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return Doctor{}, fmt.Errorf("%w: doctor id is required", ErrDoctorInvalidInput)
	}

	var cached domain.Doctor
	if s.cache.fetch(ctx, cacheKindDoctor, doctorID, &cached) && cached.ID == doctorID {
		return cached, nil
	}

	doctor, err := s.doctors.FindByID(ctx, doctorID)
	if err != nil {
		return Doctor{}, s.mapRepositoryError(err)
	}
	s.cache.publish(ctx, cacheKindDoctor, doctor.ID, doctor)
	return doctor, nil
}

func (s *doctorService) ListDoctors(ctx context.Context, onlyVerified bool) ([]Doctor, error) {
	doctors, err := s.doctors.List(ctx, onlyVerified)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return doctors, nil
}

func (s *doctorService) CheckAvailability(ctx context.Context, cmd AvailabilityCommand) (bool, error) {
	doctorID := strings.TrimSpace(cmd.DoctorID)
	slot := strings.TrimSpace(cmd.AppointmentTime)
	if doctorID == "" {
		return false, fmt.Errorf("%w: doctor id is required", ErrDoctorInvalidInput)
	}
	if cmd.AppointmentDate.IsZero() {
		return false, fmt.Errorf("%w: appointment date is required", ErrDoctorInvalidInput)
	}
	if _, err := domain.ParseClock(slot); err != nil {
		return false, fmt.Errorf("%w: appointment time: %v", ErrDoctorInvalidInput, err)
	}

	doctor, err := s.GetDoctor(ctx, doctorID)
	if err != nil {
		return false, err
	}
	available, err := domain.DoctorAvailableAt(doctor, cmd.AppointmentDate, slot)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDoctorInvalidInput, err)
	}
	return available, nil
}

func (s *doctorService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrDoctorNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("doctor: repository unavailable: %w", err)
		}
	}
	return err
}

var _ DoctorService = (*doctorService)(nil)
