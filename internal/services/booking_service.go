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
	// ErrBookingInvalidInput signals the caller provided invalid data.
	ErrBookingInvalidInput = errors.New("booking: invalid input")
	// ErrBookingNotFound indicates the booking does not exist.
	ErrBookingNotFound = errors.New("booking: not found")
	// ErrBookingDoctorNotFound indicates the referenced doctor does not exist.
	ErrBookingDoctorNotFound = errors.New("booking: doctor not found")
	// ErrBookingUnauthorized indicates the caller is not a participant.
	ErrBookingUnauthorized = errors.New("booking: unauthorized")
	// ErrBookingInvalidState indicates the requested transition is not allowed.
	ErrBookingInvalidState = errors.New("booking: invalid state transition")
	// ErrBookingConflict indicates booking number claims kept colliding.
	ErrBookingConflict = errors.New("booking: conflict")
	// ErrBookingDoctorUnavailable indicates the slot is outside the doctor's hours.
	ErrBookingDoctorUnavailable = errors.New("booking: doctor unavailable")
)

const bookingNumberAttempts = 3

// bookingTransitions is the allowed status graph. Completed and
// cancelled are terminal.
var bookingTransitions = map[domain.BookingStatus]map[domain.BookingStatus]struct{}{
	domain.BookingStatusPending: {
		domain.BookingStatusProcessing: {},
		domain.BookingStatusCancelled:  {},
	},
	domain.BookingStatusProcessing: {
		domain.BookingStatusCompleted: {},
		domain.BookingStatusCancelled: {},
	},
}

func bookingCanTransition(from, to domain.BookingStatus) bool {
	next, ok := bookingTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// BookingServiceDeps bundles collaborators required to construct the booking service.
type BookingServiceDeps struct {
	Bookings repositories.BookingRepository
	Doctors  repositories.DoctorRepository
	Payments repositories.PaymentRepository
	Cache    cache.Store
	CacheTTL time.Duration
	Events   LifecycleEventPublisher
	Clock    func() time.Time
	Logger   Logger
}

type bookingService struct {
	bookings repositories.BookingRepository
	doctors  repositories.DoctorRepository
	payments repositories.PaymentRepository
	cache    cacheSyncer
	events   LifecycleEventPublisher
	clock    func() time.Time
	logger   Logger
}

// NewBookingService wires dependencies into a concrete BookingService implementation.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	if deps.Bookings == nil {
		return nil, errors.New("booking service: booking repository is required")
	}
	if deps.Doctors == nil {
		return nil, errors.New("booking service: doctor repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("booking service: payment repository is required")
	}

	logger := normalizeLogger(deps.Logger)
	return &bookingService{
		bookings: deps.Bookings,
		doctors:  deps.Doctors,
		payments: deps.Payments,
		cache:    newCacheSyncer(deps.Cache, deps.CacheTTL, logger),
		events:   deps.Events,
		clock:    utcClock(deps.Clock),
		logger:   logger,
	}, nil
}

func (s *bookingService) CreateBooking(ctx context.Context, cmd CreateBookingCommand) (Booking, error) {
	userID := strings.TrimSpace(cmd.UserID)
	doctorID := strings.TrimSpace(cmd.DoctorID)
	slot := strings.TrimSpace(cmd.AppointmentTime)
	if userID == "" {
		return Booking{}, fmt.Errorf("%w: user id is required", ErrBookingInvalidInput)
	}
	if doctorID == "" {
		return Booking{}, fmt.Errorf("%w: doctor id is required", ErrBookingInvalidInput)
	}
	if cmd.AppointmentDate.IsZero() {
		return Booking{}, fmt.Errorf("%w: appointment date is required", ErrBookingInvalidInput)
	}
	if _, err := domain.ParseClock(slot); err != nil {
		return Booking{}, fmt.Errorf("%w: appointment time: %v", ErrBookingInvalidInput, err)
	}
	consultation := cmd.ConsultationType
	if consultation == "" {
		consultation = domain.ConsultationChat
	}
	if consultation != domain.ConsultationChat && consultation != domain.ConsultationVideo {
		return Booking{}, fmt.Errorf("%w: unknown consultation type %q", ErrBookingInvalidInput, cmd.ConsultationType)
	}

	doctor, err := s.doctors.FindByID(ctx, doctorID)
	if err != nil {
		return Booking{}, s.mapRepositoryError(err, ErrBookingDoctorNotFound)
	}

	available, err := domain.DoctorAvailableAt(doctor, cmd.AppointmentDate, slot)
	if err != nil {
		return Booking{}, fmt.Errorf("%w: %v", ErrBookingInvalidInput, err)
	}
	if !available {
		return Booking{}, fmt.Errorf("%w: %s has no open slot at %s on %s", ErrBookingDoctorUnavailable, doctorID, slot, cmd.AppointmentDate.Format("2006-01-02"))
	}

	now := s.clock()
	charges := domain.PriceBooking(doctor.ConsultationFee)
	booking := domain.Booking{
		ID:               newEntityID(bookingIDPrefix),
		UserID:           userID,
		DoctorID:         doctorID,
		AppointmentDate:  cmd.AppointmentDate.UTC(),
		AppointmentTime:  slot,
		ConsultationType: consultation,
		Subtotal:         charges.Subtotal,
		AdminFee:         charges.AdminFee,
		Total:            charges.Total,
		Status:           domain.BookingStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.insertWithNumber(ctx, &booking); err != nil {
		return Booking{}, err
	}

	// The consult counter moves at booking time and stays put on
	// cancellation, so it reads as total demand rather than visits held.
	updated, err := s.doctors.IncrementPatients(ctx, doctorID)
	if err != nil {
		s.logger(ctx, "booking.patient_count.failed", map[string]any{
			"booking_id": booking.ID,
			"doctor_id":  doctorID,
			"error":      err.Error(),
		})
	} else {
		s.cache.publish(ctx, cacheKindDoctor, doctorID, updated)
	}

	s.cache.publish(ctx, cacheKindBooking, booking.ID, booking)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:          "booking.created",
		EntityKind:    "booking",
		EntityID:      booking.ID,
		CurrentStatus: string(booking.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"booking_number": booking.OrderNumber,
			"doctor_id":      doctorID,
			"total":          booking.Total,
		},
	})

	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, callerID, bookingID string) (Booking, error) {
	callerID = strings.TrimSpace(callerID)
	bookingID = strings.TrimSpace(bookingID)
	if callerID == "" || bookingID == "" {
		return Booking{}, fmt.Errorf("%w: caller id and booking id are required", ErrBookingInvalidInput)
	}

	var cached domain.Booking
	if s.cache.fetch(ctx, cacheKindBooking, bookingID, &cached) && cached.ID == bookingID {
		if cached.UserID != callerID && cached.DoctorID != callerID {
			return Booking{}, fmt.Errorf("%w: booking %s belongs to another user", ErrBookingUnauthorized, bookingID)
		}
		return cached, nil
	}

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return Booking{}, s.mapRepositoryError(err, ErrBookingNotFound)
	}
	if booking.UserID != callerID && booking.DoctorID != callerID {
		return Booking{}, fmt.Errorf("%w: booking %s belongs to another user", ErrBookingUnauthorized, bookingID)
	}
	s.cache.publish(ctx, cacheKindBooking, booking.ID, booking)
	return booking, nil
}

func (s *bookingService) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrBookingInvalidInput)
	}
	bookings, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapRepositoryError(err, ErrBookingNotFound)
	}
	return bookings, nil
}

func (s *bookingService) ListByDoctor(ctx context.Context, doctorID string) ([]Booking, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, fmt.Errorf("%w: doctor id is required", ErrBookingInvalidInput)
	}
	bookings, err := s.bookings.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, s.mapRepositoryError(err, ErrBookingNotFound)
	}
	return bookings, nil
}

func (s *bookingService) ListUpcoming(ctx context.Context, userID string) ([]Booking, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrBookingInvalidInput)
	}
	// Anything from the start of today onwards counts as upcoming.
	now := s.clock()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	bookings, err := s.bookings.ListUpcoming(ctx, userID, from)
	if err != nil {
		return nil, s.mapRepositoryError(err, ErrBookingNotFound)
	}
	return bookings, nil
}

func (s *bookingService) ConfirmCompleted(ctx context.Context, userID, bookingID string) (Booking, error) {
	userID = strings.TrimSpace(userID)
	bookingID = strings.TrimSpace(bookingID)
	if userID == "" || bookingID == "" {
		return Booking{}, fmt.Errorf("%w: user id and booking id are required", ErrBookingInvalidInput)
	}

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return Booking{}, s.mapRepositoryError(err, ErrBookingNotFound)
	}
	if booking.UserID != userID {
		return Booking{}, fmt.Errorf("%w: booking %s belongs to another user", ErrBookingUnauthorized, bookingID)
	}
	if !bookingCanTransition(booking.Status, domain.BookingStatusCompleted) {
		return Booking{}, fmt.Errorf("%w: cannot move booking from %s to %s", ErrBookingInvalidState, booking.Status, domain.BookingStatusCompleted)
	}

	now := s.clock()
	previous := booking.Status
	booking.Status = domain.BookingStatusCompleted
	booking.UpdatedAt = now
	if err := s.bookings.Update(ctx, booking); err != nil {
		return Booking{}, s.mapRepositoryError(err, ErrBookingNotFound)
	}

	s.cache.publish(ctx, cacheKindBooking, booking.ID, booking)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:           "booking.completed",
		EntityKind:     "booking",
		EntityID:       booking.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(booking.Status),
		ActorID:        userID,
		OccurredAt:     now,
	})

	return booking, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, userID, bookingID string) (Booking, error) {
	userID = strings.TrimSpace(userID)
	bookingID = strings.TrimSpace(bookingID)
	if userID == "" || bookingID == "" {
		return Booking{}, fmt.Errorf("%w: user id and booking id are required", ErrBookingInvalidInput)
	}

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return Booking{}, s.mapRepositoryError(err, ErrBookingNotFound)
	}
	if booking.UserID != userID {
		return Booking{}, fmt.Errorf("%w: booking %s belongs to another user", ErrBookingUnauthorized, bookingID)
	}
	if !bookingCanTransition(booking.Status, domain.BookingStatusCancelled) {
		return Booking{}, fmt.Errorf("%w: cannot cancel a %s booking", ErrBookingInvalidState, booking.Status)
	}

	now := s.clock()
	previous := booking.Status
	booking.Status = domain.BookingStatusCancelled
	booking.UpdatedAt = now
	booking.CancelledAt = valuePtr(now)
	if err := s.bookings.Update(ctx, booking); err != nil {
		return Booking{}, s.mapRepositoryError(err, ErrBookingNotFound)
	}

	s.cancelPendingPayment(ctx, booking, now)

	s.cache.publish(ctx, cacheKindBooking, booking.ID, booking)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:           "booking.cancelled",
		EntityKind:     "booking",
		EntityID:       booking.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(booking.Status),
		ActorID:        userID,
		OccurredAt:     now,
	})

	return booking, nil
}

// cancelPendingPayment voids an unsettled payment attached to the
// booking. Failures are logged; the booking cancellation stands either
// way and the emitted event covers reconciliation.
func (s *bookingService) cancelPendingPayment(ctx context.Context, booking domain.Booking, now time.Time) {
	payment, err := s.payments.FindByReference(ctx, domain.PaymentReferenceBooking, booking.ID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return
		}
		s.logger(ctx, "booking.payment_lookup.failed", map[string]any{
			"booking_id": booking.ID,
			"error":      err.Error(),
		})
		return
	}
	if payment.Status != domain.PaymentStatusPending {
		return
	}

	payment.Status = domain.PaymentStatusCancelled
	payment.UpdatedAt = now
	if err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "booking.payment_cancel.failed", map[string]any{
			"booking_id": booking.ID,
			"payment_id": payment.ID,
			"error":      err.Error(),
		})
		return
	}
	s.cache.publish(ctx, cacheKindPayment, payment.ID, payment)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:           "payment.cancelled",
		EntityKind:     "payment",
		EntityID:       payment.ID,
		PreviousStatus: string(domain.PaymentStatusPending),
		CurrentStatus:  string(payment.Status),
		ActorID:        booking.UserID,
		OccurredAt:     now,
	})
}

// insertWithNumber issues a booking number and writes the booking,
// retrying with a fresh number when the claim collided.
func (s *bookingService) insertWithNumber(ctx context.Context, booking *domain.Booking) error {
	var lastErr error
	for attempt := 0; attempt < bookingNumberAttempts; attempt++ {
		booking.OrderNumber = NewBookingNumber()
		err := s.bookings.Insert(ctx, *booking)
		if err == nil {
			return nil
		}

		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			lastErr = err
			s.logger(ctx, "booking.number_conflict", map[string]any{
				"booking_number": booking.OrderNumber,
				"attempt":        attempt + 1,
			})
			continue
		}
		return s.mapRepositoryError(err, ErrBookingNotFound)
	}

	return fmt.Errorf("%w: booking number claims exhausted after %d attempts: %v", ErrBookingConflict, bookingNumberAttempts, lastErr)
}

func (s *bookingService) mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrBookingConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("booking: repository unavailable: %w", err)
		}
	}
	return err
}

var _ BookingService = (*bookingService)(nil)
