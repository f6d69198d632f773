package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawmart/api/internal/domain"
	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/repositories"
)

const (
	bookingCollection       = "bookings"
	bookingNumberCollection = "bookingNumbers"
)

// BookingRepository persists bookings within Firestore. Booking numbers
// are claimed through registry documents in the insert transaction.
type BookingRepository struct {
	base     *pfirestore.BaseRepository[bookingDocument]
	provider *pfirestore.Provider
}

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider) (*BookingRepository, error) {
	if provider == nil {
		return nil, errors.New("booking repository requires firestore provider")
	}
	return &BookingRepository{
		base:     pfirestore.NewBaseRepository[bookingDocument](provider, bookingCollection, nil, nil),
		provider: provider,
	}, nil
}

// Insert writes the booking and claims its number in one transaction.
func (r *BookingRepository) Insert(ctx context.Context, booking domain.Booking) error {
	bookingID := strings.TrimSpace(booking.ID)
	if bookingID == "" {
		return errors.New("booking repository: booking id is required")
	}
	number := strings.TrimSpace(booking.OrderNumber)
	if number == "" {
		return errors.New("booking repository: booking number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	bookingRef := client.Collection(bookingCollection).Doc(bookingID)
	numberRef := client.Collection(bookingNumberCollection).Doc(number)

	return r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(numberRef, orderNumberClaim{OrderID: bookingID, ClaimedAt: time.Now().UTC()}); err != nil {
			return pfirestore.WrapError("bookings.claim_number", err)
		}
		if err := tx.Create(bookingRef, bookingToDocument(booking)); err != nil {
			return pfirestore.WrapError("bookings.insert", err)
		}
		return nil
	})
}

// FindByID loads a single booking.
func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(bookingID))
	if err != nil {
		return domain.Booking{}, err
	}
	return bookingFromDocument(doc.ID, doc.Data), nil
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).OrderBy("createdAt", firestore.Desc)
	})
}

// ListByDoctor returns the doctor's bookings, newest first.
func (r *BookingRepository) ListByDoctor(ctx context.Context, doctorID string) ([]domain.Booking, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("doctorId", "==", strings.TrimSpace(doctorID)).OrderBy("createdAt", firestore.Desc)
	})
}

// ListUpcoming returns the user's future bookings that are still live.
// The terminal status filter is applied in memory; Firestore cannot
// combine a range with a not-in on another field.
func (r *BookingRepository) ListUpcoming(ctx context.Context, userID string, from time.Time) ([]domain.Booking, error) {
	bookings, err := r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("userId", "==", strings.TrimSpace(userID)).
			Where("appointmentDate", ">=", from.UTC()).
			OrderBy("appointmentDate", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	upcoming := bookings[:0]
	for _, booking := range bookings {
		if booking.Status == domain.BookingStatusCancelled || booking.Status == domain.BookingStatusCompleted {
			continue
		}
		upcoming = append(upcoming, booking)
	}
	return upcoming, nil
}

// Update rewrites the booking document.
func (r *BookingRepository) Update(ctx context.Context, booking domain.Booking) error {
	bookingID := strings.TrimSpace(booking.ID)
	if bookingID == "" {
		return errors.New("booking repository: booking id is required")
	}
	_, err := r.base.Set(ctx, bookingID, bookingToDocument(booking))
	return err
}

func (r *BookingRepository) query(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Booking, error) {
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	bookings := make([]domain.Booking, 0, len(docs))
	for _, doc := range docs {
		bookings = append(bookings, bookingFromDocument(doc.ID, doc.Data))
	}
	return bookings, nil
}

func bookingToDocument(booking domain.Booking) bookingDocument {
	doc := bookingDocument{
		OrderNumber:      booking.OrderNumber,
		UserID:           booking.UserID,
		DoctorID:         booking.DoctorID,
		AppointmentDate:  booking.AppointmentDate.UTC(),
		AppointmentTime:  booking.AppointmentTime,
		ConsultationType: string(booking.ConsultationType),
		Subtotal:         booking.Subtotal,
		AdminFee:         booking.AdminFee,
		Total:            booking.Total,
		Status:           string(booking.Status),
		PaymentID:        booking.PaymentID,
		CreatedAt:        booking.CreatedAt.UTC(),
		UpdatedAt:        booking.UpdatedAt.UTC(),
	}
	if booking.CancelledAt != nil {
		cancelled := booking.CancelledAt.UTC()
		doc.CancelledAt = &cancelled
	}
	return doc
}

func bookingFromDocument(id string, doc bookingDocument) domain.Booking {
	return domain.Booking{
		ID:               id,
		OrderNumber:      doc.OrderNumber,
		UserID:           doc.UserID,
		DoctorID:         doc.DoctorID,
		AppointmentDate:  doc.AppointmentDate,
		AppointmentTime:  doc.AppointmentTime,
		ConsultationType: domain.ConsultationType(doc.ConsultationType),
		Subtotal:         doc.Subtotal,
		AdminFee:         doc.AdminFee,
		Total:            doc.Total,
		Status:           domain.BookingStatus(doc.Status),
		PaymentID:        doc.PaymentID,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		CancelledAt:      doc.CancelledAt,
	}
}

type bookingDocument struct {
	OrderNumber      string     `firestore:"orderNumber"`
	UserID           string     `firestore:"userId"`
	DoctorID         string     `firestore:"doctorId"`
	AppointmentDate  time.Time  `firestore:"appointmentDate"`
	AppointmentTime  string     `firestore:"appointmentTime"`
	ConsultationType string     `firestore:"consultationType"`
	Subtotal         int64      `firestore:"subtotal"`
	AdminFee         int64      `firestore:"adminFee"`
	Total            int64      `firestore:"total"`
	Status           string     `firestore:"status"`
	PaymentID        *string    `firestore:"paymentId,omitempty"`
	CreatedAt        time.Time  `firestore:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt"`
	CancelledAt      *time.Time `firestore:"cancelledAt,omitempty"`
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)
