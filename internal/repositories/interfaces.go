package repositories

import (
	"context"
	"time"

	domain "github.com/pawmart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Doctors() DoctorRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	Chats() ChatRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads the catalogue and owns transactional stock adjustments.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	Insert(ctx context.Context, product domain.Product) error
	// RestoreStock adds each adjustment quantity back onto its product
	// inside a single transaction.
	RestoreStock(ctx context.Context, adjustments []StockAdjustment) error
}

// StockAdjustment names a product and the quantity to return to stock.
type StockAdjustment struct {
	ProductID string
	Quantity  int
}

// CartRepository persists at most one cart per user, keyed by user ID.
type CartRepository interface {
	FindByUser(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
}

// OrderRepository persists orders and enforces order number uniqueness.
type OrderRepository interface {
	// Insert writes the order and claims its order number in the same
	// transaction. A taken number surfaces as a conflict.
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) ([]domain.Order, error)
	// LatestOrderNumber returns the highest claimed order number with the
	// prefix, or empty when none exists.
	LatestOrderNumber(ctx context.Context, prefix string) (string, error)
	Update(ctx context.Context, order domain.Order) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Status domain.OrderStatus
	Limit  int
	Offset int
}

// DoctorRepository reads doctor profiles and updates consult load.
type DoctorRepository interface {
	FindByID(ctx context.Context, doctorID string) (domain.Doctor, error)
	List(ctx context.Context, onlyVerified bool) ([]domain.Doctor, error)
	Insert(ctx context.Context, doctor domain.Doctor) error
	Update(ctx context.Context, doctor domain.Doctor) error
	// IncrementPatients adds one to the doctor's consult counter
	// transactionally and returns the updated profile.
	IncrementPatients(ctx context.Context, doctorID string) (domain.Doctor, error)
}

// BookingRepository persists bookings and enforces booking number uniqueness.
type BookingRepository interface {
	Insert(ctx context.Context, booking domain.Booking) error
	FindByID(ctx context.Context, bookingID string) (domain.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Booking, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]domain.Booking, error)
	// ListUpcoming returns the user's bookings on or after the given day
	// that are neither cancelled nor completed.
	ListUpcoming(ctx context.Context, userID string, from time.Time) ([]domain.Booking, error)
	Update(ctx context.Context, booking domain.Booking) error
}

// PaymentRepository persists payments and enforces transaction id uniqueness.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	// FindByReference returns the payment settling the given aggregate.
	FindByReference(ctx context.Context, refType domain.PaymentReferenceType, refID string) (domain.Payment, error)
	ListByUser(ctx context.Context, userID string, filter PaymentListFilter) ([]domain.Payment, error)
	Update(ctx context.Context, payment domain.Payment) error
}

// PaymentListFilter narrows payment listings.
type PaymentListFilter struct {
	Status        domain.PaymentStatus
	ReferenceType domain.PaymentReferenceType
}

// ChatRepository persists consultation chats, at most one per booking.
type ChatRepository interface {
	Insert(ctx context.Context, chat domain.Chat) error
	FindByID(ctx context.Context, chatID string) (domain.Chat, error)
	FindByBooking(ctx context.Context, bookingID string) (domain.Chat, error)
	ListByParticipant(ctx context.Context, participantID string) ([]domain.Chat, error)
	Update(ctx context.Context, chat domain.Chat) error
}
