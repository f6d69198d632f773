package services

import (
	"context"
	"time"

	domain "github.com/pawmart/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product          = domain.Product
	ProductSnapshot  = domain.ProductSnapshot
	Cart             = domain.Cart
	CartItem         = domain.CartItem
	CartSummary      = domain.CartSummary
	Order            = domain.Order
	OrderItem        = domain.OrderItem
	OrderStatus      = domain.OrderStatus
	ShippingAddress  = domain.ShippingAddress
	ShippingMethod   = domain.ShippingMethod
	Doctor           = domain.Doctor
	WorkingHour      = domain.WorkingHour
	Booking          = domain.Booking
	BookingStatus    = domain.BookingStatus
	ConsultationType = domain.ConsultationType
	Payment          = domain.Payment
	PaymentStatus    = domain.PaymentStatus
	Chat             = domain.Chat
	ChatMessage      = domain.ChatMessage
	HealthReport     = domain.HealthReport
)

// CartService manages the user's pending product selection.
type CartService interface {
	GetSummary(ctx context.Context, userID string) (CartSummary, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartSummary, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartSummary, error)
	RemoveItem(ctx context.Context, userID, productID string) (CartSummary, error)
	Clear(ctx context.Context, userID string) error
}

// AddCartItemCommand adds a product to the caller's cart.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// UpdateCartItemCommand sets the quantity of an existing cart line.
type UpdateCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// OrderService owns the order lifecycle from checkout to completion.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (Order, error)
	ListOrders(ctx context.Context, cmd ListOrdersCommand) ([]Order, error)
	ConfirmReceived(ctx context.Context, userID, orderID string) (Order, error)
	CancelOrder(ctx context.Context, userID, orderID string) (Order, error)
}

// CreateOrderCommand checks out the caller's cart into an order.
type CreateOrderCommand struct {
	UserID          string
	ShippingAddress ShippingAddress
	ShippingMethod  ShippingMethod
}

// ListOrdersCommand narrows the caller's order listing.
type ListOrdersCommand struct {
	UserID string
	Status OrderStatus
	Page   int
	Limit  int
}

// BookingService owns the consultation booking lifecycle.
type BookingService interface {
	CreateBooking(ctx context.Context, cmd CreateBookingCommand) (Booking, error)
	GetBooking(ctx context.Context, callerID, bookingID string) (Booking, error)
	ListByUser(ctx context.Context, userID string) ([]Booking, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]Booking, error)
	ListUpcoming(ctx context.Context, userID string) ([]Booking, error)
	ConfirmCompleted(ctx context.Context, userID, bookingID string) (Booking, error)
	CancelBooking(ctx context.Context, userID, bookingID string) (Booking, error)
}

// CreateBookingCommand schedules a consultation with a doctor.
type CreateBookingCommand struct {
	UserID           string
	DoctorID         string
	AppointmentDate  time.Time
	AppointmentTime  string
	ConsultationType ConsultationType
}

// PaymentService settles orders and bookings.
type PaymentService interface {
	CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (Payment, error)
	GetPayment(ctx context.Context, userID, paymentID string) (Payment, error)
	ListPayments(ctx context.Context, cmd ListPaymentsCommand) ([]Payment, error)
	CancelPayment(ctx context.Context, userID, paymentID string) (Payment, error)
}

// CreatePaymentCommand settles an order or booking owned by the caller.
type CreatePaymentCommand struct {
	UserID        string
	ReferenceType domain.PaymentReferenceType
	ReferenceID   string
	Method        string
}

// ListPaymentsCommand narrows the caller's payment listing.
type ListPaymentsCommand struct {
	UserID        string
	Status        PaymentStatus
	ReferenceType domain.PaymentReferenceType
}

// ChatService manages consultation message threads.
type ChatService interface {
	Initialize(ctx context.Context, cmd InitializeChatCommand) (Chat, error)
	SendMessage(ctx context.Context, cmd SendMessageCommand) (Chat, error)
	History(ctx context.Context, callerID, chatID string) (Chat, error)
	ListChats(ctx context.Context, participantID string) ([]Chat, error)
	MarkRead(ctx context.Context, callerID, chatID string) (Chat, error)
}

// InitializeChatCommand opens (or returns) the chat for a booking.
type InitializeChatCommand struct {
	CallerID  string
	BookingID string
}

// SendMessageCommand appends a message to a chat.
type SendMessageCommand struct {
	CallerID string
	Sender   domain.SenderKind
	ChatID   string
	Content  string
}

// DoctorService reads doctor profiles and evaluates availability.
type DoctorService interface {
	GetDoctor(ctx context.Context, doctorID string) (Doctor, error)
	ListDoctors(ctx context.Context, onlyVerified bool) ([]Doctor, error)
	CheckAvailability(ctx context.Context, cmd AvailabilityCommand) (bool, error)
}

// AvailabilityCommand asks whether a doctor can take an appointment.
type AvailabilityCommand struct {
	DoctorID        string
	AppointmentDate time.Time
	AppointmentTime string
}

// SystemService exposes operational health information.
type SystemService interface {
	Health(ctx context.Context) (HealthReport, error)
}

// LifecycleEvent captures metadata for emitted aggregate transitions.
type LifecycleEvent struct {
	Type           string
	EntityKind     string
	EntityID       string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// LifecycleEventPublisher publishes lifecycle events for downstream consumers.
type LifecycleEventPublisher interface {
	PublishLifecycleEvent(ctx context.Context, event LifecycleEvent) error
}
