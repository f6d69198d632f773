package domain

import "time"

// OrderStatus tracks the lifecycle of a product order.
type OrderStatus string

const (
	// OrderStatusPending marks an order awaiting payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing marks a paid order awaiting delivery.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusSuccess marks an order whose delivery the buyer confirmed.
	OrderStatusSuccess OrderStatus = "success"
	// OrderStatusCancelled marks an order cancelled before payment.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// BookingStatus tracks the lifecycle of a consultation booking.
type BookingStatus string

const (
	// BookingStatusPending marks a booking awaiting payment.
	BookingStatusPending BookingStatus = "pending"
	// BookingStatusProcessing marks a paid booking awaiting the consult.
	BookingStatusProcessing BookingStatus = "processing"
	// BookingStatusCompleted marks a booking whose consult finished.
	BookingStatusCompleted BookingStatus = "completed"
	// BookingStatusCancelled marks a booking cancelled before completion.
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus tracks the lifecycle of a payment record.
type PaymentStatus string

const (
	// PaymentStatusPending marks a payment that has not settled.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSuccess marks a settled payment.
	PaymentStatusSuccess PaymentStatus = "success"
	// PaymentStatusCancelled marks a payment voided before settlement.
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// PaymentReferenceType names the aggregate a payment settles.
type PaymentReferenceType string

const (
	// PaymentReferenceOrder points a payment at a product order.
	PaymentReferenceOrder PaymentReferenceType = "order"
	// PaymentReferenceBooking points a payment at a consultation booking.
	PaymentReferenceBooking PaymentReferenceType = "booking"
)

// ShippingMethod selects the delivery tier for an order.
type ShippingMethod string

const (
	// ShippingRegular is the standard delivery tier.
	ShippingRegular ShippingMethod = "regular"
	// ShippingExpress is the expedited delivery tier.
	ShippingExpress ShippingMethod = "express"
)

// ConsultationType selects how a booked consult is held.
type ConsultationType string

const (
	// ConsultationChat is a text based consult.
	ConsultationChat ConsultationType = "chat"
	// ConsultationVideo is a video call consult.
	ConsultationVideo ConsultationType = "video"
)

// SenderKind identifies which side of a chat wrote a message.
type SenderKind string

const (
	// SenderUser marks a message written by the pet owner.
	SenderUser SenderKind = "user"
	// SenderDoctor marks a message written by the doctor.
	SenderDoctor SenderKind = "doctor"
)

// ProductImage is one image attached to a product listing.
type ProductImage struct {
	PublicID string
	URL      string
	IsMain   bool
}

// Product is the storefront listing a cart item points at. Stock is the
// remaining sellable quantity and is only mutated through order
// transitions.
type Product struct {
	ID        string
	Name      string
	Price     int64
	Stock     int
	Images    []ProductImage
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductSnapshot freezes the listing fields a cart or order item was
// priced against, so later catalogue edits do not rewrite history.
type ProductSnapshot struct {
	Name   string
	Images []ProductImage
	Stock  int
}

// CartItem is one product line inside a cart. UnitPrice is captured at
// add time and never re-read from the catalogue.
type CartItem struct {
	ProductID string
	Quantity  int
	UnitPrice int64
	Snapshot  ProductSnapshot
	AddedAt   time.Time
}

// Cart holds a user's pending product selection. One cart per user.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartSummary is the priced view of a cart returned to callers.
type CartSummary struct {
	Items       []CartItem
	TotalItems  int
	Subtotal    int64
	ShippingFee int64
	AdminFee    int64
	Total       int64
	UpdatedAt   time.Time
}

// ShippingAddress is the delivery destination recorded on an order.
type ShippingAddress struct {
	Name       string
	Phone      string
	Address    string
	City       string
	PostalCode string
}

// OrderItem is one product line frozen into an order at checkout.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	Snapshot  ProductSnapshot
}

// Order is a checked-out cart with frozen prices and a human readable
// OrderNumber unique across the system.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	ShippingMethod  ShippingMethod
	Subtotal        int64
	ShippingFee     int64
	AdminFee        int64
	Total           int64
	Status          OrderStatus
	PaymentID       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
}

// WorkingHour is one weekly availability window on a doctor's schedule.
// Start and End are wall clock times in "15:04" form, inclusive at both
// ends. Full marks the window as booked out regardless of the clock.
type WorkingHour struct {
	Day   time.Weekday
	Start string
	End   string
	Full  bool
}

// Doctor is a consulting veterinarian. ConsultationFee prices one
// booking; TotalPatients counts completed consults.
type Doctor struct {
	ID              string
	Name            string
	Specialization  string
	Biography       string
	ConsultationFee int64
	TotalPatients   int
	Rating          float64
	WorkingHours    []WorkingHour
	IsOnline        bool
	IsVerified      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Booking is a scheduled consultation with a doctor. AppointmentTime is
// the wall clock slot in "15:04" form on AppointmentDate's day.
type Booking struct {
	ID               string
	OrderNumber      string
	UserID           string
	DoctorID         string
	AppointmentDate  time.Time
	AppointmentTime  string
	ConsultationType ConsultationType
	Subtotal         int64
	AdminFee         int64
	Total            int64
	Status           BookingStatus
	PaymentID        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CancelledAt      *time.Time
}

// Payment settles exactly one order or booking. Amount and Fee are
// copied from the reference aggregate at creation and Total is their
// sum.
type Payment struct {
	ID            string
	UserID        string
	ReferenceType PaymentReferenceType
	ReferenceID   string
	Amount        int64
	Fee           int64
	Total         int64
	Method        string
	TransactionID string
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChatMessage is one message inside a consultation chat.
type ChatMessage struct {
	ID       string
	SenderID string
	Sender   SenderKind
	Content  string
	Read     bool
	SentAt   time.Time
}

// Chat is the message thread attached to a booking. At most one chat
// exists per booking.
type Chat struct {
	ID          string
	BookingID   string
	UserID      string
	DoctorID    string
	Messages    []ChatMessage
	LastMessage time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
