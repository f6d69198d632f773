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
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the payment does not exist.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentReferenceNotFound indicates the order or booking does not exist.
	ErrPaymentReferenceNotFound = errors.New("payment: reference not found")
	// ErrPaymentUnauthorized indicates the caller does not own the payment or reference.
	ErrPaymentUnauthorized = errors.New("payment: unauthorized")
	// ErrPaymentInvalidState indicates the reference or payment is not in a payable state.
	ErrPaymentInvalidState = errors.New("payment: invalid state")
	// ErrPaymentConflict indicates the reference is already settled or ids collided.
	ErrPaymentConflict = errors.New("payment: conflict")
)

const transactionIDAttempts = 3

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Payments repositories.PaymentRepository
	Orders   repositories.OrderRepository
	Bookings repositories.BookingRepository
	Products repositories.ProductRepository
	Cache    cache.Store
	CacheTTL time.Duration
	Events   LifecycleEventPublisher
	Clock    func() time.Time
	Logger   Logger
}

type paymentService struct {
	payments repositories.PaymentRepository
	orders   repositories.OrderRepository
	bookings repositories.BookingRepository
	products repositories.ProductRepository
	cache    cacheSyncer
	events   LifecycleEventPublisher
	clock    func() time.Time
	logger   Logger
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("payment service: booking repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("payment service: product repository is required")
	}

	logger := normalizeLogger(deps.Logger)
	return &paymentService{
		payments: deps.Payments,
		orders:   deps.Orders,
		bookings: deps.Bookings,
		products: deps.Products,
		cache:    newCacheSyncer(deps.Cache, deps.CacheTTL, logger),
		events:   deps.Events,
		clock:    utcClock(deps.Clock),
		logger:   logger,
	}, nil
}

func (s *paymentService) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (Payment, error) {
	userID := strings.TrimSpace(cmd.UserID)
	refID := strings.TrimSpace(cmd.ReferenceID)
	method := strings.TrimSpace(cmd.Method)
	if userID == "" {
		return Payment{}, fmt.Errorf("%w: user id is required", ErrPaymentInvalidInput)
	}
	if refID == "" {
		return Payment{}, fmt.Errorf("%w: reference id is required", ErrPaymentInvalidInput)
	}
	if method == "" {
		return Payment{}, fmt.Errorf("%w: payment method is required", ErrPaymentInvalidInput)
	}
	if cmd.ReferenceType != domain.PaymentReferenceOrder && cmd.ReferenceType != domain.PaymentReferenceBooking {
		return Payment{}, fmt.Errorf("%w: unknown reference type %q", ErrPaymentInvalidInput, cmd.ReferenceType)
	}

	amount, fee, total, err := s.chargeableReference(ctx, userID, cmd.ReferenceType, refID)
	if err != nil {
		return Payment{}, err
	}

	if _, err := s.payments.FindByReference(ctx, cmd.ReferenceType, refID); err == nil {
		return Payment{}, fmt.Errorf("%w: %s %s is already settled", ErrPaymentConflict, cmd.ReferenceType, refID)
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return Payment{}, s.mapRepositoryError(err, ErrPaymentNotFound)
		}
	}

	now := s.clock()
	payment := domain.Payment{
		ID:            newEntityID(paymentIDPrefix),
		UserID:        userID,
		ReferenceType: cmd.ReferenceType,
		ReferenceID:   refID,
		Amount:        amount,
		Fee:           fee,
		Total:         total,
		Method:        method,
		Status:        domain.PaymentStatusSuccess,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.insertWithTransactionID(ctx, &payment); err != nil {
		return Payment{}, err
	}

	s.settleReference(ctx, payment, now)

	s.cache.publish(ctx, cacheKindPayment, payment.ID, payment)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:          "payment.succeeded",
		EntityKind:    "payment",
		EntityID:      payment.ID,
		CurrentStatus: string(payment.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"reference_type": string(payment.ReferenceType),
			"reference_id":   payment.ReferenceID,
			"transaction_id": payment.TransactionID,
			"total":          payment.Total,
		},
	})

	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, userID, paymentID string) (Payment, error) {
	userID = strings.TrimSpace(userID)
	paymentID = strings.TrimSpace(paymentID)
	if userID == "" || paymentID == "" {
		return Payment{}, fmt.Errorf("%w: user id and payment id are required", ErrPaymentInvalidInput)
	}

	var cached domain.Payment
	if s.cache.fetch(ctx, cacheKindPayment, paymentID, &cached) && cached.ID == paymentID {
		if cached.UserID != userID {
			return Payment{}, fmt.Errorf("%w: payment %s belongs to another user", ErrPaymentUnauthorized, paymentID)
		}
		return cached, nil
	}

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err, ErrPaymentNotFound)
	}
	if payment.UserID != userID {
		return Payment{}, fmt.Errorf("%w: payment %s belongs to another user", ErrPaymentUnauthorized, paymentID)
	}
	s.cache.publish(ctx, cacheKindPayment, payment.ID, payment)
	return payment, nil
}

func (s *paymentService) ListPayments(ctx context.Context, cmd ListPaymentsCommand) ([]Payment, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrPaymentInvalidInput)
	}
	if cmd.Status != "" {
		switch cmd.Status {
		case domain.PaymentStatusPending, domain.PaymentStatusSuccess, domain.PaymentStatusCancelled:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrPaymentInvalidInput, cmd.Status)
		}
	}
	if cmd.ReferenceType != "" && cmd.ReferenceType != domain.PaymentReferenceOrder && cmd.ReferenceType != domain.PaymentReferenceBooking {
		return nil, fmt.Errorf("%w: unknown reference type %q", ErrPaymentInvalidInput, cmd.ReferenceType)
	}

	payments, err := s.payments.ListByUser(ctx, userID, repositories.PaymentListFilter{
		Status:        cmd.Status,
		ReferenceType: cmd.ReferenceType,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err, ErrPaymentNotFound)
	}
	return payments, nil
}

func (s *paymentService) CancelPayment(ctx context.Context, userID, paymentID string) (Payment, error) {
	userID = strings.TrimSpace(userID)
	paymentID = strings.TrimSpace(paymentID)
	if userID == "" || paymentID == "" {
		return Payment{}, fmt.Errorf("%w: user id and payment id are required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err, ErrPaymentNotFound)
	}
	if payment.UserID != userID {
		return Payment{}, fmt.Errorf("%w: payment %s belongs to another user", ErrPaymentUnauthorized, paymentID)
	}
	if payment.Status != domain.PaymentStatusPending {
		return Payment{}, fmt.Errorf("%w: only pending payments can be cancelled, payment is %s", ErrPaymentInvalidState, payment.Status)
	}

	now := s.clock()
	payment.Status = domain.PaymentStatusCancelled
	payment.UpdatedAt = now
	if err := s.payments.Update(ctx, payment); err != nil {
		return Payment{}, s.mapRepositoryError(err, ErrPaymentNotFound)
	}

	s.cancelPendingReference(ctx, payment, now)

	s.cache.publish(ctx, cacheKindPayment, payment.ID, payment)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:           "payment.cancelled",
		EntityKind:     "payment",
		EntityID:       payment.ID,
		PreviousStatus: string(domain.PaymentStatusPending),
		CurrentStatus:  string(payment.Status),
		ActorID:        userID,
		OccurredAt:     now,
	})

	return payment, nil
}

// chargeableReference loads the aggregate being paid for and returns
// its charge split. The reference must exist, belong to the payer and
// still be pending.
func (s *paymentService) chargeableReference(ctx context.Context, userID string, refType domain.PaymentReferenceType, refID string) (amount, fee, total int64, err error) {
	switch refType {
	case domain.PaymentReferenceOrder:
		order, err := s.orders.FindByID(ctx, refID)
		if err != nil {
			return 0, 0, 0, s.mapRepositoryError(err, ErrPaymentReferenceNotFound)
		}
		if order.UserID != userID {
			return 0, 0, 0, fmt.Errorf("%w: order %s belongs to another user", ErrPaymentUnauthorized, refID)
		}
		if order.Status != domain.OrderStatusPending {
			return 0, 0, 0, fmt.Errorf("%w: order %s is %s", ErrPaymentInvalidState, refID, order.Status)
		}
		return order.Total - order.AdminFee, order.AdminFee, order.Total, nil
	default:
		booking, err := s.bookings.FindByID(ctx, refID)
		if err != nil {
			return 0, 0, 0, s.mapRepositoryError(err, ErrPaymentReferenceNotFound)
		}
		if booking.UserID != userID {
			return 0, 0, 0, fmt.Errorf("%w: booking %s belongs to another user", ErrPaymentUnauthorized, refID)
		}
		if booking.Status != domain.BookingStatusPending {
			return 0, 0, 0, fmt.Errorf("%w: booking %s is %s", ErrPaymentInvalidState, refID, booking.Status)
		}
		return booking.Subtotal, booking.AdminFee, booking.Total, nil
	}
}

// settleReference flips the paid aggregate to processing and pins the
// payment id on it. Failures are logged; the emitted events carry
// enough to reconcile a missed flip.
func (s *paymentService) settleReference(ctx context.Context, payment domain.Payment, now time.Time) {
	switch payment.ReferenceType {
	case domain.PaymentReferenceOrder:
		order, err := s.orders.FindByID(ctx, payment.ReferenceID)
		if err == nil {
			order.Status = domain.OrderStatusProcessing
			order.PaymentID = valuePtr(payment.ID)
			order.UpdatedAt = now
			err = s.orders.Update(ctx, order)
			if err == nil {
				s.cache.publish(ctx, cacheKindOrder, order.ID, order)
				publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
					Type:           "order.paid",
					EntityKind:     "order",
					EntityID:       order.ID,
					PreviousStatus: string(domain.OrderStatusPending),
					CurrentStatus:  string(order.Status),
					ActorID:        payment.UserID,
					OccurredAt:     now,
					Metadata:       map[string]any{"payment_id": payment.ID},
				})
				return
			}
		}
		s.logger(ctx, "payment.settle_reference.failed", map[string]any{
			"payment_id": payment.ID,
			"order_id":   payment.ReferenceID,
			"error":      err.Error(),
		})
	default:
		booking, err := s.bookings.FindByID(ctx, payment.ReferenceID)
		if err == nil {
			booking.Status = domain.BookingStatusProcessing
			booking.PaymentID = valuePtr(payment.ID)
			booking.UpdatedAt = now
			err = s.bookings.Update(ctx, booking)
			if err == nil {
				s.cache.publish(ctx, cacheKindBooking, booking.ID, booking)
				publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
					Type:           "booking.paid",
					EntityKind:     "booking",
					EntityID:       booking.ID,
					PreviousStatus: string(domain.BookingStatusPending),
					CurrentStatus:  string(booking.Status),
					ActorID:        payment.UserID,
					OccurredAt:     now,
					Metadata:       map[string]any{"payment_id": payment.ID},
				})
				return
			}
		}
		s.logger(ctx, "payment.settle_reference.failed", map[string]any{
			"payment_id": payment.ID,
			"booking_id": payment.ReferenceID,
			"error":      err.Error(),
		})
	}
}

// cancelPendingReference voids the order a cancelled payment was meant
// to settle, returning its stock. Only orders cascade; a booking keeps
// its pending slot so the user can retry the payment.
func (s *paymentService) cancelPendingReference(ctx context.Context, payment domain.Payment, now time.Time) {
	if payment.ReferenceType == domain.PaymentReferenceOrder {
		order, err := s.orders.FindByID(ctx, payment.ReferenceID)
		if err != nil || order.Status != domain.OrderStatusPending {
			return
		}
		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now
		order.CancelledAt = valuePtr(now)
		if err := s.orders.Update(ctx, order); err != nil {
			s.logger(ctx, "payment.cancel_reference.failed", map[string]any{
				"payment_id": payment.ID,
				"order_id":   order.ID,
				"error":      err.Error(),
			})
			return
		}
		adjustments := make([]repositories.StockAdjustment, 0, len(order.Items))
		for _, item := range order.Items {
			adjustments = append(adjustments, repositories.StockAdjustment{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		if err := s.products.RestoreStock(ctx, adjustments); err != nil {
			s.logger(ctx, "payment.stock_restore.failed", map[string]any{
				"payment_id": payment.ID,
				"order_id":   order.ID,
				"error":      err.Error(),
			})
		}
		s.cache.publish(ctx, cacheKindOrder, order.ID, order)
		publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
			Type:           "order.cancelled",
			EntityKind:     "order",
			EntityID:       order.ID,
			PreviousStatus: string(domain.OrderStatusPending),
			CurrentStatus:  string(order.Status),
			ActorID:        payment.UserID,
			OccurredAt:     now,
			Metadata:       map[string]any{"payment_id": payment.ID},
		})
	}
}

// insertWithTransactionID issues a transaction id and writes the
// payment, retrying with a fresh id when the claim collided.
func (s *paymentService) insertWithTransactionID(ctx context.Context, payment *domain.Payment) error {
	var lastErr error
	for attempt := 0; attempt < transactionIDAttempts; attempt++ {
		payment.TransactionID = NewTransactionID()
		err := s.payments.Insert(ctx, *payment)
		if err == nil {
			return nil
		}

		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			lastErr = err
			s.logger(ctx, "payment.transaction_conflict", map[string]any{
				"transaction_id": payment.TransactionID,
				"attempt":        attempt + 1,
			})
			continue
		}
		return s.mapRepositoryError(err, ErrPaymentNotFound)
	}

	return fmt.Errorf("%w: transaction id claims exhausted after %d attempts: %v", ErrPaymentConflict, transactionIDAttempts, lastErr)
}

func (s *paymentService) mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}
	return err
}

var _ PaymentService = (*paymentService)(nil)
