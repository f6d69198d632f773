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
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnauthorized indicates the caller does not own the order.
	ErrOrderUnauthorized = errors.New("order: unauthorized")
	// ErrOrderInvalidState indicates the requested transition is not allowed.
	ErrOrderInvalidState = errors.New("order: invalid state transition")
	// ErrOrderConflict indicates order number claims kept colliding.
	ErrOrderConflict = errors.New("order: conflict")
)

// orderNumberAttempts bounds the retry loop when a concurrent checkout
// claims the same order number first.
const orderNumberAttempts = 3

// orderTransitions is the allowed status graph. Success and cancelled
// are terminal.
var orderTransitions = map[domain.OrderStatus]map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending: {
		domain.OrderStatusProcessing: {},
		domain.OrderStatusCancelled:  {},
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusSuccess: {},
	},
}

func orderCanTransition(from, to domain.OrderStatus) bool {
	next, ok := orderTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Cache    cache.Store
	CacheTTL time.Duration
	Events   LifecycleEventPublisher
	Clock    func() time.Time
	Logger   Logger
}

type orderService struct {
	orders   repositories.OrderRepository
	carts    repositories.CartRepository
	products repositories.ProductRepository
	cache    cacheSyncer
	events   LifecycleEventPublisher
	clock    func() time.Time
	logger   Logger
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	logger := normalizeLogger(deps.Logger)
	return &orderService{
		orders:   deps.Orders,
		carts:    deps.Carts,
		products: deps.Products,
		cache:    newCacheSyncer(deps.Cache, deps.CacheTTL, logger),
		events:   deps.Events,
		clock:    utcClock(deps.Clock),
		logger:   logger,
	}, nil
}

func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}
	method := cmd.ShippingMethod
	if method == "" {
		method = domain.ShippingRegular
	}
	if method != domain.ShippingRegular && method != domain.ShippingExpress {
		return Order{}, fmt.Errorf("%w: unknown shipping method %q", ErrOrderInvalidInput, cmd.ShippingMethod)
	}

	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
		}
		return Order{}, s.mapRepositoryError(err)
	}
	if len(cart.Items) == 0 {
		return Order{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}

	items, err := s.buildOrderItems(ctx, cart.Items)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	charges := domain.PriceOrder(cart.Items, method)
	order := domain.Order{
		ID:              newEntityID(orderIDPrefix),
		UserID:          userID,
		Items:           items,
		ShippingAddress: trimShippingAddress(cmd.ShippingAddress),
		ShippingMethod:  method,
		Subtotal:        charges.Subtotal,
		ShippingFee:     charges.ShippingFee,
		AdminFee:        charges.AdminFee,
		Total:           charges.Total,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.insertWithNumber(ctx, &order); err != nil {
		return Order{}, err
	}

	// The cart is consumed by checkout. A failing clear leaves a stale
	// cart behind but never voids the order that was already written.
	cart.Items = nil
	cart.UpdatedAt = now
	if cleared, err := s.carts.Save(ctx, cart); err != nil {
		s.logger(ctx, "order.cart_clear.failed", map[string]any{
			"order_id": order.ID,
			"user_id":  userID,
			"error":    err.Error(),
		})
	} else {
		s.cache.publish(ctx, cacheKindCart, userID, cleared)
	}

	s.cache.publish(ctx, cacheKindOrder, order.ID, order)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:          "order.created",
		EntityKind:    "order",
		EntityID:      order.ID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"order_number": order.OrderNumber,
			"total":        order.Total,
		},
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: user id and order id are required", ErrOrderInvalidInput)
	}

	var cached domain.Order
	if s.cache.fetch(ctx, cacheKindOrder, orderID, &cached) && cached.ID == orderID {
		if cached.UserID != userID {
			return Order{}, fmt.Errorf("%w: order %s belongs to another user", ErrOrderUnauthorized, orderID)
		}
		return cached, nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s belongs to another user", ErrOrderUnauthorized, orderID)
	}
	s.cache.publish(ctx, cacheKindOrder, order.ID, order)
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) ([]Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if cmd.Status != "" {
		switch cmd.Status {
		case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusSuccess, domain.OrderStatusCancelled:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
		}
	}

	page := cmd.Page
	if page < 1 {
		page = 1
	}
	limit := cmd.Limit
	if limit < 1 {
		limit = 10
	}

	orders, err := s.orders.ListByUser(ctx, userID, repositories.OrderListFilter{
		Status: cmd.Status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) ConfirmReceived(ctx context.Context, userID, orderID string) (Order, error) {
	return s.transition(ctx, userID, orderID, domain.OrderStatusSuccess, "order.completed")
}

func (s *orderService) CancelOrder(ctx context.Context, userID, orderID string) (Order, error) {
	order, err := s.transition(ctx, userID, orderID, domain.OrderStatusCancelled, "order.cancelled")
	if err != nil {
		return Order{}, err
	}

	adjustments := make([]repositories.StockAdjustment, 0, len(order.Items))
	for _, item := range order.Items {
		adjustments = append(adjustments, repositories.StockAdjustment{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	if err := s.products.RestoreStock(ctx, adjustments); err != nil {
		// The order is already cancelled. Leave stock reconciliation to
		// the emitted event and surface the failure.
		s.logger(ctx, "order.stock_restore.failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return Order{}, s.mapRepositoryError(err)
	}

	return order, nil
}

// transition moves the order to the target status after ownership and
// status graph checks, persists it and emits the lifecycle event.
func (s *orderService) transition(ctx context.Context, userID, orderID string, to domain.OrderStatus, eventType string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: user id and order id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s belongs to another user", ErrOrderUnauthorized, orderID)
	}
	if !orderCanTransition(order.Status, to) {
		return Order{}, fmt.Errorf("%w: cannot move order from %s to %s", ErrOrderInvalidState, order.Status, to)
	}

	now := s.clock()
	previous := order.Status
	order.Status = to
	order.UpdatedAt = now
	if to == domain.OrderStatusCancelled {
		order.CancelledAt = valuePtr(now)
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.cache.publish(ctx, cacheKindOrder, order.ID, order)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:           eventType,
		EntityKind:     "order",
		EntityID:       order.ID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        userID,
		OccurredAt:     now,
	})

	return order, nil
}

// buildOrderItems revalidates every cart line against the live
// catalogue and freezes the lines into order items.
func (s *orderService) buildOrderItems(ctx context.Context, lines []domain.CartItem) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, fmt.Errorf("%w: product %s is no longer available", ErrOrderInvalidInput, line.ProductID)
			}
			return nil, s.mapRepositoryError(err)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: product %s is no longer available", ErrOrderInvalidInput, line.ProductID)
		}
		if line.Quantity > product.Stock {
			return nil, fmt.Errorf("%w: requested %d of %s but only %d in stock", ErrOrderInvalidInput, line.Quantity, line.ProductID, product.Stock)
		}
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Snapshot:  line.Snapshot,
		})
	}
	return items, nil
}

// insertWithNumber claims the next free order number for the day and
// writes the order. Conflicting claims from concurrent checkouts are
// retried with a freshly derived number.
func (s *orderService) insertWithNumber(ctx context.Context, order *domain.Order) error {
	prefix := OrderNumberPrefix(s.clock())

	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		latest, err := s.orders.LatestOrderNumber(ctx, prefix)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		number, err := NextOrderNumber(prefix, latest)
		if err != nil {
			return fmt.Errorf("order: derive number: %w", err)
		}

		order.OrderNumber = number
		err = s.orders.Insert(ctx, *order)
		if err == nil {
			return nil
		}

		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			lastErr = err
			s.logger(ctx, "order.number_conflict", map[string]any{
				"order_number": number,
				"attempt":      attempt + 1,
			})
			continue
		}
		return s.mapRepositoryError(err)
	}

	return fmt.Errorf("%w: order number claims exhausted after %d attempts: %v", ErrOrderConflict, orderNumberAttempts, lastErr)
}

func validateShippingAddress(addr domain.ShippingAddress) error {
	if strings.TrimSpace(addr.Name) == "" {
		return fmt.Errorf("%w: shipping recipient name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Phone) == "" {
		return fmt.Errorf("%w: shipping phone is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Address) == "" {
		return fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	}
	return nil
}

func trimShippingAddress(addr domain.ShippingAddress) domain.ShippingAddress {
	addr.Name = strings.TrimSpace(addr.Name)
	addr.Phone = strings.TrimSpace(addr.Phone)
	addr.Address = strings.TrimSpace(addr.Address)
	addr.City = strings.TrimSpace(addr.City)
	addr.PostalCode = strings.TrimSpace(addr.PostalCode)
	return addr
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

var _ OrderService = (*orderService)(nil)
