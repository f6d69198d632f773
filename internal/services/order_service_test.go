package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/cache"
	"github.com/pawmart/api/internal/repositories"
)

func TestNewOrderService(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{Carts: &stubCartRepository{}, Products: &stubProductRepository{}}); err == nil {
		t.Fatalf("expected error when order repository missing")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepository{}, Products: &stubProductRepository{}}); err == nil {
		t.Fatalf("expected error when cart repository missing")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepository{}, Carts: &stubCartRepository{}}); err == nil {
		t.Fatalf("expected error when product repository missing")
	}
}

func TestOrderServiceCreateFromCart(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	address := domain.ShippingAddress{Name: "Dewi", Phone: "0812", Address: "Jl. Melati 5", City: "Bandung", PostalCode: "40115"}
	product := domain.Product{ID: "prd_001", Name: "Salmon Kibble 2kg", Price: 45000, Stock: 5, IsActive: true}
	cartOf := func(qty int) domain.Cart {
		return domain.Cart{
			ID:     "usr_001",
			UserID: "usr_001",
			Items:  []domain.CartItem{{ProductID: "prd_001", Quantity: qty, UnitPrice: 45000, Snapshot: domain.ProductSnapshot{Name: "Salmon Kibble 2kg"}}},
		}
	}

	t.Run("freezes the cart into a pending order", func(t *testing.T) {
		orders := &stubOrderRepository{}
		carts := &stubCartRepository{cart: cartOf(2)}
		events := &recordingPublisher{}
		svc := newOrderServiceForTest(t, orders, carts, &stubProductRepository{products: map[string]domain.Product{product.ID: product}}, nil, events, now)

		order, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "usr_001", ShippingAddress: address, ShippingMethod: domain.ShippingExpress})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(order.ID, "ord_") {
			t.Fatalf("expected ord_ id, got %q", order.ID)
		}
		if order.OrderNumber != "250312001" {
			t.Fatalf("expected first number of the day, got %q", order.OrderNumber)
		}
		if order.Status != domain.OrderStatusPending {
			t.Fatalf("expected pending order, got %s", order.Status)
		}
		if order.Subtotal != 90000 || order.ShippingFee != domain.ShippingFeeExpress || order.AdminFee != domain.OrderAdminFee {
			t.Fatalf("unexpected charges %+v", order)
		}
		if order.Total != 90000+domain.ShippingFeeExpress+domain.OrderAdminFee {
			t.Fatalf("unexpected total %d", order.Total)
		}
		if len(order.Items) != 1 || order.Items[0].Name != "Salmon Kibble 2kg" {
			t.Fatalf("expected frozen catalogue line, got %#v", order.Items)
		}
		if len(carts.saved.Items) != 0 {
			t.Fatalf("expected cart cleared after checkout, got %#v", carts.saved.Items)
		}
		if len(events.events) != 1 || events.events[0].Type != "order.created" {
			t.Fatalf("expected order.created event, got %#v", events.events)
		}
	})

	t.Run("continues the day sequence", func(t *testing.T) {
		orders := &stubOrderRepository{latestNumber: "250312007"}
		svc := newOrderServiceForTest(t, orders, &stubCartRepository{cart: cartOf(1)}, &stubProductRepository{products: map[string]domain.Product{product.ID: product}}, nil, nil, now)

		order, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "usr_001", ShippingAddress: address})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.OrderNumber != "250312008" {
			t.Fatalf("expected next sequence number, got %q", order.OrderNumber)
		}
		if order.ShippingFee != domain.ShippingFeeRegular {
			t.Fatalf("expected regular shipping default, got %d", order.ShippingFee)
		}
	})

	t.Run("retries a contested order number", func(t *testing.T) {
		orders := &stubOrderRepository{insertConflicts: 2}
		svc := newOrderServiceForTest(t, orders, &stubCartRepository{cart: cartOf(1)}, &stubProductRepository{products: map[string]domain.Product{product.ID: product}}, nil, nil, now)

		if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "usr_001", ShippingAddress: address}); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if orders.insertCalls != 3 {
			t.Fatalf("expected 3 insert attempts, got %d", orders.insertCalls)
		}
	})

	t.Run("gives up after exhausted number claims", func(t *testing.T) {
		orders := &stubOrderRepository{insertConflicts: 3}
		svc := newOrderServiceForTest(t, orders, &stubCartRepository{cart: cartOf(1)}, &stubProductRepository{products: map[string]domain.Product{product.ID: product}}, nil, nil, now)

		if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "usr_001", ShippingAddress: address}); !errors.Is(err, ErrOrderConflict) {
			t.Fatalf("expected conflict after exhausted retries, got %v", err)
		}
	})

	t.Run("rejects an empty cart", func(t *testing.T) {
		svc := newOrderServiceForTest(t, &stubOrderRepository{}, &stubCartRepository{findErr: cartStubError{notFound: true}}, &stubProductRepository{}, nil, nil, now)

		if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "usr_001", ShippingAddress: address}); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input for empty cart, got %v", err)
		}
	})

	t.Run("rejects a cart line above live stock", func(t *testing.T) {
		orders := &stubOrderRepository{}
		svc := newOrderServiceForTest(t, orders, &stubCartRepository{cart: cartOf(9)}, &stubProductRepository{products: map[string]domain.Product{product.ID: product}}, nil, nil, now)

		if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "usr_001", ShippingAddress: address}); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input for stock shortfall, got %v", err)
		}
		if orders.insertCalls != 0 {
			t.Fatalf("expected no insert on stock shortfall, got %d", orders.insertCalls)
		}
	})

	t.Run("rejects a retired product", func(t *testing.T) {
		retired := product
		retired.IsActive = false
		svc := newOrderServiceForTest(t, &stubOrderRepository{}, &stubCartRepository{cart: cartOf(1)}, &stubProductRepository{products: map[string]domain.Product{retired.ID: retired}}, nil, nil, now)

		if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "usr_001", ShippingAddress: address}); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input for retired product, got %v", err)
		}
	})

	t.Run("rejects an incomplete shipping address", func(t *testing.T) {
		svc := newOrderServiceForTest(t, &stubOrderRepository{}, &stubCartRepository{cart: cartOf(1)}, &stubProductRepository{products: map[string]domain.Product{product.ID: product}}, nil, nil, now)

		incomplete := address
		incomplete.City = " "
		if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "usr_001", ShippingAddress: incomplete}); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input for missing city, got %v", err)
		}
	})
}

func TestOrderServiceConcurrentCheckoutNumbers(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	address := domain.ShippingAddress{Name: "Dewi", Phone: "0812", Address: "Jl. Melati 5", City: "Bandung", PostalCode: "40115"}
	product := domain.Product{ID: "prd_001", Name: "Salmon Kibble 2kg", Price: 45000, Stock: 999, IsActive: true}

	const creators = 16
	repo := &claimingOrderRepository{}
	services := make([]OrderService, creators)
	for i := range services {
		userID := fmt.Sprintf("usr_%03d", i+1)
		carts := &stubCartRepository{cart: domain.Cart{
			ID:     userID,
			UserID: userID,
			Items:  []domain.CartItem{{ProductID: "prd_001", Quantity: 1, UnitPrice: 45000}},
		}}
		products := &stubProductRepository{products: map[string]domain.Product{product.ID: product}}
		services[i] = newOrderServiceForTest(t, repo, carts, products, nil, nil, now)
	}

	var wg sync.WaitGroup
	orders := make([]domain.Order, creators)
	errs := make([]error, creators)
	for i := range services {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			orders[i], errs[i] = services[i].CreateFromCart(context.Background(), CreateOrderCommand{
				UserID:          fmt.Sprintf("usr_%03d", i+1),
				ShippingAddress: address,
			})
		}(i)
	}
	wg.Wait()

	seen := map[string]int{}
	succeeded := 0
	for i := range orders {
		if errs[i] != nil {
			// A creator may run out of claim retries under contention,
			// but never for any other reason.
			if !errors.Is(errs[i], ErrOrderConflict) {
				t.Fatalf("creator %d failed unexpectedly: %v", i, errs[i])
			}
			continue
		}
		succeeded++
		seen[orders[i].OrderNumber]++
		if !strings.HasPrefix(orders[i].OrderNumber, "250312") {
			t.Fatalf("creator %d got number outside the day prefix: %q", i, orders[i].OrderNumber)
		}
	}
	if succeeded == 0 {
		t.Fatalf("expected at least one checkout to win a number")
	}
	for number, count := range seen {
		if count != 1 {
			t.Fatalf("order number %q issued %d times", number, count)
		}
	}
	if persisted := repo.claimedCount(); persisted != succeeded {
		t.Fatalf("expected %d persisted orders, repository holds %d", succeeded, persisted)
	}
}

// claimingOrderRepository mirrors the durable number registry: an insert
// reusing an already-claimed order number is rejected as a conflict.
type claimingOrderRepository struct {
	mu      sync.Mutex
	claimed map[string]domain.Order
}

func (s *claimingOrderRepository) Insert(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed == nil {
		s.claimed = map[string]domain.Order{}
	}
	if _, taken := s.claimed[order.OrderNumber]; taken {
		return cartStubError{conflict: true}
	}
	s.claimed[order.OrderNumber] = order
	return nil
}

func (s *claimingOrderRepository) LatestOrderNumber(_ context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest string
	for number := range s.claimed {
		if strings.HasPrefix(number, prefix) && number > latest {
			latest = number
		}
	}
	return latest, nil
}

func (s *claimingOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.claimed {
		if order.ID == orderID {
			return order, nil
		}
	}
	return domain.Order{}, cartStubError{notFound: true}
}

func (s *claimingOrderRepository) ListByUser(_ context.Context, userID string, _ repositories.OrderListFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, order := range s.claimed {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (s *claimingOrderRepository) Update(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed == nil {
		s.claimed = map[string]domain.Order{}
	}
	s.claimed[order.OrderNumber] = order
	return nil
}

func (s *claimingOrderRepository) claimedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claimed)
}

func TestOrderServiceGetOrder(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	order := domain.Order{ID: "ord_001", OrderNumber: "250312001", UserID: "usr_001", Status: domain.OrderStatusPending, Total: 65000}

	t.Run("returns the caller's order and caches it", func(t *testing.T) {
		store := cache.NewMemoryStore()
		svc := newOrderServiceForTest(t, &stubOrderRepository{orders: map[string]domain.Order{order.ID: order}}, &stubCartRepository{}, &stubProductRepository{}, store, nil, now)

		got, err := svc.GetOrder(context.Background(), "usr_001", "ord_001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.OrderNumber != "250312001" {
			t.Fatalf("unexpected order %#v", got)
		}
		var snapshot domain.Order
		if err := cache.FetchJSON(context.Background(), store, cache.Key("order", "ord_001"), &snapshot); err != nil {
			t.Fatalf("expected order snapshot in cache: %v", err)
		}
	})

	t.Run("serves the cached snapshot", func(t *testing.T) {
		store := cache.NewMemoryStore()
		if err := cache.PublishJSON(context.Background(), store, cache.Key("order", "ord_001"), order, time.Minute); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
		repo := &stubOrderRepository{findErr: errors.New("repository should not be called")}
		svc := newOrderServiceForTest(t, repo, &stubCartRepository{}, &stubProductRepository{}, store, nil, now)

		got, err := svc.GetOrder(context.Background(), "usr_001", "ord_001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Total != 65000 {
			t.Fatalf("unexpected cached order %#v", got)
		}
	})

	t.Run("hides other users' orders", func(t *testing.T) {
		svc := newOrderServiceForTest(t, &stubOrderRepository{orders: map[string]domain.Order{order.ID: order}}, &stubCartRepository{}, &stubProductRepository{}, nil, nil, now)

		if _, err := svc.GetOrder(context.Background(), "usr_002", "ord_001"); !errors.Is(err, ErrOrderUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})

	t.Run("maps missing orders to not found", func(t *testing.T) {
		svc := newOrderServiceForTest(t, &stubOrderRepository{}, &stubCartRepository{}, &stubProductRepository{}, nil, nil, now)

		if _, err := svc.GetOrder(context.Background(), "usr_001", "ord_404"); !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestOrderServiceListOrders(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	repo := &stubOrderRepository{listResult: []domain.Order{{ID: "ord_001", UserID: "usr_001"}}}
	svc := newOrderServiceForTest(t, repo, &stubCartRepository{}, &stubProductRepository{}, nil, nil, now)

	orders, err := svc.ListOrders(context.Background(), ListOrdersCommand{UserID: "usr_001", Status: domain.OrderStatusPending, Page: 3, Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected one order, got %d", len(orders))
	}
	if repo.listFilter.Status != domain.OrderStatusPending {
		t.Fatalf("expected status filter to pass through, got %#v", repo.listFilter)
	}
	if repo.listFilter.Limit != 20 || repo.listFilter.Offset != 40 {
		t.Fatalf("expected limit 20 offset 40, got %#v", repo.listFilter)
	}

	if _, err := svc.ListOrders(context.Background(), ListOrdersCommand{UserID: "usr_001", Status: "shipped"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
}

func TestOrderServiceConfirmReceived(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)

	t.Run("moves a processing order to success", func(t *testing.T) {
		repo := &stubOrderRepository{orders: map[string]domain.Order{
			"ord_001": {ID: "ord_001", UserID: "usr_001", Status: domain.OrderStatusProcessing},
		}}
		events := &recordingPublisher{}
		svc := newOrderServiceForTest(t, repo, &stubCartRepository{}, &stubProductRepository{}, nil, events, now)

		order, err := svc.ConfirmReceived(context.Background(), "usr_001", "ord_001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.Status != domain.OrderStatusSuccess {
			t.Fatalf("expected success status, got %s", order.Status)
		}
		if !order.UpdatedAt.Equal(now) {
			t.Fatalf("expected UpdatedAt from clock, got %v", order.UpdatedAt)
		}
		if len(events.events) != 1 || events.events[0].Type != "order.completed" {
			t.Fatalf("expected order.completed event, got %#v", events.events)
		}
		if events.events[0].PreviousStatus != "processing" {
			t.Fatalf("expected previous status in event, got %#v", events.events[0])
		}
	})

	t.Run("rejects confirmation before payment", func(t *testing.T) {
		repo := &stubOrderRepository{orders: map[string]domain.Order{
			"ord_001": {ID: "ord_001", UserID: "usr_001", Status: domain.OrderStatusPending},
		}}
		svc := newOrderServiceForTest(t, repo, &stubCartRepository{}, &stubProductRepository{}, nil, nil, now)

		if _, err := svc.ConfirmReceived(context.Background(), "usr_001", "ord_001"); !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})
}

func TestOrderServiceCancelOrder(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	pending := domain.Order{
		ID: "ord_001", UserID: "usr_001", Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{{ProductID: "prd_001", Quantity: 2, UnitPrice: 45000}},
	}

	t.Run("cancels a pending order and restores stock", func(t *testing.T) {
		repo := &stubOrderRepository{orders: map[string]domain.Order{pending.ID: pending}}
		products := &stubProductRepository{products: map[string]domain.Product{"prd_001": {ID: "prd_001", Stock: 3}}}
		events := &recordingPublisher{}
		svc := newOrderServiceForTest(t, repo, &stubCartRepository{}, products, nil, events, now)

		order, err := svc.CancelOrder(context.Background(), "usr_001", "ord_001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.Status != domain.OrderStatusCancelled {
			t.Fatalf("expected cancelled status, got %s", order.Status)
		}
		if order.CancelledAt == nil || !order.CancelledAt.Equal(now) {
			t.Fatalf("expected cancellation timestamp, got %v", order.CancelledAt)
		}
		if len(products.restored) != 1 || products.restored[0].Quantity != 2 {
			t.Fatalf("expected stock restored for the line, got %#v", products.restored)
		}
		if products.products["prd_001"].Stock != 5 {
			t.Fatalf("expected stock back at 5, got %d", products.products["prd_001"].Stock)
		}
		if len(events.events) != 1 || events.events[0].Type != "order.cancelled" {
			t.Fatalf("expected order.cancelled event, got %#v", events.events)
		}
	})

	t.Run("rejects cancelling a paid order", func(t *testing.T) {
		paid := pending
		paid.Status = domain.OrderStatusProcessing
		repo := &stubOrderRepository{orders: map[string]domain.Order{paid.ID: paid}}
		products := &stubProductRepository{}
		svc := newOrderServiceForTest(t, repo, &stubCartRepository{}, products, nil, nil, now)

		if _, err := svc.CancelOrder(context.Background(), "usr_001", "ord_001"); !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
		if products.restoreCall != 0 {
			t.Fatalf("expected no stock restore, got %d calls", products.restoreCall)
		}
	})

	t.Run("rejects cancelling another user's order", func(t *testing.T) {
		repo := &stubOrderRepository{orders: map[string]domain.Order{pending.ID: pending}}
		svc := newOrderServiceForTest(t, repo, &stubCartRepository{}, &stubProductRepository{}, nil, nil, now)

		if _, err := svc.CancelOrder(context.Background(), "usr_002", "ord_001"); !errors.Is(err, ErrOrderUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})
}

func newOrderServiceForTest(t *testing.T, orders repositories.OrderRepository, carts *stubCartRepository, products *stubProductRepository, store cache.Store, events LifecycleEventPublisher, now time.Time) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   orders,
		Carts:    carts,
		Products: products,
		Cache:    store,
		CacheTTL: time.Minute,
		Events:   events,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return svc
}

type stubOrderRepository struct {
	orders          map[string]domain.Order
	latestNumber    string
	findErr         error
	insertErr       error
	updateErr       error
	insertConflicts int
	insertCalls     int
	listResult      []domain.Order
	listFilter      repositories.OrderListFilter
}

func (s *stubOrderRepository) Insert(_ context.Context, order domain.Order) error {
	s.insertCalls++
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.insertConflicts > 0 {
		s.insertConflicts--
		return cartStubError{conflict: true}
	}
	if s.orders == nil {
		s.orders = map[string]domain.Order{}
	}
	s.orders[order.ID] = order
	if order.OrderNumber > s.latestNumber {
		s.latestNumber = order.OrderNumber
	}
	return nil
}

func (s *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	if s.findErr != nil {
		return domain.Order{}, s.findErr
	}
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, cartStubError{notFound: true}
	}
	return order, nil
}

func (s *stubOrderRepository) ListByUser(_ context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	s.listFilter = filter
	return s.listResult, nil
}

func (s *stubOrderRepository) LatestOrderNumber(_ context.Context, prefix string) (string, error) {
	if s.latestNumber == "" || !strings.HasPrefix(s.latestNumber, prefix) {
		return "", nil
	}
	return s.latestNumber, nil
}

func (s *stubOrderRepository) Update(_ context.Context, order domain.Order) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.orders == nil {
		s.orders = map[string]domain.Order{}
	}
	s.orders[order.ID] = order
	return nil
}

type recordingPublisher struct {
	events []LifecycleEvent
	err    error
}

func (p *recordingPublisher) PublishLifecycleEvent(_ context.Context, event LifecycleEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}
