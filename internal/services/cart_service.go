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
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the referenced cart line does not exist.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductNotFound indicates the referenced product does not exist.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartConflict indicates a concurrent cart update collided.
	ErrCartConflict = errors.New("cart: conflict")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Cache    cache.Store
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   Logger
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	cache    cacheSyncer
	clock    func() time.Time
	logger   Logger
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	logger := normalizeLogger(deps.Logger)
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		cache:    newCacheSyncer(deps.Cache, deps.CacheTTL, logger),
		clock:    utcClock(deps.Clock),
		logger:   logger,
	}, nil
}

func (s *cartService) GetSummary(ctx context.Context, userID string) (CartSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CartSummary{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	var cached domain.Cart
	if s.cache.fetch(ctx, cacheKindCart, userID, &cached) {
		return domain.SummarizeCart(cached), nil
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return CartSummary{}, err
	}
	s.cache.publish(ctx, cacheKindCart, userID, cart)
	return domain.SummarizeCart(cart), nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartSummary, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" {
		return CartSummary{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return CartSummary{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartSummary{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return CartSummary{}, s.mapRepositoryError(err, ErrCartProductNotFound)
	}
	if !product.IsActive {
		return CartSummary{}, fmt.Errorf("%w: product %s is not for sale", ErrCartInvalidInput, productID)
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return CartSummary{}, err
	}

	now := s.clock()
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID != productID {
			continue
		}
		requested := cart.Items[i].Quantity + cmd.Quantity
		if requested > product.Stock {
			return CartSummary{}, fmt.Errorf("%w: requested %d of %s but only %d in stock", ErrCartInvalidInput, requested, productID, product.Stock)
		}
		cart.Items[i].Quantity = requested
		merged = true
		break
	}
	if !merged {
		if cmd.Quantity > product.Stock {
			return CartSummary{}, fmt.Errorf("%w: requested %d of %s but only %d in stock", ErrCartInvalidInput, cmd.Quantity, productID, product.Stock)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: productID,
			Quantity:  cmd.Quantity,
			UnitPrice: product.Price,
			Snapshot: domain.ProductSnapshot{
				Name:   product.Name,
				Images: product.Images,
				Stock:  product.Stock,
			},
			AddedAt: now,
		})
	}

	return s.saveCart(ctx, cart)
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartSummary, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return CartSummary{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartSummary{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return CartSummary{}, s.mapRepositoryError(err, ErrCartProductNotFound)
	}
	if cmd.Quantity > product.Stock {
		return CartSummary{}, fmt.Errorf("%w: requested %d of %s but only %d in stock", ErrCartInvalidInput, cmd.Quantity, productID, product.Stock)
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return CartSummary{}, err
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = cmd.Quantity
			found = true
			break
		}
	}
	if !found {
		return CartSummary{}, fmt.Errorf("%w: product %s is not in the cart", ErrCartItemNotFound, productID)
	}

	return s.saveCart(ctx, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) (CartSummary, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return CartSummary{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return CartSummary{}, err
	}

	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return CartSummary{}, fmt.Errorf("%w: product %s is not in the cart", ErrCartItemNotFound, productID)
	}
	cart.Items = kept

	return s.saveCart(ctx, cart)
}

func (s *cartService) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return err
	}
	cart.Items = nil

	_, err = s.saveCart(ctx, cart)
	return err
}

// loadCart returns the stored cart, or a fresh empty cart when the user
// has none yet.
func (s *cartService) loadCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			now := s.clock()
			return domain.Cart{ID: userID, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		return domain.Cart{}, s.mapRepositoryError(err, nil)
	}
	return cart, nil
}

func (s *cartService) saveCart(ctx context.Context, cart domain.Cart) (CartSummary, error) {
	cart.UpdatedAt = s.clock()
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return CartSummary{}, s.mapRepositoryError(err, nil)
	}
	s.cache.publish(ctx, cacheKindCart, saved.UserID, saved)
	return domain.SummarizeCart(saved), nil
}

func (s *cartService) mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound != nil {
				return fmt.Errorf("%w: %v", notFound, err)
			}
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("cart: repository unavailable: %w", err)
		}
	}
	return err
}

var _ CartService = (*cartService)(nil)
