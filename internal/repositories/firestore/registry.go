package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/iterator"

	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	products *ProductRepository
	carts    *CartRepository
	orders   *OrderRepository
	doctors  *DoctorRepository
	bookings *BookingRepository
	payments *PaymentRepository
	chats    *ChatRepository
	health   repositories.HealthRepository
}

// NewRegistry wires all Firestore repositories onto a shared provider.
// extraChecks lets the caller add dependency probes beyond the store
// itself, such as the cache backend.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	reg := &Registry{provider: provider}

	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	if reg.doctors, err = NewDoctorRepository(provider); err != nil {
		return nil, fmt.Errorf("build doctor repository: %w", err)
	}
	if reg.bookings, err = NewBookingRepository(provider); err != nil {
		return nil, fmt.Errorf("build booking repository: %w", err)
	}
	if reg.payments, err = NewPaymentRepository(provider); err != nil {
		return nil, fmt.Errorf("build payment repository: %w", err)
	}
	if reg.chats, err = NewChatRepository(provider); err != nil {
		return nil, fmt.Errorf("build chat repository: %w", err)
	}

	checks := append([]repositories.DependencyCheck{
		{Name: "firestore", Check: firestorePing(provider)},
	}, extraChecks...)
	if reg.health, err = repositories.NewDependencyHealthRepository(checks); err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	return reg, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// Products implements repositories.Registry.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Carts implements repositories.Registry.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Orders implements repositories.Registry.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Doctors implements repositories.Registry.
func (r *Registry) Doctors() repositories.DoctorRepository { return r.doctors }

// Bookings implements repositories.Registry.
func (r *Registry) Bookings() repositories.BookingRepository { return r.bookings }

// Payments implements repositories.Registry.
func (r *Registry) Payments() repositories.PaymentRepository { return r.payments }

// Chats implements repositories.Registry.
func (r *Registry) Chats() repositories.ChatRepository { return r.chats }

// Health implements repositories.Registry.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

func firestorePing(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collections(ctx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

var _ repositories.Registry = (*Registry)(nil)
