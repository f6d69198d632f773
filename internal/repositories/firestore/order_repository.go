package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/pawmart/api/internal/domain"
	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/repositories"
)

const (
	orderCollection       = "orders"
	orderNumberCollection = "orderNumbers"

	orderNumberDateDigits = 6
)

// OrderRepository persists orders within Firestore. Order numbers are
// claimed through registry documents keyed by the number itself, so a
// duplicate claim fails the insert transaction with a conflict.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		provider: provider,
	}, nil
}

// Insert writes the order and claims its number in one transaction.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	number := strings.TrimSpace(order.OrderNumber)
	if number == "" {
		return errors.New("order repository: order number is required")
	}

	claim, err := newOrderNumberClaim(orderID, number, time.Now().UTC())
	if err != nil {
		return err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	orderRef := client.Collection(orderCollection).Doc(orderID)
	numberRef := client.Collection(orderNumberCollection).Doc(number)

	return r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(numberRef, claim); err != nil {
			return pfirestore.WrapError("orders.claim_number", err)
		}
		if err := tx.Create(orderRef, orderToDocument(order)); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	})
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", strings.TrimSpace(userID))
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, orderFromDocument(doc.ID, doc.Data))
	}
	return orders, nil
}

// LatestOrderNumber returns the highest claimed number with the prefix,
// or empty when none exists. The registry's numeric sequence field keeps
// the ordering correct once a day's sequence outgrows its zero padding.
func (r *OrderRepository) LatestOrderNumber(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", errors.New("order repository: prefix is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return "", err
	}
	iter := client.Collection(orderNumberCollection).
		Where("datePrefix", "==", prefix).
		OrderBy("sequence", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", nil
	}
	if err != nil {
		return "", pfirestore.WrapError("orders.latest_number", err)
	}
	var claim orderNumberClaim
	if err := doc.DataTo(&claim); err != nil {
		return "", pfirestore.WrapError("orders.latest_number", err)
	}
	return claim.Number, nil
}

// Update rewrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, orderID, orderToDocument(order))
	return err
}

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		ShippingMethod: string(order.ShippingMethod),
		Subtotal:       order.Subtotal,
		ShippingFee:    order.ShippingFee,
		AdminFee:       order.AdminFee,
		Total:          order.Total,
		Status:         string(order.Status),
		PaymentID:      order.PaymentID,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		ShippingAddress: shippingAddressDocument{
			Name:       order.ShippingAddress.Name,
			Phone:      order.ShippingAddress.Phone,
			Address:    order.ShippingAddress.Address,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
		},
	}
	if order.CancelledAt != nil {
		cancelled := order.CancelledAt.UTC()
		doc.CancelledAt = &cancelled
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Snapshot:  snapshotToDocument(item.Snapshot),
		})
	}
	return doc
}

func orderFromDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:             id,
		OrderNumber:    doc.OrderNumber,
		UserID:         doc.UserID,
		ShippingMethod: domain.ShippingMethod(doc.ShippingMethod),
		Subtotal:       doc.Subtotal,
		ShippingFee:    doc.ShippingFee,
		AdminFee:       doc.AdminFee,
		Total:          doc.Total,
		Status:         domain.OrderStatus(doc.Status),
		PaymentID:      doc.PaymentID,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		CancelledAt:    doc.CancelledAt,
		ShippingAddress: domain.ShippingAddress{
			Name:       doc.ShippingAddress.Name,
			Phone:      doc.ShippingAddress.Phone,
			Address:    doc.ShippingAddress.Address,
			City:       doc.ShippingAddress.City,
			PostalCode: doc.ShippingAddress.PostalCode,
		},
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Snapshot:  snapshotFromDocument(item.Snapshot),
		})
	}
	return order
}

type orderDocument struct {
	OrderNumber     string                  `firestore:"orderNumber"`
	UserID          string                  `firestore:"userId"`
	Items           []orderItemDocument     `firestore:"items"`
	ShippingAddress shippingAddressDocument `firestore:"shippingAddress"`
	ShippingMethod  string                  `firestore:"shippingMethod"`
	Subtotal        int64                   `firestore:"subtotal"`
	ShippingFee     int64                   `firestore:"shippingFee"`
	AdminFee        int64                   `firestore:"adminFee"`
	Total           int64                   `firestore:"total"`
	Status          string                  `firestore:"status"`
	PaymentID       *string                 `firestore:"paymentId,omitempty"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
	CancelledAt     *time.Time              `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string                  `firestore:"productId"`
	Name      string                  `firestore:"name"`
	Quantity  int                     `firestore:"quantity"`
	UnitPrice int64                   `firestore:"unitPrice"`
	Snapshot  productSnapshotDocument `firestore:"productSnapshot"`
}

type shippingAddressDocument struct {
	Name       string `firestore:"name"`
	Phone      string `firestore:"phone"`
	Address    string `firestore:"address"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
}

type orderNumberClaim struct {
	OrderID    string    `firestore:"orderId"`
	Number     string    `firestore:"number"`
	DatePrefix string    `firestore:"datePrefix"`
	Sequence   int64     `firestore:"sequence"`
	ClaimedAt  time.Time `firestore:"claimedAt"`
}

// newOrderNumberClaim splits a day-sequence order number into its
// registry fields. Numbers are the six-digit date followed by a decimal
// sequence that may outgrow its initial three-digit padding.
func newOrderNumberClaim(orderID, number string, claimedAt time.Time) (orderNumberClaim, error) {
	if len(number) <= orderNumberDateDigits {
		return orderNumberClaim{}, fmt.Errorf("order repository: malformed order number %q", number)
	}
	sequence, err := strconv.ParseInt(number[orderNumberDateDigits:], 10, 64)
	if err != nil {
		return orderNumberClaim{}, fmt.Errorf("order repository: malformed order number %q: %w", number, err)
	}
	return orderNumberClaim{
		OrderID:    orderID,
		Number:     number,
		DatePrefix: number[:orderNumberDateDigits],
		Sequence:   sequence,
		ClaimedAt:  claimedAt,
	}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
