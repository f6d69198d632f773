package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pawmart/api/internal/domain"
	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts within Firestore, one document per user.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
	}, nil
}

// FindByUser loads the user's cart. The document is keyed by user ID.
func (r *CartRepository) FindByUser(ctx context.Context, userID string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(doc.ID, doc.Data), nil
}

// Save upserts the cart under the user's document ID.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := cartToDocument(cart)
	result, err := r.base.Set(ctx, userID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cartFromDocument(userID, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func cartToDocument(cart domain.Cart) cartDocument {
	now := time.Now().UTC()
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	doc := cartDocument{
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Snapshot:  snapshotToDocument(item.Snapshot),
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return doc
}

func cartFromDocument(userID string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		ID:        userID,
		UserID:    userID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Snapshot:  snapshotFromDocument(item.Snapshot),
			AddedAt:   item.AddedAt,
		})
	}
	return cart
}

func snapshotToDocument(snapshot domain.ProductSnapshot) productSnapshotDocument {
	doc := productSnapshotDocument{
		Name:  snapshot.Name,
		Stock: snapshot.Stock,
	}
	for _, image := range snapshot.Images {
		doc.Images = append(doc.Images, productImageDocument{
			PublicID: image.PublicID,
			URL:      image.URL,
			IsMain:   image.IsMain,
		})
	}
	return doc
}

func snapshotFromDocument(doc productSnapshotDocument) domain.ProductSnapshot {
	snapshot := domain.ProductSnapshot{
		Name:  doc.Name,
		Stock: doc.Stock,
	}
	for _, image := range doc.Images {
		snapshot.Images = append(snapshot.Images, domain.ProductImage{
			PublicID: image.PublicID,
			URL:      image.URL,
			IsMain:   image.IsMain,
		})
	}
	return snapshot
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items,omitempty"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string                  `firestore:"productId"`
	Quantity  int                     `firestore:"quantity"`
	UnitPrice int64                   `firestore:"unitPrice"`
	Snapshot  productSnapshotDocument `firestore:"productSnapshot"`
	AddedAt   time.Time               `firestore:"addedAt"`
}

type productSnapshotDocument struct {
	Name   string                 `firestore:"name"`
	Images []productImageDocument `firestore:"images,omitempty"`
	Stock  int                    `firestore:"stock"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
