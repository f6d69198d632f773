package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawmart/api/internal/domain"
	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalogue products within Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base:     pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
		provider: provider,
	}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return productFromDocument(doc.ID, doc.Data), nil
}

// List returns active products ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true).OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, productFromDocument(doc.ID, doc.Data))
	}
	return products, nil
}

// Insert writes a new product document.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Create(ctx, id, productToDocument(product))
	return err
}

// RestoreStock adds each adjustment quantity back onto its product inside
// a single transaction.
func (r *ProductRepository) RestoreStock(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pending struct {
			ref   *firestore.DocumentRef
			stock int
		}
		updates := make([]pending, 0, len(adjustments))

		for _, adj := range adjustments {
			if adj.Quantity <= 0 {
				return fmt.Errorf("product repository: invalid restore quantity %d for %s", adj.Quantity, adj.ProductID)
			}
			ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(adj.ProductID))
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				return pfirestore.WrapError("products.restore", err)
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("product repository: decode %s: %w", adj.ProductID, err)
			}
			updates = append(updates, pending{ref: ref, stock: doc.Stock + adj.Quantity})
		}

		now := time.Now().UTC()
		for _, update := range updates {
			err := tx.Update(update.ref, []firestore.Update{
				{Path: "stock", Value: update.stock},
				{Path: "updatedAt", Value: now},
			})
			if err != nil {
				return pfirestore.WrapError("products.restore", err)
			}
		}
		return nil
	})
}

func productToDocument(product domain.Product) productDocument {
	doc := productDocument{
		Name:      strings.TrimSpace(product.Name),
		Price:     product.Price,
		Stock:     product.Stock,
		IsActive:  product.IsActive,
		CreatedAt: product.CreatedAt.UTC(),
		UpdatedAt: product.UpdatedAt.UTC(),
	}
	for _, image := range product.Images {
		doc.Images = append(doc.Images, productImageDocument{
			PublicID: image.PublicID,
			URL:      image.URL,
			IsMain:   image.IsMain,
		})
	}
	return doc
}

func productFromDocument(id string, doc productDocument) domain.Product {
	product := domain.Product{
		ID:        id,
		Name:      doc.Name,
		Price:     doc.Price,
		Stock:     doc.Stock,
		IsActive:  doc.IsActive,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, image := range doc.Images {
		product.Images = append(product.Images, domain.ProductImage{
			PublicID: image.PublicID,
			URL:      image.URL,
			IsMain:   image.IsMain,
		})
	}
	return product
}

type productDocument struct {
	Name      string                 `firestore:"name"`
	Price     int64                  `firestore:"price"`
	Stock     int                    `firestore:"stock"`
	Images    []productImageDocument `firestore:"images,omitempty"`
	IsActive  bool                   `firestore:"isActive"`
	CreatedAt time.Time              `firestore:"createdAt"`
	UpdatedAt time.Time              `firestore:"updatedAt"`
}

type productImageDocument struct {
	PublicID string `firestore:"publicId,omitempty"`
	URL      string `firestore:"url"`
	IsMain   bool   `firestore:"isMain"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
