package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawmart/api/internal/domain"
	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/repositories"
)

const (
	paymentCollection       = "payments"
	transactionIDCollection = "transactionIds"
)

// PaymentRepository persists payments within Firestore. Transaction ids
// are claimed through registry documents in the insert transaction, so a
// duplicate id surfaces as a conflict.
type PaymentRepository struct {
	base     *pfirestore.BaseRepository[paymentDocument]
	provider *pfirestore.Provider
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		base:     pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil),
		provider: provider,
	}, nil
}

// Insert writes the payment and claims its transaction id in one transaction.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	transactionID := strings.TrimSpace(payment.TransactionID)
	if transactionID == "" {
		return errors.New("payment repository: transaction id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	paymentRef := client.Collection(paymentCollection).Doc(paymentID)
	transactionRef := client.Collection(transactionIDCollection).Doc(transactionID)

	return r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(transactionRef, transactionIDClaim{PaymentID: paymentID, ClaimedAt: time.Now().UTC()}); err != nil {
			return pfirestore.WrapError("payments.claim_transaction", err)
		}
		if err := tx.Create(paymentRef, paymentToDocument(payment)); err != nil {
			return pfirestore.WrapError("payments.insert", err)
		}
		return nil
	})
}

// FindByID loads a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		return domain.Payment{}, err
	}
	return paymentFromDocument(doc.ID, doc.Data), nil
}

// FindByReference returns the payment settling the given aggregate.
func (r *PaymentRepository) FindByReference(ctx context.Context, refType domain.PaymentReferenceType, refID string) (domain.Payment, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("referenceType", "==", string(refType)).
			Where("referenceId", "==", strings.TrimSpace(refID)).
			Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NotFound("payments.find_by_reference", "payment not found")
	}
	return paymentFromDocument(docs[0].ID, docs[0].Data), nil
}

// ListByUser returns the user's payments, newest first.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, filter repositories.PaymentListFilter) ([]domain.Payment, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", strings.TrimSpace(userID))
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if filter.ReferenceType != "" {
			q = q.Where("referenceType", "==", string(filter.ReferenceType))
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, paymentFromDocument(doc.ID, doc.Data))
	}
	return payments, nil
}

// Update rewrites the payment document.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	_, err := r.base.Set(ctx, paymentID, paymentToDocument(payment))
	return err
}

func paymentToDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		UserID:        payment.UserID,
		ReferenceType: string(payment.ReferenceType),
		ReferenceID:   payment.ReferenceID,
		Amount:        payment.Amount,
		Fee:           payment.Fee,
		Total:         payment.Total,
		Method:        payment.Method,
		TransactionID: payment.TransactionID,
		Status:        string(payment.Status),
		CreatedAt:     payment.CreatedAt.UTC(),
		UpdatedAt:     payment.UpdatedAt.UTC(),
	}
}

func paymentFromDocument(id string, doc paymentDocument) domain.Payment {
	return domain.Payment{
		ID:            id,
		UserID:        doc.UserID,
		ReferenceType: domain.PaymentReferenceType(doc.ReferenceType),
		ReferenceID:   doc.ReferenceID,
		Amount:        doc.Amount,
		Fee:           doc.Fee,
		Total:         doc.Total,
		Method:        doc.Method,
		TransactionID: doc.TransactionID,
		Status:        domain.PaymentStatus(doc.Status),
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

type paymentDocument struct {
	UserID        string    `firestore:"userId"`
	ReferenceType string    `firestore:"referenceType"`
	ReferenceID   string    `firestore:"referenceId"`
	Amount        int64     `firestore:"amount"`
	Fee           int64     `firestore:"applicationFee"`
	Total         int64     `firestore:"totalAmount"`
	Method        string    `firestore:"method,omitempty"`
	TransactionID string    `firestore:"transactionId"`
	Status        string    `firestore:"status"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

type transactionIDClaim struct {
	PaymentID string    `firestore:"paymentId"`
	ClaimedAt time.Time `firestore:"claimedAt"`
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
