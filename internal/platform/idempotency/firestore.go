package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore persists claims in a Firestore collection so replay
// protection holds across instances.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the backing collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{client: client, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type claimDoc struct {
	Fingerprint string              `firestore:"fingerprint"`
	Done        bool                `firestore:"done"`
	Status      int                 `firestore:"status,omitempty"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func (d claimDoc) toRecord() Record {
	return Record{
		Fingerprint: d.Fingerprint,
		Done:        d.Done,
		Status:      d.Status,
		Header:      d.Header,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}

// Claim implements the Store interface. The claim is written inside a
// transaction so two racing requests cannot both proceed.
func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref := s.client.Collection(s.collection).Doc(key)

	var (
		outcome Outcome
		record  Record
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		fresh := claimDoc{
			Fingerprint: fingerprint,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}

		if status.Code(err) == codes.NotFound {
			if err := tx.Set(ref, fresh); err != nil {
				return err
			}
			outcome, record = OutcomeProceed, fresh.toRecord()
			return nil
		}

		var doc claimDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		if !doc.ExpiresAt.IsZero() && !now.Before(doc.ExpiresAt) {
			if err := tx.Set(ref, fresh); err != nil {
				return err
			}
			outcome, record = OutcomeProceed, fresh.toRecord()
			return nil
		}

		if doc.Fingerprint != fingerprint {
			return ErrKeyReused
		}
		if doc.Done {
			outcome, record = OutcomeReplay, doc.toRecord()
			return nil
		}
		outcome, record = OutcomeInFlight, doc.toRecord()
		return nil
	})
	if err != nil {
		return OutcomeProceed, Record{}, err
	}
	return outcome, record, nil
}

// Record implements the Store interface.
func (s *FirestoreStore) Record(ctx context.Context, key, fingerprint string, rec Record) error {
	ref := s.client.Collection(s.collection).Doc(key)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		doc := claimDoc{
			Fingerprint: fingerprint,
			Done:        true,
			Status:      rec.Status,
			Header:      rec.Header,
			Body:        rec.Body,
			CreatedAt:   rec.CreatedAt,
			ExpiresAt:   rec.ExpiresAt,
		}

		if err == nil {
			var existing claimDoc
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			if existing.Fingerprint != fingerprint {
				return ErrKeyReused
			}
			if doc.CreatedAt.IsZero() {
				doc.CreatedAt = existing.CreatedAt
			}
			if doc.ExpiresAt.IsZero() {
				doc.ExpiresAt = existing.ExpiresAt
			}
		}
		return tx.Set(ref, doc)
	})
}

// Drop implements the Store interface.
func (s *FirestoreStore) Drop(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(key).Delete(ctx)
	return err
}

var _ Store = (*FirestoreStore)(nil)
