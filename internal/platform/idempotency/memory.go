package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process memory. Suitable for tests and
// single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Claim implements the Store interface.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || (!rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt)) {
		rec = Record{
			Fingerprint: fingerprint,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		s.records[key] = rec
		return OutcomeProceed, rec, nil
	}

	if rec.Fingerprint != fingerprint {
		return OutcomeProceed, Record{}, ErrKeyReused
	}
	if rec.Done {
		return OutcomeReplay, rec, nil
	}
	return OutcomeInFlight, rec, nil
}

// Record implements the Store interface.
func (s *MemoryStore) Record(_ context.Context, key, fingerprint string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[key]
	if ok && existing.Fingerprint != fingerprint {
		return ErrKeyReused
	}

	rec.Fingerprint = fingerprint
	rec.Done = true
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	}
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = existing.ExpiresAt
	}
	s.records[key] = rec
	return nil
}

// Drop implements the Store interface.
func (s *MemoryStore) Drop(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
