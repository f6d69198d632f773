// Package cache provides the read-through/write-through layer kept in
// front of the durable store. Entries are serialised JSON snapshots of
// aggregates keyed by "kind:id".
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is applied when a caller publishes without a positive TTL.
const DefaultTTL = time.Hour

// ErrMiss is returned by Fetch when no live entry exists for the key.
var ErrMiss = errors.New("cache: miss")

// Store holds serialised aggregate snapshots with per-entry expiry.
type Store interface {
	// Publish stores the value under key, replacing any previous entry.
	Publish(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Fetch returns the stored value or ErrMiss.
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Evict removes the entries for the given keys. Missing keys are ignored.
	Evict(ctx context.Context, keys ...string) error
}

// Key builds the canonical cache key for an aggregate. Every entry uses
// the "kind:id" form regardless of aggregate type.
func Key(kind, id string) string {
	return fmt.Sprintf("%s:%s", strings.TrimSpace(kind), strings.TrimSpace(id))
}

// PublishJSON marshals the value and publishes it under key.
func PublishJSON(ctx context.Context, store Store, key string, value any, ttl time.Duration) error {
	if store == nil {
		return errors.New("cache: store is required")
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return store.Publish(ctx, key, payload, ttl)
}

// FetchJSON retrieves the entry for key and unmarshals it into target.
// A miss is reported as ErrMiss with target untouched.
func FetchJSON(ctx context.Context, store Store, key string, target any) error {
	if store == nil {
		return errors.New("cache: store is required")
	}
	payload, err := store.Fetch(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return nil
}
