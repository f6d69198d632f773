// Package idempotency guards replay-sensitive endpoints, most notably
// payment settlement, against duplicate submissions. A client sends an
// Idempotency-Key header; the first request executes and its response
// is recorded, later requests with the same key replay that response.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// DefaultTTL bounds how long a recorded response stays replayable.
const DefaultTTL = 24 * time.Hour

// Outcome describes what the caller should do after claiming a key.
type Outcome int

const (
	// OutcomeProceed means the key is fresh and the request may run.
	OutcomeProceed Outcome = iota
	// OutcomeReplay means a recorded response exists and must be replayed.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key right now.
	OutcomeInFlight
)

// Record is the stored response for a settled key.
type Record struct {
	Fingerprint string
	Done        bool
	Status      int
	Header      map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// ErrKeyReused reports an idempotency key presented with a different
// request fingerprint than the one it was first used with.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// Store persists key claims and recorded responses.
type Store interface {
	// Claim registers the key for the given fingerprint. Expired
	// entries are treated as absent. A fingerprint mismatch returns
	// ErrKeyReused.
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error)
	// Record stores the response for a claimed key.
	Record(ctx context.Context, key, fingerprint string, rec Record) error
	// Drop releases the claim so a later attempt can retry.
	Drop(ctx context.Context, key string) error
}

// Fingerprint hashes the request identity the key is bound to.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// StorageKey hashes the client key with the caller so keys never
// collide across users.
func StorageKey(key, callerID string) string {
	return Fingerprint(strings.TrimSpace(key), strings.TrimSpace(callerID))
}
