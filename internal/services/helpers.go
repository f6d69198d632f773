package services

import (
	"context"
	"errors"
	"time"

	"github.com/pawmart/api/internal/platform/cache"
)

// Logger is the structured logging hook injected into services. A nil
// hook is replaced with a no-op.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

func normalizeLogger(logger Logger) Logger {
	if logger == nil {
		return noopLogger
	}
	return logger
}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time {
		return clock().UTC()
	}
}

func valuePtr[T any](v T) *T {
	return &v
}

// cacheSyncer keeps serialised aggregate snapshots in the cache layer.
// All operations are best effort: a failing cache never fails the
// business operation, it only logs.
type cacheSyncer struct {
	store  cache.Store
	ttl    time.Duration
	logger Logger
}

func newCacheSyncer(store cache.Store, ttl time.Duration, logger Logger) cacheSyncer {
	return cacheSyncer{store: store, ttl: ttl, logger: normalizeLogger(logger)}
}

// publish writes the latest snapshot for kind:id.
func (c cacheSyncer) publish(ctx context.Context, kind, id string, value any) {
	if c.store == nil {
		return
	}
	key := cache.Key(kind, id)
	if err := cache.PublishJSON(ctx, c.store, key, value, c.ttl); err != nil {
		c.logger(ctx, "cache.publish.failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// fetch hydrates target from the snapshot for kind:id, reporting whether
// a live entry was found.
func (c cacheSyncer) fetch(ctx context.Context, kind, id string, target any) bool {
	if c.store == nil {
		return false
	}
	key := cache.Key(kind, id)
	err := cache.FetchJSON(ctx, c.store, key, target)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.logger(ctx, "cache.fetch.failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
	return false
}

// evict drops the snapshot for kind:id.
func (c cacheSyncer) evict(ctx context.Context, kind, id string) {
	if c.store == nil {
		return
	}
	key := cache.Key(kind, id)
	if err := c.store.Evict(ctx, key); err != nil {
		c.logger(ctx, "cache.evict.failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// publishLifecycle emits the event when a publisher is wired. Failures
// are logged and swallowed so transitions never roll back on a broken
// event pipeline.
func publishLifecycle(ctx context.Context, publisher LifecycleEventPublisher, logger Logger, event LifecycleEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishLifecycleEvent(ctx, event); err != nil {
		logger(ctx, "lifecycle.publish.failed", map[string]any{
			"event":     event.Type,
			"entity":    event.EntityKind,
			"entity_id": event.EntityID,
			"error":     err.Error(),
		})
	}
}

// Cache key namespaces.
const (
	cacheKindCart    = "cart"
	cacheKindOrder   = "order"
	cacheKindBooking = "booking"
	cacheKindPayment = "payment"
	cacheKindChat    = "chat"
	cacheKindDoctor  = "doctor"
)
