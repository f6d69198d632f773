// Package di assembles the runtime object graph: configuration,
// storage clients, repositories, services, and the HTTP router.
package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pawmart/api/internal/handlers"
	"github.com/pawmart/api/internal/platform/auth"
	"github.com/pawmart/api/internal/platform/cache"
	"github.com/pawmart/api/internal/platform/config"
	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/platform/idempotency"
	"github.com/pawmart/api/internal/platform/jobs"
	"github.com/pawmart/api/internal/platform/observability"
	"github.com/pawmart/api/internal/platform/requestctx"
	"github.com/pawmart/api/internal/repositories"
	firestoreRepo "github.com/pawmart/api/internal/repositories/firestore"
	"github.com/pawmart/api/internal/services"
)

// Services bundles the service-layer contracts the handlers rely upon.
type Services struct {
	Carts    services.CartService
	Orders   services.OrderService
	Bookings services.BookingService
	Payments services.PaymentService
	Chats    services.ChatService
	Doctors  services.DoctorService
	System   services.SystemService
}

// Container owns the wired runtime dependencies and their shutdown.
type Container struct {
	Config   config.Config
	Registry repositories.Registry
	Cache    cache.Store
	Services Services
	Handler  http.Handler

	logger      *zap.Logger
	replayGuard func(http.Handler) http.Handler
	closers     []func(context.Context) error
}

// NewContainer constructs the production object graph from
// configuration. The Redis cache and the Pub/Sub lifecycle publisher
// are optional; when unconfigured the container falls back to an
// in-process cache and drops lifecycle events.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{Config: cfg, logger: logger}

	store, extraChecks, err := c.buildCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Cache = store

	provider := pfirestore.NewProvider(cfg.Firestore)
	c.closers = append(c.closers, provider.Close)

	registry, err := firestoreRepo.NewRegistry(provider, extraChecks...)
	if err != nil {
		c.shutdown(ctx)
		return nil, fmt.Errorf("build repositories: %w", err)
	}
	c.Registry = registry

	client, err := provider.Client(ctx)
	if err != nil {
		c.shutdown(ctx)
		return nil, fmt.Errorf("build firestore client: %w", err)
	}
	c.replayGuard = idempotency.Middleware(idempotency.NewFirestoreStore(client))

	publisher, err := c.buildPublisher(ctx, cfg.Events)
	if err != nil {
		c.shutdown(ctx)
		return nil, err
	}

	if err := c.buildServices(registry, store, cfg.Redis.TTL, publisher); err != nil {
		c.shutdown(ctx)
		return nil, err
	}

	c.Handler = c.buildRouter()
	return c, nil
}

// Close releases clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) buildCache(ctx context.Context, cfg config.Config) (cache.Store, []repositories.DependencyCheck, error) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryStore(), nil, nil
	}

	store, err := cache.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("build cache: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return store.Close() })

	check := repositories.DependencyCheck{
		Name:  "redis",
		Check: store.Ping,
	}
	return store, []repositories.DependencyCheck{check}, nil
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.EventsConfig) (services.LifecycleEventPublisher, error) {
	if cfg.Topic == "" {
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	topic := client.Topic(cfg.Topic)
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return nil
	})

	publisher, err := jobs.NewPubSubEventPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("build lifecycle publisher: %w", err)
	}
	return publisher, nil
}

func (c *Container) buildServices(reg repositories.Registry, store cache.Store, cacheTTL time.Duration, publisher services.LifecycleEventPublisher) error {
	logger := serviceLogger(c.logger)

	carts, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Cache:    store,
		CacheTTL: cacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build cart service: %w", err)
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Cache:    store,
		CacheTTL: cacheTTL,
		Events:   publisher,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}

	bookings, err := services.NewBookingService(services.BookingServiceDeps{
		Bookings: reg.Bookings(),
		Doctors:  reg.Doctors(),
		Payments: reg.Payments(),
		Cache:    store,
		CacheTTL: cacheTTL,
		Events:   publisher,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build booking service: %w", err)
	}

	payments, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments: reg.Payments(),
		Orders:   reg.Orders(),
		Bookings: reg.Bookings(),
		Products: reg.Products(),
		Cache:    store,
		CacheTTL: cacheTTL,
		Events:   publisher,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build payment service: %w", err)
	}

	chats, err := services.NewChatService(services.ChatServiceDeps{
		Chats:    reg.Chats(),
		Bookings: reg.Bookings(),
		Cache:    store,
		CacheTTL: cacheTTL,
		Events:   publisher,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build chat service: %w", err)
	}

	doctors, err := services.NewDoctorService(services.DoctorServiceDeps{
		Doctors:  reg.Doctors(),
		Cache:    store,
		CacheTTL: cacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build doctor service: %w", err)
	}

	system, err := services.NewSystemService(services.SystemServiceDeps{
		Health: reg.Health(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("build system service: %w", err)
	}

	c.Services = Services{
		Carts:    carts,
		Orders:   orders,
		Bookings: bookings,
		Payments: payments,
		Chats:    chats,
		Doctors:  doctors,
		System:   system,
	}
	return nil
}

func (c *Container) buildRouter() http.Handler {
	authed := auth.Middleware()

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(c.logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(c.logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(c.Services.System)),
		handlers.WithDoctorRoutes(handlers.NewDoctorHandlers(c.Services.Doctors).Routes),
		handlers.WithCartRoutes(authedRoutes(authed, handlers.NewCartHandlers(c.Services.Carts).Routes)),
		handlers.WithOrderRoutes(authedRoutes(authed, handlers.NewOrderHandlers(c.Services.Orders).Routes)),
		handlers.WithBookingRoutes(authedRoutes(authed, handlers.NewBookingHandlers(c.Services.Bookings).Routes)),
		handlers.WithPaymentRoutes(authedRoutes(authed, guardedRoutes(c.replayGuard, handlers.NewPaymentHandlers(c.Services.Payments).Routes))),
		handlers.WithChatRoutes(authedRoutes(authed, handlers.NewChatHandlers(c.Services.Chats).Routes)),
	)
}

func (c *Container) shutdown(ctx context.Context) {
	if err := c.Close(ctx); err != nil {
		c.logger.Warn("container shutdown error", zap.Error(err))
	}
}

// authedRoutes prefixes a route group with the identity middleware so
// every endpoint inside it sees an authenticated caller.
func authedRoutes(mw func(http.Handler) http.Handler, reg handlers.RouteRegistrar) handlers.RouteRegistrar {
	return func(r chi.Router) {
		r.Use(mw)
		reg(r)
	}
}

// guardedRoutes wraps a route group with the idempotency replay guard
// so duplicate settlement submissions return the recorded response.
func guardedRoutes(mw func(http.Handler) http.Handler, reg handlers.RouteRegistrar) handlers.RouteRegistrar {
	if mw == nil {
		return reg
	}
	return func(r chi.Router) {
		r.Use(mw)
		reg(r)
	}
}

// serviceLogger adapts the zap logger behind the services.Logger
// contract, preferring the request-scoped logger when one is present.
func serviceLogger(base *zap.Logger) services.Logger {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == nil || logger == requestctx.NoopLogger() {
			logger = base
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
