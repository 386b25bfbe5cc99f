package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/superapp-core/internal/cart"
	"github.com/noah-isme/superapp-core/internal/catalog"
	"github.com/noah-isme/superapp-core/internal/checkout"
	"github.com/noah-isme/superapp-core/internal/config"
	"github.com/noah-isme/superapp-core/internal/events"
	"github.com/noah-isme/superapp-core/internal/health"
	"github.com/noah-isme/superapp-core/internal/lock"
	"github.com/noah-isme/superapp-core/internal/payment"
	"github.com/noah-isme/superapp-core/internal/resilience"
	"github.com/noah-isme/superapp-core/internal/security"
	"github.com/noah-isme/superapp-core/internal/session"
	"github.com/noah-isme/superapp-core/internal/split"
)

// Dependencies holds the long-lived services shared by the HTTP surface.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Redis        *redis.Client
	Validator    *validator.Validate
	LimiterStore limiter.Store
	Bus          *events.Bus
	AMQP         *events.AMQPNotifier
	Sessions     *session.Manager
	Catalog      *catalog.Resolver
	Payments     payment.Collaborator
	Splits       *split.Service
	Checkout     *checkout.Service
	Checks       map[string]health.Check
}

// Option adjusts dependency construction, mostly for tests.
type Option func(*options)

type options struct {
	redis    *redis.Client
	payments payment.Collaborator
	products catalog.Source
}

// WithRedis uses an existing client instead of dialing cfg.RedisURL.
func WithRedis(client *redis.Client) Option {
	return func(o *options) { o.redis = client }
}

// WithPayments replaces the payment collaborator.
func WithPayments(p payment.Collaborator) Option {
	return func(o *options) { o.payments = p }
}

// WithProducts replaces the catalog source.
func WithProducts(src catalog.Source) Option {
	return func(o *options) { o.products = src }
}

// New wires every service from cfg. Redis and AMQP are optional; without Redis carts live in
// memory and idempotency keys are not enforced.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Validator: validator.New(),
		Checks:    map[string]health.Check{},
	}

	rdb, err := openRedis(ctx, cfg, logger, o.redis)
	if err != nil {
		return nil, err
	}
	d.Redis = rdb
	if rdb != nil {
		d.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	if d.LimiterStore, err = security.NewLimiterStore(rdb); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("limiter store: %w", err)
	}

	d.Bus = &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	if cfg.AMQPURL != "" {
		n, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("amqp: %w", err)
		}
		d.AMQP = n
		d.Bus.Notifiers = append(d.Bus.Notifiers, n)
		d.Checks["amqp"] = n.Ping
	}

	var store cart.Store = cart.NewMemoryStoreWithTTL(cfg.CartTTL)
	if rdb != nil {
		store = cart.NewRedisStore(rdb, cfg.CartTTL)
	}
	d.Sessions = session.NewManager(store, events.CartNotifier{Emitter: d.Bus}, logger, cart.WithCurrency(cfg.CurrencyCode))

	d.Catalog = &catalog.Resolver{
		Source: o.products,
		Cache:  catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		Logger: logger,
	}
	if d.Catalog.Source == nil {
		d.Catalog.Source = productSource(cfg, logger)
	}

	d.Payments = o.payments
	if d.Payments == nil {
		d.Payments = paymentCollaborator(cfg, logger)
	}

	alloc := split.Allocator{Rounding: cfg.Rounding, Currency: cfg.CurrencyCode}
	settler := &split.Settler{Payments: d.Payments, Events: d.Bus, Logger: logger}
	d.Splits = split.NewService(alloc, settler, d.Bus, logger)
	if rdb != nil {
		d.Splits.Store = split.NewRedisStore(rdb, cfg.SplitTTL)
		d.Splits.Lock = lock.Locker{R: rdb, Prefix: "lock:"}
		d.Splits.LockTTL = time.Duration(cfg.PaymentMaxAttempts)*cfg.PaymentTimeout + 10*time.Second
	} else {
		d.Splits.Store = split.NewMemoryStore(cfg.SplitTTL)
	}

	d.Checkout = &checkout.Service{
		Sessions: d.Sessions,
		Catalog:  d.Catalog,
		Payments: d.Payments,
		Events:   d.Bus,
		Logger:   logger,
	}
	if rdb != nil {
		d.Checkout.Lock = lock.Locker{R: rdb, Prefix: "lock:"}
		d.Checkout.LockTTL = time.Duration(cfg.PaymentMaxAttempts)*cfg.PaymentTimeout + 10*time.Second
	}
	return d, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, existing *redis.Client) (*redis.Client, error) {
	if existing != nil {
		return existing, nil
	}
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, carts are kept in memory")
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func productSource(cfg *config.Config, logger zerolog.Logger) catalog.Source {
	if cfg.CatalogBaseURL == "" {
		logger.Warn().Msg("CATALOG_BASE_URL not set, catalog is empty")
		return catalog.NewSnapshot()
	}
	return &catalog.HTTPSource{
		BaseURL:  cfg.CatalogBaseURL,
		Client:   &http.Client{Timeout: 5 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Currency: cfg.CurrencyCode,
		Rounding: cfg.Rounding,
	}
}

func paymentCollaborator(cfg *config.Config, logger zerolog.Logger) payment.Collaborator {
	if cfg.PaymentBaseURL == "" {
		if cfg.IsProduction() {
			logger.Error().Msg("PAYMENT_BASE_URL not set in production, payments use the local fake")
		} else {
			logger.Warn().Msg("PAYMENT_BASE_URL not set, payments use the local fake")
		}
		return &payment.Fake{}
	}
	return &payment.Remote{
		BaseURL: cfg.PaymentBaseURL,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(20, 0.5, 30*time.Second).WithTarget("payment").WithLogger(logger),
			Target:      "payment",
			BaseBackoff: 100 * time.Millisecond,
			MaxAttempts: cfg.PaymentMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.PaymentTimeout,
		},
		Logger: logger,
	}
}

// Close releases network resources. The session manager is shut down first so no cart is
// persisted after Redis closes.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Sessions != nil {
		d.Sessions.Shutdown()
	}
	if d.AMQP != nil {
		errs = append(errs, d.AMQP.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	return errors.Join(errs...)
}
