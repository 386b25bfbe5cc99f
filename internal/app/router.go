package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/superapp-core/internal/cart"
	"github.com/noah-isme/superapp-core/internal/checkout"
	"github.com/noah-isme/superapp-core/internal/common"
	"github.com/noah-isme/superapp-core/internal/health"
	"github.com/noah-isme/superapp-core/internal/obs"
	"github.com/noah-isme/superapp-core/internal/security"
	"github.com/noah-isme/superapp-core/internal/split"
)

// Router builds the HTTP surface. metrics may be nil to skip request instrumentation.
func (d *Dependencies) Router(metrics *obs.HTTPMetrics) (http.Handler, error) {
	cfg := d.Config
	rateLimit, err := security.RateLimit(d.LimiterStore, cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Obs.EnableTracing {
		r.Use(obs.TracingMiddleware)
	}
	if metrics != nil {
		r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", common.SessionHeader, common.IdempotencyHeader},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	healthHandler := health.Handler{Checks: d.Checks, Timeout: 500 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	if metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}
	splitHandler := &split.Handler{Svc: d.Splits, Validate: d.Validator}
	cartHandler := &cart.Handler{Sessions: d.Sessions, Catalog: d.Catalog, Validate: d.Validator}
	checkoutHandler := &checkout.Handler{Svc: d.Checkout, Validate: d.Validator}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rateLimit)
		v.Route("/splits", splitHandler.Routes)
		v.Route("/cart", func(c chi.Router) {
			c.Use(common.RequireSession)
			cartHandler.Routes(c)
		})
		v.With(common.RequireSession, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
	})
	return r, nil
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
