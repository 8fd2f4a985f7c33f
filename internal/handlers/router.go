package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zelenivrt/storefront-backend/internal/cache"
	"github.com/zelenivrt/storefront-backend/internal/discount"
	"github.com/zelenivrt/storefront-backend/internal/middleware"
	"github.com/zelenivrt/storefront-backend/internal/newsletter"
)

// Pinger is anything /health can check
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Newsletter *newsletter.Service
	Discounts  *discount.Service
	Store      Pinger
	// Redis is optional. Without it rate limiting is per-process and
	// responses are not replayed by idempotency key.
	Redis  *cache.Redis
	Logger *slog.Logger

	CORSOrigins     []string
	RateLimit       int
	RateLimitWindow time.Duration
}

type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Redis     string `json:"redis"`
	Timestamp string `json:"timestamp"`
}

func NewRouter(cfg RouterConfig) http.Handler {
	nh := NewNewsletterHandler(cfg.Newsletter, cfg.Logger)
	dh := NewDiscountHandler(cfg.Discounts, cfg.Logger)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-ID", "X-Idempotency-Replayed", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler(cfg.Store, cfg.Redis))
	r.Handle("/metrics", promhttp.Handler())

	var limit func(http.Handler) http.Handler
	if cfg.Redis != nil {
		limit = middleware.RateLimiter(cfg.Redis, cfg.RateLimit, cfg.RateLimitWindow, cfg.Logger)
	} else {
		limit = httprate.LimitByIP(cfg.RateLimit, cfg.RateLimitWindow)
	}

	r.Route("/newsletter", func(r chi.Router) {
		r.With(limit).Post("/subscribe", nh.Subscribe)
		r.Post("/confirm", nh.Confirm)
		r.Post("/unsubscribe", nh.Unsubscribe)
		r.Get("/preferences", nh.GetPreferences)
		r.Put("/preferences", nh.UpdatePreferences)
	})

	r.Route("/discounts", func(r chi.Router) {
		r.Post("/validate", dh.Validate)
		if cfg.Redis != nil {
			r.With(middleware.Idempotency(cfg.Redis, cfg.Logger)).Post("/apply", dh.Apply)
		} else {
			r.Post("/apply", dh.Apply)
		}
		r.Get("/banner", dh.Banner)
	})

	return r
}

func healthHandler(store Pinger, redis *cache.Redis) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := HealthResponse{
			Status:    "healthy",
			Database:  "connected",
			Redis:     "disabled",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := store.Ping(ctx); err != nil {
			resp.Database = "disconnected"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		if redis != nil {
			resp.Redis = "connected"
			if err := redis.Ping(ctx); err != nil {
				resp.Redis = "disconnected"
				if status == http.StatusOK {
					resp.Status = "degraded"
				}
			}
		}
		writeJSON(w, status, resp)
	}
}
