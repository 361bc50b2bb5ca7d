package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/onboardpro/internal/apperr"
	"github.com/wolfman30/onboardpro/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/onboardpro/internal/http/middleware"
	"github.com/wolfman30/onboardpro/internal/intake"
	"github.com/wolfman30/onboardpro/internal/payments"
	"github.com/wolfman30/onboardpro/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Checkout           *payments.CheckoutHandler
	Questionnaire      *intake.Handler
	StripeWebhook      *payments.StripeWebhookHandler
	Admin              *handlers.AdminFunnelHandler
	AdminJWTSecret     string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// RateLimiter guards the public form endpoints. Nil disables limiting.
	RateLimiter *httpmiddleware.RateLimiter

	// HealthCheck pings the database. Nil reports healthy.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.RateLimiter == nil {
			return h
		}
		return cfg.RateLimiter.Middleware(h)
	}

	r.Get("/health", healthHandler(cfg.HealthCheck, cfg.Logger))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		// Webhooks are never rate limited.
		if cfg.StripeWebhook != nil {
			api.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}

		api.Group(func(forms chi.Router) {
			forms.Use(middleware.Compress(5))
			if cfg.Checkout != nil {
				forms.Method(http.MethodPost, "/checkout", limited(cfg.Checkout.CreateCheckout))
				forms.Get("/checkout", cfg.Checkout.GetCheckout)
			}
			if cfg.Questionnaire != nil {
				forms.Method(http.MethodPost, "/questionnaire", limited(cfg.Questionnaire.Submit))
				forms.Get("/questionnaire", cfg.Questionnaire.Get)
			}
		})
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			admin.Get("/payments", cfg.Admin.ListPayments)
			admin.Get("/intakes", cfg.Admin.ListIntakes)
		})
	}

	return r
}

func healthHandler(check func(ctx context.Context) error, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				if logger != nil {
					logger.Warn("health check failed", "error", err)
				}
				apperr.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
