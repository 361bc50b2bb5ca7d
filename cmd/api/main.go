package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/onboardpro/internal/api/router"
	"github.com/wolfman30/onboardpro/internal/app/bootstrap"
	appconfig "github.com/wolfman30/onboardpro/internal/config"
	"github.com/wolfman30/onboardpro/internal/eventlog"
	"github.com/wolfman30/onboardpro/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/onboardpro/internal/http/middleware"
	"github.com/wolfman30/onboardpro/internal/intake"
	"github.com/wolfman30/onboardpro/internal/notify"
	"github.com/wolfman30/onboardpro/internal/observability/metrics"
	"github.com/wolfman30/onboardpro/internal/payments"
	"github.com/wolfman30/onboardpro/pkg/logging"
)

func main() {
	// Local overrides first; missing files are fine.
	_ = godotenv.Load(".env.local", ".env")

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting onboardpro API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"stripe_dry_run", cfg.StripeDryRun,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.BuildPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, funnelMetrics := setupMetrics()
	sender := bootstrap.BuildEmailSender(ctx, cfg, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildRouter(ctx, cfg, pool, redisClient, sender, funnelMetrics, metricsHandler, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics returns the /metrics handler backed by a private registry.
func setupMetrics() (http.Handler, *metrics.FunnelMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewFunnelMetrics(reg)
}

func buildRouter(
	ctx context.Context,
	cfg *appconfig.Config,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	sender notify.EmailSender,
	funnelMetrics *metrics.FunnelMetrics,
	metricsHandler http.Handler,
	logger *logging.Logger,
) http.Handler {
	paymentsRepo := payments.NewPostgresRepository(pool)
	intakeRepo := intake.NewPostgresRepository(pool)
	events := eventlog.NewStore(pool)
	mailer := notify.NewMailer(sender, cfg.AppBaseURL, logger)

	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, payments.Product{
		Name:        cfg.ProductName,
		Description: cfg.ProductDescription,
		AmountCents: cfg.ProductAmountCents,
		Currency:    cfg.ProductCurrency,
		ImageURL:    cfg.ProductImageURL(),
	}, cfg.SuccessURL(), cfg.CancelURL(), logger).
		WithBaseURL(cfg.StripeSecretKey, cfg.StripeAPIBaseURL).
		WithDryRun(cfg.StripeDryRun)

	checkout := payments.NewCheckoutHandler(gateway, paymentsRepo, events, cfg.ProductAmountCents, logger).
		WithMetrics(funnelMetrics)

	webhook := payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, gateway, paymentsRepo, events, logger).
		WithMailer(mailer).
		WithMetrics(funnelMetrics)
	if redisClient != nil {
		webhook.WithEventTracker(payments.NewRedisEventTracker(redisClient, cfg.WebhookDedupeTTL, logger))
	} else {
		logger.Warn("webhook dedupe disabled (REDIS_ADDR not set or unreachable)")
	}

	questionnaire := intake.NewHandler(intakeRepo, events, logger).
		WithPaymentLookup(paymentsRepo).
		WithMailer(mailer).
		WithMetrics(funnelMetrics)

	var admin *handlers.AdminFunnelHandler
	if cfg.AdminJWTSecret != "" {
		admin = handlers.NewAdminFunnelHandler(paymentsRepo, intakeRepo, logger)
	}

	return router.New(&router.Config{
		Logger:             logger,
		Checkout:           checkout,
		Questionnaire:      questionnaire,
		StripeWebhook:      webhook,
		Admin:              admin,
		AdminJWTSecret:     cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimiter:        httpmiddleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst),
		HealthCheck:        pool.Ping,
	})
}
