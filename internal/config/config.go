package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	AppBaseURL     string
	LogLevel       string
	DatabaseURL    string
	DBMaxConns     int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBaseURL    string
	StripeDryRun        bool

	// Product sold by the funnel
	ProductName        string
	ProductDescription string
	ProductAmountCents int64
	ProductCurrency    string
	PromoCode          string

	// Redis (webhook dedupe, optional)
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	WebhookDedupeTTL time.Duration

	// Email: "sendgrid" (default), "ses", or "none"
	EmailProvider    string
	EmailFromAddress string
	EmailFromName    string
	SendGridAPIKey   string

	// AWS (SES email provider)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		AppBaseURL:     strings.TrimRight(getEnv("APP_BASE_URL", ""), "/"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxConns:     getEnvAsInt("DB_MAX_CONNS", 10),
		CORSOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIBaseURL:    getEnv("STRIPE_API_BASE_URL", ""),
		StripeDryRun:        getEnvAsBool("STRIPE_DRY_RUN", false),

		ProductName:        getEnv("ONBOARDING_PRODUCT_NAME", "Premium Onboarding Service"),
		ProductDescription: getEnv("ONBOARDING_PRODUCT_DESCRIPTION", "White-glove client onboarding setup with dedicated VA team"),
		ProductAmountCents: int64(getEnvAsInt("ONBOARDING_PRICE_CENTS", 49700)),
		ProductCurrency:    strings.ToLower(getEnv("ONBOARDING_CURRENCY", "usd")),
		PromoCode:          getEnv("PROMO_CODE", "LAUNCH497"),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		WebhookDedupeTTL: getEnvAsDuration("WEBHOOK_DEDUPE_TTL", 72*time.Hour),

		EmailProvider:    strings.ToLower(getEnv("EMAIL_PROVIDER", "sendgrid")),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "OnboardPro"),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// Validate reports every required setting that is missing. The API refuses to
// start without them.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"STRIPE_SECRET_KEY", c.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret},
		{"APP_BASE_URL", c.AppBaseURL},
		{"DATABASE_URL", c.DatabaseURL},
	}
	var errs []error
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("config: missing %s", r.key))
		}
	}
	if c.ProductAmountCents <= 0 {
		errs = append(errs, fmt.Errorf("config: ONBOARDING_PRICE_CENTS must be positive, got %d", c.ProductAmountCents))
	}
	return errors.Join(errs...)
}

// SuccessURL is where Stripe sends the buyer after paying. Stripe substitutes
// the literal {CHECKOUT_SESSION_ID} placeholder.
func (c *Config) SuccessURL() string {
	return c.AppBaseURL + "/next-steps?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where Stripe sends the buyer after abandoning checkout.
func (c *Config) CancelURL() string {
	return c.AppBaseURL + "/?cancelled=true"
}

// ProductImageURL is the product image shown on the hosted checkout page.
func (c *Config) ProductImageURL() string {
	return c.AppBaseURL + "/og-image.png"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
