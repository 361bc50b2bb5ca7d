// Command promocode provisions the launch coupon and promotion code in Stripe.
// Re-running it is safe: existing objects are reported, not recreated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/onboardpro/internal/config"
	"github.com/wolfman30/onboardpro/internal/notify"
	"github.com/wolfman30/onboardpro/internal/payments"
	"github.com/wolfman30/onboardpro/pkg/logging"
)

func main() {
	_ = godotenv.Load(".env.local", ".env")

	cfg := appconfig.Load()
	code := flag.String("code", cfg.PromoCode, "promotion code to provision")
	maxRedemptions := flag.Int64("max-redemptions", 100, "maximum number of redemptions")
	flag.Parse()

	logger := logging.New(cfg.LogLevel)
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		logger.Error("STRIPE_SECRET_KEY is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	promo := payments.DefaultLaunchPromo(strings.ToUpper(strings.TrimSpace(*code)), cfg.ProductAmountCents, cfg.ProductCurrency)
	promo.MaxRedemptions = *maxRedemptions

	gateway := payments.NewStripeAdminGateway(cfg.StripeSecretKey, cfg.StripeAPIBaseURL, logger)
	result, err := gateway.ProvisionPromo(ctx, promo)
	if err != nil {
		logger.Error("failed to provision promotion code", "code", promo.Code, "error", err)
		os.Exit(1)
	}

	if result.Created {
		fmt.Printf("Created promotion code %s (%s), %s off, max %d redemptions\n",
			result.Code, result.PromotionCodeID, notify.FormatAmount(promo.AmountOffCents, promo.Currency), promo.MaxRedemptions)
		return
	}
	fmt.Printf("Promotion code %s already exists (%s)\n", result.Code, result.PromotionCodeID)
}

