package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"

	"github.com/wolfman30/onboardpro/pkg/logging"
)

// LaunchPromo describes the launch discount: a one-time coupon worth the full
// product price behind a redeemable promotion code.
type LaunchPromo struct {
	Code           string
	CouponName     string
	AmountOffCents int64
	Currency       string
	MaxRedemptions int64
}

// DefaultLaunchPromo returns the LAUNCH497 setup for the given price.
func DefaultLaunchPromo(code string, amountCents int64, currency string) LaunchPromo {
	if code == "" {
		code = "LAUNCH497"
	}
	return LaunchPromo{
		Code:           code,
		CouponName:     "OnboardPro Launch Special",
		AmountOffCents: amountCents,
		Currency:       currency,
		MaxRedemptions: 100,
	}
}

// PromoResult reports what the provisioner ended up with.
type PromoResult struct {
	CouponID        string
	PromotionCodeID string
	Code            string
	Created         bool
}

// ProvisionPromo creates the coupon and promotion code. Objects that already
// exist are reused and reported rather than treated as errors.
func (g *StripeGateway) ProvisionPromo(ctx context.Context, promo LaunchPromo) (*PromoResult, error) {
	if promo.Code == "" || promo.AmountOffCents <= 0 {
		return nil, fmt.Errorf("payments: promo code and amount required")
	}
	ctx, span := stripeTracer.Start(ctx, "stripe.provision_promo")
	defer span.End()

	couponParams := &stripe.CouponParams{
		ID:        stripe.String(promo.Code),
		AmountOff: stripe.Int64(promo.AmountOffCents),
		Currency:  stripe.String(promo.Currency),
		Duration:  stripe.String(string(stripe.CouponDurationOnce)),
		Name:      stripe.String(promo.CouponName),
	}
	couponParams.Context = ctx
	if _, err := g.api.Coupons.New(couponParams); err != nil {
		if !alreadyExists(err) {
			span.RecordError(err)
			return nil, fmt.Errorf("payments: create coupon: %w", err)
		}
		g.logger.Info("coupon already exists", "coupon_id", promo.Code)
	}

	codeParams := &stripe.PromotionCodeParams{
		Coupon:         stripe.String(promo.Code),
		Code:           stripe.String(promo.Code),
		MaxRedemptions: stripe.Int64(promo.MaxRedemptions),
		Restrictions: &stripe.PromotionCodeRestrictionsParams{
			MinimumAmount:         stripe.Int64(promo.AmountOffCents),
			MinimumAmountCurrency: stripe.String(promo.Currency),
		},
	}
	codeParams.Context = ctx
	pc, err := g.api.PromotionCodes.New(codeParams)
	if err == nil {
		g.logger.Info("promotion code created", "code", pc.Code, "id", pc.ID)
		return &PromoResult{CouponID: promo.Code, PromotionCodeID: pc.ID, Code: pc.Code, Created: true}, nil
	}
	if !alreadyExists(err) {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: create promotion code: %w", err)
	}

	listParams := &stripe.PromotionCodeListParams{Code: stripe.String(promo.Code)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)
	listParams.Single = true
	iter := g.api.PromotionCodes.List(listParams)
	if iter.Next() {
		existing := iter.PromotionCode()
		g.logger.Info("promotion code already exists", "code", existing.Code, "id", existing.ID)
		return &PromoResult{CouponID: promo.Code, PromotionCodeID: existing.ID, Code: existing.Code}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("payments: list promotion codes: %w", err)
	}
	return nil, fmt.Errorf("payments: promotion code %s reported as existing but not found", promo.Code)
}

func alreadyExists(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceAlreadyExists
}

// NewStripeAdminGateway builds a gateway for one-off admin tasks that only
// need the API client.
func NewStripeAdminGateway(secretKey, baseURL string, logger *logging.Logger) *StripeGateway {
	return NewStripeGateway(secretKey, Product{}, "", "", logger).WithBaseURL(secretKey, baseURL)
}
