package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/onboardpro/pkg/logging"
)

var stripeTracer = otel.Tracer("onboardpro.internal.payments.stripe")

// Product is the single item sold by the funnel.
type Product struct {
	Name        string
	Description string
	AmountCents int64
	Currency    string
	ImageURL    string
}

// CheckoutParams describes one checkout session request.
type CheckoutParams struct {
	Email        string
	Name         string
	BusinessName string
}

// CustomerDetails is the buyer information Stripe collected on the hosted page.
type CustomerDetails struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Session is the subset of a Stripe Checkout Session the funnel uses.
type Session struct {
	ID              string            `json:"id"`
	URL             string            `json:"-"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerDetails *CustomerDetails  `json:"customer_details"`
	Metadata        map[string]string `json:"metadata"`
	AmountTotal     int64             `json:"-"`
	Currency        string            `json:"-"`
}

// CheckoutGateway is the payment provider as seen by the handlers.
type CheckoutGateway interface {
	CreateSession(ctx context.Context, params CheckoutParams) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// FindSessionByPaymentIntent returns nil without error when no session matches.
	FindSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*Session, error)
}

// StripeGateway creates and reads Stripe Checkout Sessions.
type StripeGateway struct {
	api        *client.API
	product    Product
	successURL string
	cancelURL  string
	logger     *logging.Logger
	dryRun     bool
}

// NewStripeGateway creates a gateway using the live Stripe API.
func NewStripeGateway(secretKey string, product Product, successURL, cancelURL string, logger *logging.Logger) *StripeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeGateway{
		api:        client.New(secretKey, nil),
		product:    product,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
	}
}

// WithBaseURL points the gateway at another API host (stripe-mock or tests).
func (g *StripeGateway) WithBaseURL(secretKey, baseURL string) *StripeGateway {
	if baseURL == "" {
		return g
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(strings.TrimRight(baseURL, "/")),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	g.api = client.New(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return g
}

// WithDryRun enables dry-run mode (returns fake URLs without calling Stripe).
func (g *StripeGateway) WithDryRun(enabled bool) *StripeGateway {
	g.dryRun = enabled
	return g
}

// CreateSession creates a hosted checkout page for the onboarding product.
func (g *StripeGateway) CreateSession(ctx context.Context, params CheckoutParams) (*Session, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session", trace.WithAttributes(
		attribute.Int64("onboardpro.amount_cents", g.product.AmountCents),
		attribute.String("onboardpro.currency", g.product.Currency),
	))
	defer span.End()

	if g.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		g.logger.Info("stripe dry run: skipping checkout session creation", "email", params.Email)
		return &Session{
			ID:            fakeID,
			URL:           fmt.Sprintf("https://checkout.stripe.com/dry-run/%s", fakeID),
			PaymentStatus: string(stripe.CheckoutSessionPaymentStatusUnpaid),
		}, nil
	}

	productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(g.product.Name),
	}
	if g.product.Description != "" {
		productData.Description = stripe.String(g.product.Description)
	}
	if g.product.ImageURL != "" {
		productData.Images = stripe.StringSlice([]string{g.product.ImageURL})
	}

	sp := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(g.product.Currency),
					ProductData: productData,
					UnitAmount:  stripe.Int64(g.product.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail:       stripe.String(params.Email),
		SuccessURL:          stripe.String(g.successURL),
		CancelURL:           stripe.String(g.cancelURL),
		AutomaticTax:        &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)},
		AllowPromotionCodes: stripe.Bool(true),
	}
	sp.Context = ctx
	sp.AddMetadata("customer_name", params.Name)
	sp.AddMetadata("business_name", params.BusinessName)
	sp.AddMetadata("product_type", "onboarding_service")

	cs, err := g.api.CheckoutSessions.New(sp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create checkout session")
		return nil, fmt.Errorf("payments: stripe create session: %w", err)
	}
	if cs.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}
	span.SetAttributes(attribute.String("onboardpro.session_id", cs.ID))
	return sessionFromStripe(cs), nil
}

// GetSession retrieves a session for status polling.
func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_checkout_session", trace.WithAttributes(
		attribute.String("onboardpro.session_id", sessionID),
	))
	defer span.End()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get checkout session")
		return nil, fmt.Errorf("payments: stripe get session %s: %w", sessionID, err)
	}
	return sessionFromStripe(cs), nil
}

// FindSessionByPaymentIntent resolves the checkout session that owns a payment intent.
func (g *StripeGateway) FindSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*Session, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.list_checkout_sessions", trace.WithAttributes(
		attribute.String("onboardpro.payment_intent_id", paymentIntentID),
	))
	defer span.End()

	params := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	iter := g.api.CheckoutSessions.List(params)
	if iter.Next() {
		return sessionFromStripe(iter.CheckoutSession()), nil
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list checkout sessions")
		return nil, fmt.Errorf("payments: stripe list sessions for %s: %w", paymentIntentID, err)
	}
	return nil, nil
}

func sessionFromStripe(cs *stripe.CheckoutSession) *Session {
	if cs == nil {
		return nil
	}
	out := &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		PaymentStatus: string(cs.PaymentStatus),
		Metadata:      cs.Metadata,
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
	}
	if cs.CustomerDetails != nil {
		out.CustomerDetails = &CustomerDetails{
			Email: cs.CustomerDetails.Email,
			Name:  cs.CustomerDetails.Name,
			Phone: cs.CustomerDetails.Phone,
		}
	}
	return out
}

// stripeErrorMessage extracts the provider's message from a stripe-go error.
func stripeErrorMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}
