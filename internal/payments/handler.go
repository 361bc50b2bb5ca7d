package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfman30/onboardpro/internal/apperr"
	"github.com/wolfman30/onboardpro/internal/eventlog"
	"github.com/wolfman30/onboardpro/internal/persist"
	"github.com/wolfman30/onboardpro/pkg/logging"
)

// Store is the payment record persistence used by the handlers.
type Store interface {
	Insert(ctx context.Context, in NewRecord) (*Record, error)
	UpdateStatusBySession(ctx context.Context, sessionID string, status Status) (bool, error)
	GetBySession(ctx context.Context, sessionID string) (*Record, error)
}

// Metrics is the subset of the funnel metrics the payment handlers record.
type Metrics interface {
	persist.Observer
	ObserveCheckout(outcome string)
	ObserveWebhook(eventType, outcome string, seconds float64)
	ObserveStatusWriteSkipped(target string)
}

// CheckoutHandler serves POST/GET /api/checkout.
type CheckoutHandler struct {
	gateway  CheckoutGateway
	payments Store
	events   eventlog.Appender
	amount   int64
	metrics  Metrics
	logger   *logging.Logger
}

type checkoutRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	BusinessName string `json:"businessName"`
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

func NewCheckoutHandler(gateway CheckoutGateway, payments Store, events eventlog.Appender, amountCents int64, logger *logging.Logger) *CheckoutHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutHandler{
		gateway:  gateway,
		payments: payments,
		events:   events,
		amount:   amountCents,
		logger:   logger,
	}
}

// WithMetrics attaches funnel metrics.
func (h *CheckoutHandler) WithMetrics(m Metrics) *CheckoutHandler {
	h.metrics = m
	return h
}

// CreateCheckout starts a hosted checkout for the onboarding product.
func (h *CheckoutHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.observe("invalid")
		apperr.Write(w, h.logger, apperr.Validation("Invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	if req.Email == "" || req.Name == "" {
		h.observe("invalid")
		apperr.Write(w, h.logger, apperr.Validation("Email and name are required"))
		return
	}

	session, err := h.gateway.CreateSession(ctx, CheckoutParams{
		Email:        req.Email,
		Name:         req.Name,
		BusinessName: req.BusinessName,
	})
	if err != nil {
		h.observe("provider_error")
		apperr.Write(w, h.logger, apperr.Internal(stripeErrorMessage(err), err))
		return
	}

	_, err = h.payments.Insert(ctx, NewRecord{
		Email:           req.Email,
		Name:            req.Name,
		StripeSessionID: session.ID,
	})
	_ = persist.BestEffort.Handle(h.logger, h.metrics, "payments.insert", "Failed to record checkout", err,
		"session_id", session.ID)

	err = h.events.Append(ctx, eventlog.TypeCheckoutInitiated, map[string]any{
		"session_id":     session.ID,
		"customer_email": req.Email,
		"customer_name":  req.Name,
		"business_name":  req.BusinessName,
		"amount":         h.amount,
	})
	_ = persist.BestEffort.Handle(h.logger, h.metrics, "eventlog.checkout_initiated", "Failed to log event", err,
		"session_id", session.ID)

	h.logger.Info("checkout session created", "session_id", session.ID, "email", req.Email)
	h.observe("created")
	apperr.WriteJSON(w, http.StatusOK, checkoutResponse{
		CheckoutURL: session.URL,
		SessionID:   session.ID,
	})
}

// GetCheckout returns the provider's view of a session for the next-steps page.
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		apperr.Write(w, h.logger, apperr.Validation("Missing session_id parameter"))
		return
	}

	session, err := h.gateway.GetSession(r.Context(), sessionID)
	if err != nil {
		apperr.Write(w, h.logger, apperr.Internal("Failed to retrieve session", err))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *CheckoutHandler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveCheckout(outcome)
	}
}
