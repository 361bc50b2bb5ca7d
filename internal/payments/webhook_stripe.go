package payments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/wolfman30/onboardpro/internal/apperr"
	"github.com/wolfman30/onboardpro/internal/eventlog"
	"github.com/wolfman30/onboardpro/internal/notify"
	"github.com/wolfman30/onboardpro/internal/persist"
	"github.com/wolfman30/onboardpro/pkg/logging"
)

const maxWebhookBodyBytes = 64 << 10

// WelcomeMailer sends the post-payment email.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, w notify.Welcome) error
}

// StripeWebhookHandler reconciles payment records with Stripe checkout events.
type StripeWebhookHandler struct {
	webhookSecret string
	gateway       CheckoutGateway
	payments      Store
	events        eventlog.Appender
	tracker       EventTracker
	mailer        WelcomeMailer
	metrics       Metrics
	logger        *logging.Logger
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks.
func NewStripeWebhookHandler(
	webhookSecret string,
	gateway CheckoutGateway,
	payments Store,
	events eventlog.Appender,
	logger *logging.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		gateway:       gateway,
		payments:      payments,
		events:        events,
		logger:        logger,
	}
}

// WithEventTracker enables redelivery dedupe. A nil tracker disables it.
func (h *StripeWebhookHandler) WithEventTracker(t EventTracker) *StripeWebhookHandler {
	h.tracker = t
	return h
}

// WithMailer enables the welcome email on successful payment.
func (h *StripeWebhookHandler) WithMailer(m WelcomeMailer) *StripeWebhookHandler {
	h.mailer = m
	return h
}

func (h *StripeWebhookHandler) WithMetrics(m Metrics) *StripeWebhookHandler {
	h.metrics = m
	return h
}

// Handle verifies and processes one Stripe delivery. Once the signature is
// verified the response is always 200 so Stripe does not retry.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		apperr.Write(w, h.logger, apperr.Validation("Invalid request body"))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		apperr.Write(w, h.logger, apperr.Validation("Missing stripe-signature header"))
		return
	}

	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("stripe webhook signature verification failed", "error", err)
		apperr.Write(w, h.logger, apperr.Authentication("Invalid signature", err))
		return
	}

	eventType := string(evt.Type)
	outcome := h.process(r.Context(), evt.ID, func() (WebhookEvent, error) { return decodeWebhookEvent(evt) })
	if h.metrics != nil {
		h.metrics.ObserveWebhook(eventType, outcome, time.Since(start).Seconds())
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// process runs dedupe, decode and dispatch and reports an outcome label.
func (h *StripeWebhookHandler) process(ctx context.Context, eventID string, decode func() (WebhookEvent, error)) string {
	if h.tracker != nil && eventID != "" {
		seen, err := h.tracker.Seen(ctx, eventID)
		if err != nil {
			h.logger.Warn("stripe event dedupe lookup failed", "event_id", eventID, "error", err)
		} else if seen {
			h.logger.Info("stripe event already handled", "event_id", eventID)
			return "duplicate"
		}
	}

	event, err := decode()
	if err != nil {
		h.logger.Error("failed to decode stripe event", "event_id", eventID, "error", err)
		return "decode_error"
	}

	outcome := h.dispatch(ctx, event)

	if h.tracker != nil && eventID != "" {
		if err := h.tracker.MarkHandled(ctx, eventID); err != nil {
			h.logger.Warn("failed to mark stripe event handled", "event_id", eventID, "error", err)
		}
	}
	return outcome
}

func (h *StripeWebhookHandler) dispatch(ctx context.Context, event WebhookEvent) string {
	switch e := event.(type) {
	case SessionCompleted:
		return h.handleCompleted(ctx, e)
	case SessionExpired:
		return h.handleExpired(ctx, e)
	case PaymentFailed:
		return h.handlePaymentFailed(ctx, e)
	case Unknown:
		h.logger.Info("unhandled stripe event type", "event_id", e.EventID(), "type", e.EventType())
		return "ignored"
	default:
		return "ignored"
	}
}

func (h *StripeWebhookHandler) handleCompleted(ctx context.Context, e SessionCompleted) string {
	outcome := h.transition(ctx, e.SessionID, StatusSucceeded)

	err := h.events.Append(ctx, eventlog.TypePaymentSucceeded, map[string]any{
		"session_id":     e.SessionID,
		"customer_email": e.CustomerEmail,
		"amount_total":   e.AmountTotal,
		"currency":       e.Currency,
	})
	_ = persist.BestEffort.Handle(h.logger, h.metrics, "eventlog.payment_succeeded", "Failed to log event", err,
		"session_id", e.SessionID)

	if h.mailer != nil && e.CustomerEmail != "" && h.shouldWelcome(ctx, e.SessionID, outcome) {
		err := h.mailer.SendWelcome(ctx, notify.Welcome{
			Email:       e.CustomerEmail,
			Name:        e.CustomerName,
			SessionID:   e.SessionID,
			AmountCents: e.AmountTotal,
			Currency:    e.Currency,
		})
		if err != nil {
			h.logger.Warn("welcome email failed", "session_id", e.SessionID, "error", err)
		}
	}

	h.logger.Info("payment succeeded", "session_id", e.SessionID, "email", e.CustomerEmail)
	return outcome
}

// shouldWelcome is true for a fresh success and for a paid session whose
// checkout record was never written. A guard refusal sends nothing.
func (h *StripeWebhookHandler) shouldWelcome(ctx context.Context, sessionID, outcome string) bool {
	switch outcome {
	case "processed":
		return true
	case "skipped":
		_, err := h.payments.GetBySession(ctx, sessionID)
		if errors.Is(err, ErrPaymentNotFound) {
			h.logger.Warn("welcome email for session without payment record", "session_id", sessionID)
			return true
		}
		return false
	default:
		return false
	}
}

func (h *StripeWebhookHandler) handleExpired(ctx context.Context, e SessionExpired) string {
	outcome := h.transition(ctx, e.SessionID, StatusCancelled)

	err := h.events.Append(ctx, eventlog.TypeCheckoutExpired, map[string]any{
		"session_id":     e.SessionID,
		"customer_email": e.CustomerEmail,
	})
	_ = persist.BestEffort.Handle(h.logger, h.metrics, "eventlog.checkout_expired", "Failed to log event", err,
		"session_id", e.SessionID)

	h.logger.Info("checkout expired", "session_id", e.SessionID)
	return outcome
}

func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, e PaymentFailed) string {
	session, err := h.gateway.FindSessionByPaymentIntent(ctx, e.PaymentIntentID)
	if err != nil {
		h.logger.Error("checkout session lookup failed", "payment_intent_id", e.PaymentIntentID, "error", err)
		return "lookup_error"
	}
	if session == nil {
		h.logger.Info("payment failure without checkout session", "payment_intent_id", e.PaymentIntentID)
		return "ignored"
	}

	outcome := h.transition(ctx, session.ID, StatusFailed)

	err = h.events.Append(ctx, eventlog.TypePaymentFailed, map[string]any{
		"payment_intent_id":  e.PaymentIntentID,
		"session_id":         session.ID,
		"last_payment_error": e.LastPaymentError,
	})
	_ = persist.BestEffort.Handle(h.logger, h.metrics, "eventlog.payment_failed", "Failed to log event", err,
		"session_id", session.ID)

	h.logger.Warn("payment failed", "session_id", session.ID, "payment_intent_id", e.PaymentIntentID, "reason", e.LastPaymentError)
	return outcome
}

// transition applies the status write and classifies its result.
func (h *StripeWebhookHandler) transition(ctx context.Context, sessionID string, status Status) string {
	if sessionID == "" {
		h.logger.Warn("stripe event missing session id", "status", status)
		return "ignored"
	}
	applied, err := h.payments.UpdateStatusBySession(ctx, sessionID, status)
	if err != nil {
		_ = persist.BestEffort.Handle(h.logger, h.metrics, "payments.update_status", "Failed to update payment", err,
			"session_id", sessionID, "status", string(status))
		return "error"
	}
	if !applied {
		h.logger.Info("payment status write skipped", "session_id", sessionID, "status", string(status))
		if h.metrics != nil {
			h.metrics.ObserveStatusWriteSkipped(string(status))
		}
		return "skipped"
	}
	return "processed"
}
