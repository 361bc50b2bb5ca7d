package payments

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
)

// WebhookEvent is a verified provider event the reconciler understands.
// The set is closed: SessionCompleted, SessionExpired, PaymentFailed, Unknown.
type WebhookEvent interface {
	EventID() string
	EventType() string
	webhookEvent()
}

type eventMeta struct {
	ID   string
	Type string
}

func (m eventMeta) EventID() string   { return m.ID }
func (m eventMeta) EventType() string { return m.Type }
func (eventMeta) webhookEvent()       {}

// SessionCompleted is checkout.session.completed.
type SessionCompleted struct {
	eventMeta
	SessionID     string
	CustomerEmail string
	CustomerName  string
	AmountTotal   int64
	Currency      string
}

// SessionExpired is checkout.session.expired.
type SessionExpired struct {
	eventMeta
	SessionID     string
	CustomerEmail string
}

// PaymentFailed is payment_intent.payment_failed. The checkout session is not
// part of the payload and has to be looked up by PaymentIntentID.
type PaymentFailed struct {
	eventMeta
	PaymentIntentID  string
	LastPaymentError string
}

// Unknown is any other event type. It is acknowledged without action.
type Unknown struct {
	eventMeta
}

// decodeWebhookEvent maps a verified stripe.Event onto its variant.
func decodeWebhookEvent(evt stripe.Event) (WebhookEvent, error) {
	meta := eventMeta{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return nil, fmt.Errorf("payments: event %s has no data", evt.ID)
	}

	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		email := cs.CustomerEmail
		name := cs.Metadata["customer_name"]
		if cs.CustomerDetails != nil {
			if cs.CustomerDetails.Email != "" {
				email = cs.CustomerDetails.Email
			}
			if name == "" {
				name = cs.CustomerDetails.Name
			}
		}
		if evt.Type == stripe.EventTypeCheckoutSessionExpired {
			return SessionExpired{eventMeta: meta, SessionID: cs.ID, CustomerEmail: email}, nil
		}
		return SessionCompleted{
			eventMeta:     meta,
			SessionID:     cs.ID,
			CustomerEmail: email,
			CustomerName:  name,
			AmountTotal:   cs.AmountTotal,
			Currency:      string(cs.Currency),
		}, nil

	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		out := PaymentFailed{eventMeta: meta, PaymentIntentID: pi.ID}
		if pi.LastPaymentError != nil {
			out.LastPaymentError = pi.LastPaymentError.Msg
		}
		return out, nil

	default:
		return Unknown{eventMeta: meta}, nil
	}
}
