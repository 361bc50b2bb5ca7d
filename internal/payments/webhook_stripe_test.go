package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/onboardpro/internal/notify"
)

const testWebhookSecret = "whsec_test123"

func buildStripePayload(t *testing.T, eventID, eventType string, object map[string]any) []byte {
	t.Helper()
	evt := map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"created":     time.Now().Unix(),
		"data": map[string]any{
			"object": object,
		},
	}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("failed to marshal stripe event: %v", err)
	}
	return data
}

func completedSession(sessionID string) map[string]any {
	return map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"amount_total":   49700,
		"currency":       "usd",
		"payment_status": "paid",
		"customer_details": map[string]any{
			"email": "jane@example.com",
			"name":  "Jane Doe",
		},
		"metadata": map[string]string{"customer_name": "Jane", "product_type": "onboarding_service"},
	}
}

func stripeSign(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", ts, sig)
}

type stubTracker struct {
	seen   map[string]bool
	err    error
	marked []string
}

func (s *stubTracker) Seen(ctx context.Context, eventID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.seen[eventID], nil
}

func (s *stubTracker) MarkHandled(ctx context.Context, eventID string) error {
	s.marked = append(s.marked, eventID)
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	s.seen[eventID] = true
	return nil
}

type stubMailer struct {
	sent []notify.Welcome
	err  error
}

func (m *stubMailer) SendWelcome(ctx context.Context, w notify.Welcome) error {
	m.sent = append(m.sent, w)
	return m.err
}

type webhookFixture struct {
	handler *StripeWebhookHandler
	gateway *stubGateway
	store   *stubPaymentStore
	events  *stubEventLog
	mailer  *stubMailer
	metrics *stubMetrics
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		gateway: &stubGateway{byIntent: map[string]*Session{}},
		store:   newStubPaymentStore(),
		events:  &stubEventLog{},
		mailer:  &stubMailer{},
		metrics: &stubMetrics{},
	}
	f.handler = NewStripeWebhookHandler(testWebhookSecret, f.gateway, f.store, f.events, nil).
		WithMailer(f.mailer).
		WithMetrics(f.metrics)
	return f
}

func (f *webhookFixture) deliver(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rr := httptest.NewRecorder()
	f.handler.Handle(rr, req)
	return rr
}

func assertAcknowledged(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr)["received"]; got != true {
		t.Fatalf("expected received=true, got %s", rr.Body.String())
	}
}

func TestStripeWebhookHandler_SessionCompleted(t *testing.T) {
	f := newWebhookFixture()
	f.store.statuses["cs_test_1"] = StatusPending

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", completedSession("cs_test_1"))
	rr := f.deliver(t, body, stripeSign(body, testWebhookSecret))

	assertAcknowledged(t, rr)
	if f.store.statuses["cs_test_1"] != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", f.store.statuses["cs_test_1"])
	}
	if len(f.events.entries) != 1 || f.events.entries[0].Type != "payment_succeeded" {
		t.Fatalf("expected payment_succeeded event, got %+v", f.events.entries)
	}
	payload := f.events.entries[0].Payload
	if payload["session_id"] != "cs_test_1" || payload["customer_email"] != "jane@example.com" ||
		payload["amount_total"] != int64(49700) || payload["currency"] != "usd" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if len(f.mailer.sent) != 1 || f.mailer.sent[0].Email != "jane@example.com" || f.mailer.sent[0].Name != "Jane" {
		t.Fatalf("expected welcome email, got %+v", f.mailer.sent)
	}
	if len(f.metrics.webhooks) != 1 || f.metrics.webhooks[0] != "checkout.session.completed:processed" {
		t.Fatalf("unexpected webhook metric %v", f.metrics.webhooks)
	}
}

func TestStripeWebhookHandler_MissingSignature(t *testing.T) {
	f := newWebhookFixture()

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", completedSession("cs_test_1"))
	rr := f.deliver(t, body, "")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "Missing stripe-signature header" {
		t.Fatalf("unexpected error %v", got)
	}
	if f.store.calls() != 0 || len(f.events.entries) != 0 {
		t.Fatal("no storage call may happen before verification")
	}
}

func TestStripeWebhookHandler_InvalidSignature(t *testing.T) {
	f := newWebhookFixture()
	f.store.statuses["cs_test_1"] = StatusPending

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", completedSession("cs_test_1"))
	sig := stripeSign(body, testWebhookSecret)
	tampered := bytes.Replace(body, []byte("49700"), []byte("100"), 1)

	cases := map[string]struct {
		body []byte
		sig  string
	}{
		"tampered body": {tampered, sig},
		"wrong secret":  {body, stripeSign(body, "whsec_other")},
		"garbage":       {body, "not-a-signature"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := f.deliver(t, tc.body, tc.sig)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if got := decodeBody(t, rr)["error"]; got != "Invalid signature" {
				t.Fatalf("unexpected error %v", got)
			}
		})
	}
	if f.store.calls() != 0 || len(f.events.entries) != 0 {
		t.Fatal("rejected deliveries must not touch storage")
	}
	if f.store.statuses["cs_test_1"] != StatusPending {
		t.Fatal("status must be unchanged")
	}
}

func TestStripeWebhookHandler_CompletedReplayIsIdempotent(t *testing.T) {
	f := newWebhookFixture()
	f.store.statuses["cs_test_1"] = StatusPending

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", completedSession("cs_test_1"))
	for i := 0; i < 2; i++ {
		rr := f.deliver(t, body, stripeSign(body, testWebhookSecret))
		assertAcknowledged(t, rr)
	}
	if f.store.statuses["cs_test_1"] != StatusSucceeded {
		t.Fatalf("expected succeeded after replay, got %s", f.store.statuses["cs_test_1"])
	}
}

func TestStripeWebhookHandler_DuplicateSkippedWithTracker(t *testing.T) {
	f := newWebhookFixture()
	tracker := &stubTracker{}
	f.handler.WithEventTracker(tracker)
	f.store.statuses["cs_test_1"] = StatusPending

	body := buildStripePayload(t, "evt_dup", "checkout.session.completed", completedSession("cs_test_1"))
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if len(f.store.updates) != 1 {
		t.Fatalf("expected a single status write, got %d", len(f.store.updates))
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected a single welcome email, got %d", len(f.mailer.sent))
	}
	if len(tracker.marked) != 1 || tracker.marked[0] != "evt_dup" {
		t.Fatalf("expected event to be marked once, got %v", tracker.marked)
	}
	if f.metrics.webhooks[1] != "checkout.session.completed:duplicate" {
		t.Fatalf("expected duplicate outcome, got %v", f.metrics.webhooks)
	}
}

func TestStripeWebhookHandler_TrackerFailureStillProcesses(t *testing.T) {
	f := newWebhookFixture()
	f.handler.WithEventTracker(&stubTracker{err: errors.New("redis down")})
	f.store.statuses["cs_test_1"] = StatusPending

	body := buildStripePayload(t, "evt_1", "checkout.session.completed", completedSession("cs_test_1"))
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if f.store.statuses["cs_test_1"] != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", f.store.statuses["cs_test_1"])
	}
}

func TestStripeWebhookHandler_SessionExpired(t *testing.T) {
	f := newWebhookFixture()
	f.store.statuses["cs_test_2"] = StatusPending

	body := buildStripePayload(t, "evt_2", "checkout.session.expired", map[string]any{
		"id":             "cs_test_2",
		"object":         "checkout.session",
		"customer_email": "sam@example.com",
	})
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if f.store.statuses["cs_test_2"] != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", f.store.statuses["cs_test_2"])
	}
	if len(f.events.entries) != 1 || f.events.entries[0].Type != "checkout_expired" ||
		f.events.entries[0].Payload["customer_email"] != "sam@example.com" {
		t.Fatalf("unexpected events %+v", f.events.entries)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatal("no email for expired sessions")
	}
}

func TestStripeWebhookHandler_ExpiredAfterSuccessIsRefused(t *testing.T) {
	f := newWebhookFixture()
	f.store.statuses["cs_test_1"] = StatusSucceeded

	body := buildStripePayload(t, "evt_late", "checkout.session.expired", map[string]any{
		"id":     "cs_test_1",
		"object": "checkout.session",
	})
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if f.store.statuses["cs_test_1"] != StatusSucceeded {
		t.Fatalf("terminal status must not change, got %s", f.store.statuses["cs_test_1"])
	}
	if len(f.metrics.skipped) != 1 || f.metrics.skipped[0] != "cancelled" {
		t.Fatalf("expected skipped metric, got %v", f.metrics.skipped)
	}
}

func TestStripeWebhookHandler_PaymentFailed(t *testing.T) {
	f := newWebhookFixture()
	f.store.statuses["cs_test_3"] = StatusPending
	f.gateway.byIntent["pi_123"] = &Session{ID: "cs_test_3"}

	body := buildStripePayload(t, "evt_3", "payment_intent.payment_failed", map[string]any{
		"id":     "pi_123",
		"object": "payment_intent",
		"last_payment_error": map[string]any{
			"message": "Your card has insufficient funds.",
			"type":    "card_error",
		},
	})
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if f.store.statuses["cs_test_3"] != StatusFailed {
		t.Fatalf("expected failed, got %s", f.store.statuses["cs_test_3"])
	}
	if len(f.events.entries) != 1 {
		t.Fatalf("expected payment_failed event, got %+v", f.events.entries)
	}
	payload := f.events.entries[0].Payload
	if payload["payment_intent_id"] != "pi_123" || payload["session_id"] != "cs_test_3" ||
		payload["last_payment_error"] != "Your card has insufficient funds." {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestStripeWebhookHandler_PaymentFailedWithoutSession(t *testing.T) {
	f := newWebhookFixture()

	body := buildStripePayload(t, "evt_4", "payment_intent.payment_failed", map[string]any{
		"id":     "pi_orphan",
		"object": "payment_intent",
	})
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if len(f.gateway.findRequests) != 1 || f.gateway.findRequests[0] != "pi_orphan" {
		t.Fatalf("expected lookup by payment intent, got %v", f.gateway.findRequests)
	}
	if f.store.calls() != 0 || len(f.events.entries) != 0 {
		t.Fatal("no mutation expected without a checkout session")
	}
}

func TestStripeWebhookHandler_LookupFailureAcknowledged(t *testing.T) {
	f := newWebhookFixture()
	f.gateway.findErr = errors.New("stripe unavailable")

	body := buildStripePayload(t, "evt_5", "payment_intent.payment_failed", map[string]any{
		"id":     "pi_123",
		"object": "payment_intent",
	})
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))
	if f.store.calls() != 0 {
		t.Fatal("no mutation expected when the lookup fails")
	}
}

func TestStripeWebhookHandler_UnknownEventAcknowledged(t *testing.T) {
	f := newWebhookFixture()

	body := buildStripePayload(t, "evt_6", "customer.created", map[string]any{
		"id":     "cus_1",
		"object": "customer",
	})
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if f.store.calls() != 0 || len(f.events.entries) != 0 {
		t.Fatal("unknown events must not mutate state")
	}
	if f.metrics.webhooks[0] != "customer.created:ignored" {
		t.Fatalf("expected ignored outcome, got %v", f.metrics.webhooks)
	}
}

func TestStripeWebhookHandler_StorageFailuresAcknowledged(t *testing.T) {
	f := newWebhookFixture()
	f.store.updateErr = errors.New("connection reset")
	f.events.err = errors.New("connection reset")

	body := buildStripePayload(t, "evt_7", "checkout.session.completed", completedSession("cs_test_1"))
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if len(f.metrics.bestEffort) != 2 {
		t.Fatalf("expected two swallowed failures, got %v", f.metrics.bestEffort)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatal("welcome email is not sent when the status write errors")
	}
}

func TestStripeWebhookHandler_UnknownSessionSkipped(t *testing.T) {
	f := newWebhookFixture()

	body := buildStripePayload(t, "evt_8", "checkout.session.completed", completedSession("cs_unknown"))
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if _, ok := f.store.statuses["cs_unknown"]; ok {
		t.Fatal("a missing record must not be created by the webhook")
	}
	if len(f.events.entries) != 1 {
		t.Fatal("the event log still records the delivery")
	}
	if len(f.metrics.webhooks) != 1 || f.metrics.webhooks[0] != "checkout.session.completed:skipped" {
		t.Fatalf("unexpected webhook metric %v", f.metrics.webhooks)
	}
}

func TestStripeWebhookHandler_RefusedCompletionNotWelcomed(t *testing.T) {
	f := newWebhookFixture()
	f.store.statuses["cs_test_1"] = StatusCancelled

	body := buildStripePayload(t, "evt_10", "checkout.session.completed", completedSession("cs_test_1"))
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if f.store.statuses["cs_test_1"] != StatusCancelled {
		t.Fatalf("terminal status must not change, got %s", f.store.statuses["cs_test_1"])
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("a refused status write sends no welcome email, got %+v", f.mailer.sent)
	}
}

func TestStripeWebhookHandler_UnknownSessionStillWelcomed(t *testing.T) {
	f := newWebhookFixture()

	body := buildStripePayload(t, "evt_9", "checkout.session.completed", completedSession("cs_unknown"))
	assertAcknowledged(t, f.deliver(t, body, stripeSign(body, testWebhookSecret)))

	if len(f.mailer.sent) != 1 || f.mailer.sent[0].SessionID != "cs_unknown" {
		t.Fatalf("a paid session without a record still gets the welcome email, got %+v", f.mailer.sent)
	}
}
