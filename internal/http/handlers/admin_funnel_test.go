package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/onboardpro/internal/intake"
	"github.com/wolfman30/onboardpro/internal/payments"
)

type stubPaymentLister struct {
	records []*payments.Record
	err     error
	got     payments.ListFilter
}

func (s *stubPaymentLister) List(ctx context.Context, filter payments.ListFilter) ([]*payments.Record, error) {
	s.got = filter
	return s.records, s.err
}

type stubIntakeLister struct {
	records []*intake.Record
	err     error
	got     intake.ListFilter
}

func (s *stubIntakeLister) List(ctx context.Context, filter intake.ListFilter) ([]*intake.Record, error) {
	s.got = filter
	return s.records, s.err
}

func serveList(h http.HandlerFunc, target string) (*httptest.ResponseRecorder, map[string]any) {
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, target, nil))
	var out map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr, out
}

func TestAdminFunnelListPayments(t *testing.T) {
	lister := &stubPaymentLister{records: []*payments.Record{
		{ID: uuid.New(), Email: "jane@example.com", StripeSessionID: "cs_1", Status: payments.StatusSucceeded},
	}}
	h := NewAdminFunnelHandler(lister, &stubIntakeLister{}, nil)

	rr, body := serveList(h.ListPayments, "/admin/payments?status=succeeded&limit=10&offset=5")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, payments.ListFilter{Status: payments.StatusSucceeded, Limit: 10, Offset: 5}, lister.got)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(10), body["limit"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "cs_1", items[0].(map[string]any)["stripe_session_id"])
}

func TestAdminFunnelListPaymentsDefaults(t *testing.T) {
	lister := &stubPaymentLister{}
	h := NewAdminFunnelHandler(lister, &stubIntakeLister{}, nil)

	rr, body := serveList(h.ListPayments, "/admin/payments?limit=5000")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, maxPageLimit, lister.got.Limit)
	assert.Equal(t, []any{}, body["items"])
}

func TestAdminFunnelRejectsBadQuery(t *testing.T) {
	h := NewAdminFunnelHandler(&stubPaymentLister{}, &stubIntakeLister{}, nil)

	cases := map[string]string{
		"status": "/admin/payments?status=refunded",
		"limit":  "/admin/payments?limit=abc",
		"zero":   "/admin/payments?limit=0",
		"offset": "/admin/payments?offset=-1",
		"intake": "/admin/intakes?status=pending",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			handler := h.ListPayments
			if name == "intake" {
				handler = h.ListIntakes
			}
			rr, body := serveList(handler, target)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAdminFunnelListIntakes(t *testing.T) {
	lister := &stubIntakeLister{records: []*intake.Record{
		{ID: uuid.New(), FullName: "Jane Doe", Status: intake.StatusSubmitted},
	}}
	h := NewAdminFunnelHandler(&stubPaymentLister{}, lister, nil)

	rr, body := serveList(h.ListIntakes, "/admin/intakes?status=submitted")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, intake.StatusSubmitted, lister.got.Status)
	assert.Equal(t, defaultPageLimit, lister.got.Limit)
	assert.Equal(t, float64(1), body["count"])
}

func TestAdminFunnelStorageError(t *testing.T) {
	h := NewAdminFunnelHandler(
		&stubPaymentLister{err: errors.New("connection refused")},
		&stubIntakeLister{err: errors.New("connection refused")},
		nil,
	)

	rr, body := serveList(h.ListPayments, "/admin/payments")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to list payments", body["error"])

	rr, body = serveList(h.ListIntakes, "/admin/intakes")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to list intakes", body["error"])
}
