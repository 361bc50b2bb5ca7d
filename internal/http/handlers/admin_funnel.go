package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/wolfman30/onboardpro/internal/apperr"
	"github.com/wolfman30/onboardpro/internal/intake"
	"github.com/wolfman30/onboardpro/internal/payments"
	"github.com/wolfman30/onboardpro/pkg/logging"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// PaymentLister lists checkout records.
type PaymentLister interface {
	List(ctx context.Context, filter payments.ListFilter) ([]*payments.Record, error)
}

// IntakeLister lists questionnaire records.
type IntakeLister interface {
	List(ctx context.Context, filter intake.ListFilter) ([]*intake.Record, error)
}

// AdminFunnelHandler serves the read-only admin views of the funnel tables.
type AdminFunnelHandler struct {
	payments PaymentLister
	intakes  IntakeLister
	logger   *logging.Logger
}

// NewAdminFunnelHandler creates a new admin funnel handler.
func NewAdminFunnelHandler(p PaymentLister, i IntakeLister, logger *logging.Logger) *AdminFunnelHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminFunnelHandler{payments: p, intakes: i, logger: logger}
}

// ListResponse is a page of records.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Count  int `json:"count"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ListPayments returns checkout records newest first.
// GET /admin/payments?status=&limit=&offset=
func (h *AdminFunnelHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePage(w, r)
	if !ok {
		return
	}
	status := payments.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		apperr.Write(w, h.logger, apperr.Validation("Invalid status filter"))
		return
	}

	records, err := h.payments.List(r.Context(), payments.ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		apperr.Write(w, h.logger, apperr.Internal("Failed to list payments", err))
		return
	}
	if records == nil {
		records = []*payments.Record{}
	}
	apperr.WriteJSON(w, http.StatusOK, ListResponse[*payments.Record]{
		Items: records, Count: len(records), Offset: offset, Limit: limit,
	})
}

// ListIntakes returns questionnaire records newest first.
// GET /admin/intakes?status=&limit=&offset=
func (h *AdminFunnelHandler) ListIntakes(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePage(w, r)
	if !ok {
		return
	}
	status := intake.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		apperr.Write(w, h.logger, apperr.Validation("Invalid status filter"))
		return
	}

	records, err := h.intakes.List(r.Context(), intake.ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		apperr.Write(w, h.logger, apperr.Internal("Failed to list intakes", err))
		return
	}
	if records == nil {
		records = []*intake.Record{}
	}
	apperr.WriteJSON(w, http.StatusOK, ListResponse[*intake.Record]{
		Items: records, Count: len(records), Offset: offset, Limit: limit,
	})
}

func parsePage(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			apperr.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
			return 0, 0, false
		}
		limit = min(v, maxPageLimit)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			apperr.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid offset"})
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}
