package intake

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/onboardpro/internal/apperr"
	"github.com/wolfman30/onboardpro/internal/eventlog"
	"github.com/wolfman30/onboardpro/internal/notify"
	"github.com/wolfman30/onboardpro/internal/payments"
	"github.com/wolfman30/onboardpro/internal/persist"
	"github.com/wolfman30/onboardpro/pkg/logging"
)

const maxSubmissionBytes = 256 << 10

// PaymentLookup resolves the checkout session an intake came from.
type PaymentLookup interface {
	GetBySession(ctx context.Context, sessionID string) (*payments.Record, error)
}

// ConfirmationMailer sends the submission receipt to the coach.
type ConfirmationMailer interface {
	SendIntakeConfirmation(ctx context.Context, c notify.IntakeConfirmation) error
}

// Metrics is what the questionnaire handler records.
type Metrics interface {
	persist.Observer
	ObserveQuestionnaire(outcome string)
}

// Handler serves POST/GET /api/questionnaire.
type Handler struct {
	repo     Repository
	events   eventlog.Appender
	payments PaymentLookup
	mailer   ConfirmationMailer
	metrics  Metrics
	logger   *logging.Logger
}

func NewHandler(repo Repository, events eventlog.Appender, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, events: events, logger: logger}
}

// WithPaymentLookup enables linking an intake to its checkout via sessionId.
func (h *Handler) WithPaymentLookup(p PaymentLookup) *Handler {
	h.payments = p
	return h
}

func (h *Handler) WithMailer(m ConfirmationMailer) *Handler {
	h.mailer = m
	return h
}

func (h *Handler) WithMetrics(m Metrics) *Handler {
	h.metrics = m
	return h
}

type submitResponse struct {
	Success  bool   `json:"success"`
	IntakeID string `json:"intake_id"`
	Message  string `json:"message"`
}

// Submit validates and stores a questionnaire.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
	if err != nil {
		h.observe("invalid")
		apperr.Write(w, h.logger, apperr.Validation("Invalid request body"))
		return
	}
	sub, err := ParseSubmission(body)
	if err != nil {
		h.observe("invalid")
		apperr.Write(w, h.logger, apperr.Validation("Invalid request body"))
		return
	}
	if err := sub.Validate(); err != nil {
		h.observe("invalid")
		apperr.Write(w, h.logger, apperr.Validation(err.Error()))
		return
	}

	rec := sub.ToRecord()
	if sessionID := sub.SessionID(); sessionID != "" && h.payments != nil {
		payment, err := h.payments.GetBySession(ctx, sessionID)
		switch {
		case err == nil:
			rec.CoachPaymentID = &payment.ID
		case errors.Is(err, payments.ErrPaymentNotFound):
			h.logger.Info("intake session has no payment record", "session_id", sessionID)
		default:
			_ = persist.BestEffort.Handle(h.logger, h.metrics, "payments.lookup", "Failed to link payment", err,
				"session_id", sessionID)
		}
	}

	if err := h.repo.Insert(ctx, rec); err != nil {
		h.observe("storage_error")
		apperr.Write(w, h.logger, persist.Required.Handle(h.logger, h.metrics, "intake.insert", "Failed to save questionnaire", err))
		return
	}

	err = h.events.Append(ctx, eventlog.TypeQuestionnaireSubmitted, map[string]any{
		"intake_id":     rec.ID.String(),
		"coach_email":   rec.Email,
		"business_name": rec.BusinessName,
	})
	_ = persist.BestEffort.Handle(h.logger, h.metrics, "eventlog.questionnaire_submitted", "Failed to log event", err,
		"intake_id", rec.ID.String())

	if h.mailer != nil {
		err := h.mailer.SendIntakeConfirmation(ctx, notify.IntakeConfirmation{
			Email:        rec.Email,
			FullName:     rec.FullName,
			BusinessName: rec.BusinessName,
			IntakeID:     rec.ID.String(),
		})
		if err != nil {
			h.logger.Warn("intake confirmation email failed", "intake_id", rec.ID.String(), "error", err)
		}
	}

	h.logger.Info("questionnaire submitted", "intake_id", rec.ID.String(), "business_name", rec.BusinessName)
	h.observe("submitted")
	apperr.WriteJSON(w, http.StatusOK, submitResponse{
		Success:  true,
		IntakeID: rec.ID.String(),
		Message:  "Questionnaire submitted successfully",
	})
}

// Get returns one stored intake.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("id"))
	if raw == "" {
		apperr.Write(w, h.logger, apperr.Validation("Missing intake ID"))
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		apperr.Write(w, h.logger, apperr.NotFound("Questionnaire not found", err))
		return
	}

	rec, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		// Lookup failures read as not found to the caller.
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("intake lookup failed", "intake_id", raw, "error", err)
		}
		apperr.Write(w, h.logger, apperr.NotFound("Questionnaire not found", err))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (h *Handler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveQuestionnaire(outcome)
	}
}
