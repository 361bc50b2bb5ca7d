package intake

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an intake.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusProcessed Status = "processed"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusSubmitted || s == StatusProcessed
}

// Record is one questionnaire submission (table coach_intake).
type Record struct {
	ID             uuid.UUID  `json:"id"`
	CoachPaymentID *uuid.UUID `json:"coach_payment_id"`

	FullName     string `json:"full_name"`
	BusinessName string `json:"business_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`

	ProgramLink    string  `json:"program_link"`
	IntakeFormURL  *string `json:"intake_form_url"`
	NeedIntakeForm bool    `json:"need_intake_form"`
	FAQDocument    string  `json:"faq_document"`
	CustomResource *string `json:"custom_resource"`

	EmailTone        string  `json:"email_tone"`
	UpcomingEvents   *string `json:"upcoming_events"`
	EmailSignature   string  `json:"email_signature"`
	QuestionHandling string  `json:"question_handling"`
	OtherHandling    *string `json:"other_handling"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// requiredFields are checked in this order; the first missing one is reported.
var requiredFields = []string{
	"fullName",
	"businessName",
	"email",
	"phone",
	"programLink",
	"needIntakeForm",
	"faqDocument",
	"emailTone",
	"emailSignature",
	"questionHandling",
}

var allowedValues = map[string][]string{
	"emailTone":        {"professional", "friendly", "motivational"},
	"questionHandling": {"forward", "flag", "other"},
}

// Submission is the raw questionnaire body keyed by its external camelCase names.
type Submission map[string]any

// ParseSubmission decodes a JSON object body.
func ParseSubmission(data []byte) (Submission, error) {
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil || sub == nil {
		return nil, ErrInvalidBody
	}
	return sub, nil
}

// FieldError names the offending field.
type FieldError struct {
	Field   string
	Invalid bool
}

func (e *FieldError) Error() string {
	if e.Invalid {
		return "Invalid value for field: " + e.Field
	}
	return "Missing required field: " + e.Field
}

var optionalFields = []string{
	"intakeFormLink",
	"customResource",
	"upcomingEvents",
	"otherHandling",
}

// Validate reports the first missing required field, then any text field
// holding a value that is not a string or number, then any enum field
// holding an undeclared value.
func (s Submission) Validate() error {
	for _, field := range requiredFields {
		if !present(s[field]) {
			return &FieldError{Field: field}
		}
	}
	for _, field := range requiredFields {
		if field != "needIntakeForm" && !scalar(s[field]) {
			return &FieldError{Field: field, Invalid: true}
		}
	}
	for _, field := range optionalFields {
		if v := s[field]; !falsy(v) && !scalar(v) {
			return &FieldError{Field: field, Invalid: true}
		}
	}
	for _, field := range []string{"emailTone", "questionHandling"} {
		value := s.str(field)
		if !contains(allowedValues[field], value) {
			return &FieldError{Field: field, Invalid: true}
		}
	}
	return nil
}

// SessionID is the checkout session carried over from the next-steps page, if any.
func (s Submission) SessionID() string {
	return s.str("sessionId")
}

// ToRecord maps a validated submission onto a new submitted record.
func (s Submission) ToRecord() *Record {
	return &Record{
		ID:               uuid.New(),
		FullName:         s.str("fullName"),
		BusinessName:     s.str("businessName"),
		Email:            s.str("email"),
		Phone:            s.str("phone"),
		ProgramLink:      s.str("programLink"),
		IntakeFormURL:    s.optional("intakeFormLink"),
		NeedIntakeForm:   s.flag("needIntakeForm"),
		FAQDocument:      s.str("faqDocument"),
		CustomResource:   s.optional("customResource"),
		EmailTone:        s.str("emailTone"),
		UpcomingEvents:   s.optional("upcomingEvents"),
		EmailSignature:   s.str("emailSignature"),
		QuestionHandling: s.str("questionHandling"),
		OtherHandling:    s.optional("otherHandling"),
		Status:           StatusSubmitted,
	}
}

func (s Submission) str(key string) string {
	switch v := s[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// optional returns nil for falsy or non-text values so they are stored as NULL.
func (s Submission) optional(key string) *string {
	if v := s[key]; falsy(v) || !scalar(v) {
		return nil
	}
	v := s.str(key)
	return &v
}

// flag accepts "yes" or a JSON true.
func (s Submission) flag(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "yes")
	default:
		return false
	}
}

// present treats null, blank strings and numeric zero as missing. A literal
// false is a real answer and counts as present.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return true
	case float64:
		return t != 0
	default:
		return true
	}
}

// falsy matches null, false, zero and the blank string.
func falsy(v any) bool {
	if b, ok := v.(bool); ok {
		return !b
	}
	return !present(v)
}

func scalar(v any) bool {
	switch v.(type) {
	case string, float64:
		return true
	default:
		return false
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
