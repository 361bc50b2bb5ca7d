package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/onboardpro/pkg/logging"
)

const (
	CategoryWelcome            = "welcome"
	CategoryIntakeConfirmation = "intake_confirmation"
)

// Welcome describes the email sent once a checkout is paid.
type Welcome struct {
	Email         string
	Name          string
	SessionID     string
	AmountCents   int64
	Currency      string
	NextStepsLink string
}

// IntakeConfirmation describes the email sent after the questionnaire is saved.
type IntakeConfirmation struct {
	Email        string
	FullName     string
	BusinessName string
	IntakeID     string
}

// Mailer renders the funnel's transactional emails and hands them to an EmailSender.
type Mailer struct {
	sender  EmailSender
	baseURL string
	logger  *logging.Logger
}

func NewMailer(sender EmailSender, baseURL string, logger *logging.Logger) *Mailer {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	return &Mailer{sender: sender, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// SendWelcome tells a new client that payment went through and where to go next.
func (m *Mailer) SendWelcome(ctx context.Context, w Welcome) error {
	if m == nil {
		return nil
	}
	if strings.TrimSpace(w.Email) == "" {
		return fmt.Errorf("notify: welcome email requires a recipient")
	}
	link := w.NextStepsLink
	if link == "" {
		link = m.baseURL + "/next-steps?session_id=" + w.SessionID
	}
	greeting := firstName(w.Name)
	amount := FormatAmount(w.AmountCents, w.Currency)

	body := fmt.Sprintf(`Hi %s,

Thanks for joining OnboardPro. Your payment of %s was received.

Next step: fill in the onboarding questionnaire so your VA team can start setting up your client onboarding.
%s

Talk soon,
The OnboardPro team`, greeting, amount, link)

	htmlBody := fmt.Sprintf(`<p>Hi %s,</p>
<p>Thanks for joining OnboardPro. Your payment of <strong>%s</strong> was received.</p>
<p>Next step: fill in the onboarding questionnaire so your VA team can start setting up your client onboarding.</p>
<p><a href="%s">Complete the questionnaire</a></p>
<p>Talk soon,<br>The OnboardPro team</p>`, html.EscapeString(greeting), html.EscapeString(amount), html.EscapeString(link))

	return m.sender.Send(ctx, EmailMessage{
		To:       w.Email,
		ToName:   w.Name,
		Subject:  "Welcome to OnboardPro: your next steps",
		Body:     body,
		HTML:     htmlBody,
		Category: CategoryWelcome,
	})
}

// SendIntakeConfirmation acknowledges a submitted questionnaire.
func (m *Mailer) SendIntakeConfirmation(ctx context.Context, c IntakeConfirmation) error {
	if m == nil {
		return nil
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("notify: intake confirmation requires a recipient")
	}
	greeting := firstName(c.FullName)

	body := fmt.Sprintf(`Hi %s,

We received the onboarding questionnaire for %s (reference %s).
Your VA team will review it and reach out within two business days.

The OnboardPro team`, greeting, c.BusinessName, c.IntakeID)

	htmlBody := fmt.Sprintf(`<p>Hi %s,</p>
<p>We received the onboarding questionnaire for <strong>%s</strong> (reference <code>%s</code>).</p>
<p>Your VA team will review it and reach out within two business days.</p>
<p>The OnboardPro team</p>`, html.EscapeString(greeting), html.EscapeString(c.BusinessName), html.EscapeString(c.IntakeID))

	return m.sender.Send(ctx, EmailMessage{
		To:       c.Email,
		ToName:   c.FullName,
		Subject:  "We received your onboarding questionnaire",
		Body:     body,
		HTML:     htmlBody,
		Category: CategoryIntakeConfirmation,
	})
}

// FormatAmount renders minor units as a display string, e.g. 49700 usd -> "$497.00".
func FormatAmount(cents int64, currency string) string {
	major := fmt.Sprintf("%d.%02d", cents/100, abs(cents%100))
	switch strings.ToLower(currency) {
	case "usd", "":
		return "$" + major
	default:
		return major + " " + strings.ToUpper(currency)
	}
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
