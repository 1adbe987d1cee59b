package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"estatecore/pkg/domain"
)

// ErrNoAddress is returned when the partner has no e-mail on file.
var ErrNoAddress = errors.New("partner has no email address")

// EmailNotifier sends notifications through SendGrid.
type EmailNotifier struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewEmailNotifier builds a notifier authenticated with apiKey.
func NewEmailNotifier(apiKey, fromName, fromAddress string) *EmailNotifier {
	return &EmailNotifier{client: sendgrid.NewSendClient(apiKey), from: mail.NewEmail(fromName, fromAddress)}
}

// WithEndpoint points the client at another send URL.
func (e *EmailNotifier) WithEndpoint(url string) *EmailNotifier {
	e.client.BaseURL = url
	return e
}

func (e *EmailNotifier) Notify(ctx context.Context, partner domain.Partner, n domain.Notification) error {
	if strings.TrimSpace(partner.Email) == "" {
		return fmt.Errorf("notify %s: %w", partner.ID, ErrNoAddress)
	}
	to := mail.NewEmail(partner.Name, partner.Email)
	plain := n.Body
	htmlBody := "<p>" + html.EscapeString(n.Body) + "</p>"
	msg := mail.NewSingleEmail(e.from, n.Title, to, plain, htmlBody)
	resp, err := e.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("send email to %s: %w", partner.Email, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send email to %s: sendgrid returned %d: %s", partner.Email, resp.StatusCode, resp.Body)
	}
	return nil
}
