// Package mailer renders and sends the transactional emails behind the
// marketing forms.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketing-api/internal/models"
)

// ErrNotConfigured is returned by every send when no provider is wired.
var ErrNotConfigured = errors.New("email delivery is not configured")

// Sender delivers a rendered email and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, email models.Email) (string, error)
}

var funcs = map[string]interface{}{
	"yesNo": func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	},
	"timestamp": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}

// Mailer throttles sends to the provider's per-second quota.
type Mailer struct {
	sender       Sender
	limiter      *rate.Limiter
	supportEmail string
	logger       *zap.Logger
}

// New builds a Mailer. A nil sender yields a Mailer whose sends all fail
// with ErrNotConfigured.
func New(sender Sender, maxPerSecond float64, supportEmail string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 1
	if maxPerSecond > 0 {
		limit = rate.Limit(maxPerSecond)
		burst = int(maxPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Mailer{
		sender:       sender,
		limiter:      rate.NewLimiter(limit, burst),
		supportEmail: supportEmail,
		logger:       logger,
	}
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.sender != nil
}

func (m *Mailer) SendVerification(ctx context.Context, toEmail, toName, actionLink string) error {
	data := struct{ Name, ActionLink string }{Name: greetingName(toName), ActionLink: actionLink}
	return m.send(ctx, "verification", verificationTpl, data, models.Email{
		To:      []string{toEmail},
		Subject: "Verify your ListHit email",
	})
}

func (m *Mailer) SendRequestAccessConfirmation(ctx context.Context, toEmail, toName, company string) error {
	data := struct{ Name, Company string }{Name: greetingName(toName), Company: strings.TrimSpace(company)}
	return m.send(ctx, "request_access_confirmation", requestAccessConfirmationTpl, data, models.Email{
		To:      []string{toEmail},
		Subject: "We received your ListHit request",
	})
}

func (m *Mailer) SendRequestAccessNotification(ctx context.Context, lead models.Lead) error {
	return m.send(ctx, "request_access_notification", requestAccessNotificationTpl, lead, models.Email{
		To:      []string{m.supportEmail},
		ReplyTo: []string{lead.Email},
		Subject: "New request access submission",
	})
}

func (m *Mailer) SendContactReceipt(ctx context.Context, toEmail, toName, subject string) error {
	data := struct{ Name, Subject string }{Name: greetingName(toName), Subject: subject}
	return m.send(ctx, "contact_receipt", contactReceiptTpl, data, models.Email{
		To:      []string{toEmail},
		Subject: "We received your message",
	})
}

func (m *Mailer) SendContactNotification(ctx context.Context, n models.ContactNotification) error {
	return m.send(ctx, "contact_notification", contactNotificationTpl, n, models.Email{
		To:      []string{m.supportEmail},
		ReplyTo: []string{n.Email},
		Subject: "New contact form submission: " + n.Subject,
	})
}

func (m *Mailer) send(ctx context.Context, kind string, tpl pair, data interface{}, email models.Email) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}

	var html, text bytes.Buffer
	if err := tpl.html.Execute(&html, data); err != nil {
		return fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return fmt.Errorf("render %s text: %w", kind, err)
	}
	email.HTML = html.String()
	email.Text = text.String()

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}

	id, err := m.sender.Send(ctx, email)
	if err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}

	m.logger.Info("Email sent", zap.String("kind", kind), zap.String("message_id", id))
	return nil
}

func greetingName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "there"
}
