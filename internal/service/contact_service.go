package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketing-api/internal/config"
	"marketing-api/internal/events"
	"marketing-api/internal/models"
	"marketing-api/internal/ratelimit"
	"marketing-api/internal/util"
	"marketing-api/internal/verification"
)

const (
	contactSource         = "listhit.io/contact"
	contactMinMessageLen  = 12
	contactThanksMessage  = "Thanks! We received your message and will respond shortly."
	contactRequiredFields = "Name, email, subject, and message are required."
	contactMoreDetail     = "Please include a bit more detail so we can help."

	delegateReceipt      = "receipt_email"
	delegateNotification = "notification_email"
	delegateSupportDesk  = "support_endpoint"
)

type ContactRequest struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Subject             string `json:"subject"`
	Message             string `json:"message"`
	Company             string `json:"company"` // honeypot
	Website             string `json:"website"` // honeypot
	TurnstileToken      string `json:"turnstileToken"`
	VerificationPending bool   `json:"verificationPending"`
}

// pending reports the soft-fail state where the challenge widget never
// produced a token.
func (r ContactRequest) pending() bool {
	return r.VerificationPending && strings.TrimSpace(r.TurnstileToken) == ""
}

type ContactLimiters struct {
	Global    *ratelimit.Limiter
	IP        *ratelimit.Limiter
	PendingIP *ratelimit.Limiter
}

type ContactService struct {
	limiters  ContactLimiters
	verifier  verification.Verifier
	mailer    Mailer
	forwarder Forwarder
	recorder  *events.Recorder
	site      config.SiteConfig
	logger    *zap.Logger
}

// NewContactService wires the contact form. forwarder may be nil when no
// support endpoint is configured.
func NewContactService(
	limiters ContactLimiters,
	verifier verification.Verifier,
	mailer Mailer,
	forwarder Forwarder,
	recorder *events.Recorder,
	site config.SiteConfig,
	logger *zap.Logger,
) *ContactService {
	return &ContactService{
		limiters:  limiters,
		verifier:  verifier,
		mailer:    mailer,
		forwarder: forwarder,
		recorder:  recorder,
		site:      site,
		logger:    logger,
	}
}

// Admit applies the body-independent counters.
func (s *ContactService) Admit(ctx context.Context, meta ClientMeta) error {
	if !admitAll(ctx, check{s.limiters.Global, ratelimit.GlobalKey}) {
		err := rateLimited()
		rejection(s.recorder, events.FormContact, meta, err)
		return err
	}
	return nil
}

func (s *ContactService) Submit(ctx context.Context, meta ClientMeta, req ContactRequest) (*Outcome, error) {
	out, err := s.submit(ctx, meta, req)
	if err != nil {
		rejection(s.recorder, events.FormContact, meta, err)
		return nil, err
	}
	return out, nil
}

func (s *ContactService) submit(ctx context.Context, meta ClientMeta, req ContactRequest) (*Outcome, error) {
	pending := req.pending()

	ipTable := s.limiters.IP
	if pending {
		ipTable = s.limiters.PendingIP
	}
	if !admitAll(ctx, check{ipTable, meta.IP}) {
		return nil, rateLimited()
	}

	if !util.IsBlank(req.Company) || !util.IsBlank(req.Website) {
		return nil, invalidInput(honeypotMessage)
	}
	if util.IsBlank(req.Name) || util.IsBlank(req.Email) || util.IsBlank(req.Subject) || util.IsBlank(req.Message) {
		return nil, invalidInput(contactRequiredFields)
	}
	email := strings.TrimSpace(req.Email)
	if !util.IsValidEmail(email) {
		return nil, invalidInput(invalidEmailMsg)
	}
	if len([]rune(strings.TrimSpace(req.Message))) < contactMinMessageLen {
		return nil, invalidInput(contactMoreDetail)
	}

	if !pending {
		if err := verify(ctx, s.verifier, req.TurnstileToken, meta); err != nil {
			return nil, err
		}
	}

	payload := models.ContactPayload{
		Name:                strings.TrimSpace(req.Name),
		Email:               email,
		Phone:               strings.TrimSpace(req.Phone),
		Subject:             strings.TrimSpace(req.Subject),
		Message:             req.Message,
		Source:              contactSource,
		VerificationPending: pending,
	}

	tasks := []task{
		{name: delegateReceipt, run: func(ctx context.Context) error {
			return s.mailer.SendContactReceipt(ctx, payload.Email, payload.Name, payload.Subject)
		}},
		{name: delegateNotification, run: func(ctx context.Context) error {
			return s.mailer.SendContactNotification(ctx, models.ContactNotification{
				ContactPayload: payload,
				IP:             meta.remoteIP(),
				UserAgent:      meta.UserAgent,
				ReceivedAt:     time.Now().UTC(),
			})
		}},
	}
	if s.forwarder != nil {
		tasks = append(tasks, task{name: delegateSupportDesk, run: func(ctx context.Context) error {
			return s.forwarder.Forward(ctx, payload)
		}})
	}

	failures := settleAll(ctx, tasks...)
	logFailures(s.logger, "Contact delegate failed", failures)

	attrs := map[string]string{
		"verification_pending": fmt.Sprint(pending),
		"delegates":            fmt.Sprint(len(tasks)),
		"failed_delegates":     fmt.Sprint(len(failures)),
	}

	if len(failures) == len(tasks) {
		accepted(ctx, s.recorder, events.FormContact, events.OutcomeFallback, meta, email, attrs)
		return &Outcome{
			Message: fmt.Sprintf("We could not deliver your request automatically. Please email %s so we can respond quickly.", s.site.SupportEmail),
			Mailto:  s.site.MailtoFallback(),
		}, nil
	}

	accepted(ctx, s.recorder, events.FormContact, events.OutcomeAccepted, meta, email, attrs)
	return &Outcome{Message: contactThanksMessage}, nil
}
