package service

import (
	"context"
	"errors"
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
	requestAccessSource   = "listhit.io/request-access"
	leadsTable            = "leads"
	requestAccessRequired = "Full name, email, company, and role are required."
	requestAccessStored   = "Thanks — we received your request."

	delegateLead         = "lead_insert"
	delegateConfirmation = "confirmation_email"
)

var errDatastoreMissing = errors.New("datastore is not configured")

type RequestAccessRequest struct {
	FullName            string `json:"fullName"`
	Email               string `json:"email"`
	Company             string `json:"company"`
	Role                string `json:"role"`
	Message             string `json:"message"`
	AgreeToTerms        bool   `json:"agreeToTerms"`
	MarketingOptIn      bool   `json:"marketingOptIn"`
	Website             string `json:"website"` // honeypot
	TurnstileToken      string `json:"turnstileToken"`
	VerificationPending bool   `json:"verificationPending"`
}

func (r RequestAccessRequest) pending() bool {
	return r.VerificationPending && strings.TrimSpace(r.TurnstileToken) == ""
}

type RequestAccessLimiters struct {
	Global    *ratelimit.Limiter
	IP        *ratelimit.Limiter
	PendingIP *ratelimit.Limiter
}

type RequestAccessService struct {
	limiters  RequestAccessLimiters
	verifier  verification.Verifier
	datastore Datastore
	mailer    Mailer
	recorder  *events.Recorder
	site      config.SiteConfig
	logger    *zap.Logger
}

// NewRequestAccessService wires the request-access form. datastore may be nil.
func NewRequestAccessService(
	limiters RequestAccessLimiters,
	verifier verification.Verifier,
	datastore Datastore,
	mailer Mailer,
	recorder *events.Recorder,
	site config.SiteConfig,
	logger *zap.Logger,
) *RequestAccessService {
	return &RequestAccessService{
		limiters:  limiters,
		verifier:  verifier,
		datastore: datastore,
		mailer:    mailer,
		recorder:  recorder,
		site:      site,
		logger:    logger,
	}
}

func (s *RequestAccessService) Admit(ctx context.Context, meta ClientMeta) error {
	if !admitAll(ctx,
		check{s.limiters.Global, ratelimit.GlobalKey},
		check{s.limiters.IP, meta.IP},
	) {
		err := rateLimited()
		rejection(s.recorder, events.FormRequestAccess, meta, err)
		return err
	}
	return nil
}

func (s *RequestAccessService) Submit(ctx context.Context, meta ClientMeta, req RequestAccessRequest) (*Outcome, error) {
	out, err := s.submit(ctx, meta, req)
	if err != nil {
		rejection(s.recorder, events.FormRequestAccess, meta, err)
		return nil, err
	}
	return out, nil
}

func (s *RequestAccessService) submit(ctx context.Context, meta ClientMeta, req RequestAccessRequest) (*Outcome, error) {
	pending := req.pending()
	if pending && !admitAll(ctx, check{s.limiters.PendingIP, meta.IP}) {
		return nil, rateLimited()
	}

	if !util.IsBlank(req.Website) {
		return nil, invalidInput(honeypotMessage)
	}
	if util.IsBlank(req.FullName) || util.IsBlank(req.Email) || util.IsBlank(req.Company) || util.IsBlank(req.Role) {
		return nil, invalidInput(requestAccessRequired)
	}
	if !req.AgreeToTerms {
		return nil, invalidInput(termsRequiredMsg)
	}
	email := strings.TrimSpace(req.Email)
	if !util.IsValidEmail(email) {
		return nil, invalidInput(invalidEmailMsg)
	}

	if !pending {
		if err := verify(ctx, s.verifier, req.TurnstileToken, meta); err != nil {
			return nil, err
		}
	}

	lead := models.Lead{
		FullName:       strings.TrimSpace(req.FullName),
		Email:          email,
		Company:        strings.TrimSpace(req.Company),
		Role:           strings.TrimSpace(req.Role),
		Message:        req.Message,
		AgreeToTerms:   req.AgreeToTerms,
		MarketingOptIn: req.MarketingOptIn,
		IP:             meta.IP,
		UserAgent:      meta.UserAgent,
		Source:         requestAccessSource,
		CreatedAt:      time.Now().UTC(),
	}
	if lead.UserAgent == "" {
		lead.UserAgent = "unknown"
	}

	failures := settleAll(ctx,
		task{name: delegateLead, run: func(ctx context.Context) error {
			if s.datastore == nil {
				return errDatastoreMissing
			}
			return s.datastore.Insert(ctx, "", leadsTable, lead)
		}},
		task{name: delegateConfirmation, run: func(ctx context.Context) error {
			return s.mailer.SendRequestAccessConfirmation(ctx, lead.Email, lead.FullName, lead.Company)
		}},
		task{name: delegateNotification, run: func(ctx context.Context) error {
			return s.mailer.SendRequestAccessNotification(ctx, lead)
		}},
	)
	logFailures(s.logger, "Request access delegate failed", failures)

	attrs := map[string]string{
		"verification_pending": fmt.Sprint(pending),
		"lead_stored":          fmt.Sprint(!failed(failures, delegateLead)),
		"failed_delegates":     fmt.Sprint(len(failures)),
	}

	switch {
	case !failed(failures, delegateLead):
		accepted(ctx, s.recorder, events.FormRequestAccess, events.OutcomeAccepted, meta, email, attrs)
		return &Outcome{Message: requestAccessStored}, nil
	case !failed(failures, delegateNotification):
		accepted(ctx, s.recorder, events.FormRequestAccess, events.OutcomeAccepted, meta, email, attrs)
		return &Outcome{
			Message: fmt.Sprintf("We received your request. If you don’t get a confirmation within one business day, please email %s so we can assist.", s.site.SupportEmail),
		}, nil
	default:
		accepted(ctx, s.recorder, events.FormRequestAccess, events.OutcomeFallback, meta, email, attrs)
		return &Outcome{
			Message: fmt.Sprintf("We received your request. We could not capture it automatically, so please email %s and we’ll follow up right away.", s.site.SupportEmail),
			Mailto:  s.site.MailtoFallback(),
		}, nil
	}
}
