package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketing-api/internal/client"
	"marketing-api/internal/config"
	"marketing-api/internal/events"
	"marketing-api/internal/models"
	"marketing-api/internal/ratelimit"
	"marketing-api/internal/util"
	"marketing-api/internal/verification"
)

const (
	signupSource         = "listhit.io"
	waitlistTable        = "waitlist_requests"
	signupMinPasswordLen = 8
	signupRequired       = "Full name, email, and password are required."
	signupPasswordShort  = "Password must be at least 8 characters long."
	signupCreateFailed   = "Could not create your account. Please try again."
	signupCheckEmail     = "Check your email to verify your account."
	signupEmailPending   = "Your account was created. We’ll send your verification email shortly."

	EmailDeliverySent    = "sent"
	EmailDeliveryPending = "pending"

	delegateWaitlist     = "waitlist_insert"
	delegateVerification = "verification_email"
)

type SignupRequest struct {
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Company        string `json:"company"`
	AcceptedTerms  bool   `json:"acceptedTerms"`
	Website        string `json:"website"` // honeypot
	TurnstileToken string `json:"turnstileToken"`
}

type SignupLimiters struct {
	Global *ratelimit.Limiter
	IP     *ratelimit.Limiter
	Email  *ratelimit.Limiter
}

type SignupService struct {
	limiters  SignupLimiters
	verifier  verification.Verifier
	datastore Datastore
	mailer    Mailer
	recorder  *events.Recorder
	site      config.SiteConfig
	logger    *zap.Logger
}

// NewSignupService wires the signup form. datastore may be nil, in which
// case every valid submission is answered with ErrUnavailable.
func NewSignupService(
	limiters SignupLimiters,
	verifier verification.Verifier,
	datastore Datastore,
	mailer Mailer,
	recorder *events.Recorder,
	site config.SiteConfig,
	logger *zap.Logger,
) *SignupService {
	return &SignupService{
		limiters:  limiters,
		verifier:  verifier,
		datastore: datastore,
		mailer:    mailer,
		recorder:  recorder,
		site:      site,
		logger:    logger,
	}
}

func (s *SignupService) Admit(ctx context.Context, meta ClientMeta) error {
	if !admitAll(ctx,
		check{s.limiters.Global, ratelimit.GlobalKey},
		check{s.limiters.IP, meta.IP},
	) {
		err := rateLimited()
		rejection(s.recorder, events.FormSignup, meta, err)
		return err
	}
	return nil
}

func (s *SignupService) Submit(ctx context.Context, meta ClientMeta, req SignupRequest) (*Outcome, error) {
	out, err := s.submit(ctx, meta, req)
	if err != nil {
		rejection(s.recorder, events.FormSignup, meta, err)
		return nil, err
	}
	return out, nil
}

func (s *SignupService) submit(ctx context.Context, meta ClientMeta, req SignupRequest) (*Outcome, error) {
	if key := util.NormalizeEmail(req.Email); key != "" {
		if !admitAll(ctx, check{s.limiters.Email, key}) {
			return nil, rateLimited()
		}
	}

	if !util.IsBlank(req.Website) {
		return nil, invalidInput(honeypotMessage)
	}
	if util.IsBlank(req.FullName) || util.IsBlank(req.Email) || req.Password == "" {
		return nil, invalidInput(signupRequired)
	}
	if !req.AcceptedTerms {
		return nil, invalidInput(termsRequiredMsg)
	}
	email := strings.TrimSpace(req.Email)
	if !util.IsValidEmail(email) {
		return nil, invalidInput(invalidEmailMsg)
	}
	if len(req.Password) < signupMinPasswordLen {
		return nil, invalidInput(signupPasswordShort)
	}

	if err := verify(ctx, s.verifier, req.TurnstileToken, meta); err != nil {
		return nil, err
	}

	if s.datastore == nil {
		s.logger.Error("Signup requested but the datastore is not configured")
		return nil, unavailable(fmt.Sprintf("Signup is unavailable. Please contact %s so we can assist you directly.", s.site.SupportEmail))
	}

	fullName := strings.TrimSpace(req.FullName)
	company := optional(req.Company)

	ctx, cancel := detach(ctx)
	defer cancel()

	link, err := s.datastore.GenerateLink(ctx, client.GenerateLinkParams{
		Type:     client.LinkSignup,
		Email:    email,
		Password: req.Password,
		Data: map[string]interface{}{
			"full_name":     fullName,
			"company":       company,
			"signup_source": signupSource,
		},
		RedirectTo: s.site.AppURL,
	})
	if err != nil {
		s.logger.Error("Signup link generation failed", zap.Error(err))
		return nil, unavailable(signupCreateFailed)
	}

	failures := settleAll(ctx,
		task{name: delegateWaitlist, run: func(ctx context.Context) error {
			return s.datastore.Insert(ctx, "", waitlistTable, models.WaitlistRequest{
				Email:         email,
				FullName:      fullName,
				Company:       company,
				Source:        "signup",
				AcceptedTerms: true,
				CreatedAt:     time.Now().UTC(),
			})
		}},
		task{name: delegateVerification, run: func(ctx context.Context) error {
			return s.mailer.SendVerification(ctx, email, fullName, link)
		}},
	)
	logFailures(s.logger, "Signup delegate failed", failures)

	out := &Outcome{Message: signupCheckEmail, EmailDelivery: EmailDeliverySent}
	if failed(failures, delegateVerification) {
		out = &Outcome{Message: signupEmailPending, EmailDelivery: EmailDeliveryPending}
	}

	accepted(ctx, s.recorder, events.FormSignup, events.OutcomeAccepted, meta, email, map[string]string{
		"email_delivery":   out.EmailDelivery,
		"waitlist_stored":  fmt.Sprint(!failed(failures, delegateWaitlist)),
		"failed_delegates": fmt.Sprint(len(failures)),
	})
	return out, nil
}

// optional turns a blank string into nil so the column is stored as null.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
