package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
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
	// ResendGenericMessage answers every resend outcome except rate limiting,
	// so the response never reveals whether an account exists.
	ResendGenericMessage = "If an account exists for that email, we’ll send a verification email shortly."
	// ResendRateLimitedMessage is sent in the message field with a 429.
	ResendRateLimitedMessage = "Too many requests. Please try again shortly."

	resendSchema = "marketing"
	resendTable  = "verification_email_resends"
)

var errUserNotFound = errors.New("user not found")

type ResendRequest struct {
	Email          string `json:"email"`
	TurnstileToken string `json:"turnstileToken"`
}

type ResendLimiters struct {
	Global *ratelimit.Limiter
	IP     *ratelimit.Limiter
	Email  *ratelimit.Limiter
}

type ResendService struct {
	limiters  ResendLimiters
	verifier  verification.Verifier
	datastore Datastore
	mailer    Mailer
	recorder  *events.Recorder
	site      config.SiteConfig
	logger    *zap.Logger
}

func NewResendService(
	limiters ResendLimiters,
	verifier verification.Verifier,
	datastore Datastore,
	mailer Mailer,
	recorder *events.Recorder,
	site config.SiteConfig,
	logger *zap.Logger,
) *ResendService {
	return &ResendService{
		limiters:  limiters,
		verifier:  verifier,
		datastore: datastore,
		mailer:    mailer,
		recorder:  recorder,
		site:      site,
		logger:    logger,
	}
}

func resendRateLimited() error {
	return &FormError{Kind: ErrRateLimited, Message: ResendRateLimitedMessage}
}

// Generic is the enumeration-safe answer.
func (s *ResendService) Generic() *Outcome {
	return &Outcome{Message: ResendGenericMessage}
}

func (s *ResendService) Admit(ctx context.Context, meta ClientMeta) error {
	if !admitAll(ctx,
		check{s.limiters.Global, ratelimit.GlobalKey},
		check{s.limiters.IP, meta.IP},
	) {
		err := resendRateLimited()
		rejection(s.recorder, events.FormResend, meta, err)
		return err
	}
	return nil
}

// Submit only ever fails with ErrRateLimited. Every other path, including
// unknown accounts and upstream failures, returns Generic().
func (s *ResendService) Submit(ctx context.Context, meta ClientMeta, req ResendRequest) (*Outcome, error) {
	email := util.NormalizeEmail(req.Email)
	if email != "" && !admitAll(ctx, check{s.limiters.Email, email}) {
		err := resendRateLimited()
		rejection(s.recorder, events.FormResend, meta, err)
		return nil, err
	}

	identifier := email
	if identifier == "" {
		identifier = "unknown"
	}

	if !util.IsValidEmail(email) {
		s.logAttempt(ctx, identifier, meta, errors.New("invalid email"))
		rejection(s.recorder, events.FormResend, meta, invalidInput(invalidEmailMsg))
		return s.Generic(), nil
	}

	if strings.TrimSpace(req.TurnstileToken) == "" {
		s.logAttempt(ctx, identifier, meta, errors.New("missing turnstile token"))
		rejection(s.recorder, events.FormResend, meta, verificationFailed(verification.FailureMessage))
		return s.Generic(), nil
	}
	if err := verify(ctx, s.verifier, req.TurnstileToken, meta); err != nil {
		s.logAttempt(ctx, identifier, meta, err)
		rejection(s.recorder, events.FormResend, meta, err)
		return s.Generic(), nil
	}

	if s.datastore == nil {
		s.logger.Error("Verification resend requested but the datastore is not configured")
		rejection(s.recorder, events.FormResend, meta, unavailable(""))
		return s.Generic(), nil
	}

	dctx, cancel := detach(ctx)
	defer cancel()

	err := s.resend(dctx, email)
	if err != nil && !errors.Is(err, errUserNotFound) {
		s.logger.Warn("Verification resend failed", zap.Error(err))
	}
	s.logAttempt(dctx, email, meta, err)

	outcome := events.OutcomeAccepted
	if err != nil {
		outcome = events.OutcomeFailed
	}
	accepted(ctx, s.recorder, events.FormResend, outcome, meta, "", nil)
	return s.Generic(), nil
}

func (s *ResendService) resend(ctx context.Context, email string) error {
	exists, err := s.datastore.UserExists(ctx, email)
	if err != nil {
		return err
	}
	if !exists {
		return errUserNotFound
	}

	redirectTo := s.site.SiteURL + "/signup/verify"

	link, err := s.datastore.GenerateLink(ctx, client.GenerateLinkParams{
		Type:       client.LinkSignup,
		Email:      email,
		Password:   uuid.NewString(),
		RedirectTo: redirectTo,
	})
	if err != nil {
		s.logger.Info("Signup link unavailable, falling back to magic link", zap.Error(err))
		fallback, fallbackErr := s.datastore.GenerateLink(ctx, client.GenerateLinkParams{
			Type:       client.LinkMagicLink,
			Email:      email,
			RedirectTo: redirectTo,
		})
		if fallbackErr != nil {
			return errors.Join(err, fallbackErr)
		}
		link = fallback
	}

	return s.mailer.SendVerification(ctx, email, "", link)
}

// logAttempt writes the audit row. Failures are logged only.
func (s *ResendService) logAttempt(ctx context.Context, email string, meta ClientMeta, cause error) {
	if s.datastore == nil {
		return
	}

	attempt := models.ResendAttempt{Email: email, IP: meta.IP, Success: cause == nil}
	if cause != nil {
		msg := cause.Error()
		attempt.ErrorMessage = &msg
	}

	if err := s.datastore.Insert(ctx, resendSchema, resendTable, attempt); err != nil {
		s.logger.Error("Failed to log verification resend attempt", zap.Error(err))
	}
}
