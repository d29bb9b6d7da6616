package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"marketing-api/internal/client"
	"marketing-api/internal/config"
	"marketing-api/internal/events"
	"marketing-api/internal/ratelimit"
	"marketing-api/internal/util"
)

const (
	checkoutEmailRequired = "Email is required."
	checkoutFailed        = "Unable to create checkout session."
)

type CheckoutRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CheckoutService struct {
	ipLimiter *ratelimit.Limiter
	payments  CheckoutCreator
	recorder  *events.Recorder
	site      config.SiteConfig
	logger    *zap.Logger
}

// NewCheckoutService wires checkout-session creation. payments may be nil.
func NewCheckoutService(
	ipLimiter *ratelimit.Limiter,
	payments CheckoutCreator,
	recorder *events.Recorder,
	site config.SiteConfig,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		ipLimiter: ipLimiter,
		payments:  payments,
		recorder:  recorder,
		site:      site,
		logger:    logger,
	}
}

func (s *CheckoutService) Admit(ctx context.Context, meta ClientMeta) error {
	if !admitAll(ctx, check{s.ipLimiter, meta.IP}) {
		err := rateLimited()
		rejection(s.recorder, events.FormCheckout, meta, err)
		return err
	}
	return nil
}

func (s *CheckoutService) Submit(ctx context.Context, meta ClientMeta, req CheckoutRequest) (*Outcome, error) {
	out, err := s.submit(ctx, meta, req)
	if err != nil {
		rejection(s.recorder, events.FormCheckout, meta, err)
		return nil, err
	}
	accepted(ctx, s.recorder, events.FormCheckout, events.OutcomeAccepted, meta, strings.TrimSpace(req.Email), nil)
	return out, nil
}

func (s *CheckoutService) submit(ctx context.Context, meta ClientMeta, req CheckoutRequest) (*Outcome, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, invalidInput(checkoutEmailRequired)
	}
	if !util.IsValidEmail(email) {
		return nil, invalidInput(invalidEmailMsg)
	}

	if s.payments == nil {
		s.logger.Error("Checkout requested but Stripe is not configured")
		return nil, unavailable(fmt.Sprintf("Checkout is unavailable right now. Please contact %s.", s.site.SupportEmail))
	}

	secret, err := s.payments.CreateEmbeddedCheckout(ctx, client.CheckoutRequest{
		Email:    email,
		FullName: strings.TrimSpace(req.Name),
	})
	if err != nil {
		s.logger.Error("Failed to create checkout session", zap.Error(err))
		return nil, unavailable(checkoutFailed)
	}
	return &Outcome{ClientSecret: secret}, nil
}
