package service

import (
	"go.uber.org/zap"

	"marketing-api/internal/config"
	"marketing-api/internal/events"
	"marketing-api/internal/ratelimit"
	"marketing-api/internal/verification"
)

// Collaborators are the outbound integrations. Any of Datastore, Forwarder
// and Payments may be nil when the integration is not configured.
type Collaborators struct {
	Verifier  verification.Verifier
	Datastore Datastore
	Mailer    Mailer
	Forwarder Forwarder
	Payments  CheckoutCreator
	Recorder  *events.Recorder
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg    *config.Config
	store  ratelimit.Store
	deps   Collaborators
	logger *zap.Logger

	contactService       *ContactService
	requestAccessService *RequestAccessService
	signupService        *SignupService
	resendService        *ResendService
	checkoutService      *CheckoutService
}

func NewServiceFactory(cfg *config.Config, store ratelimit.Store, deps Collaborators, logger *zap.Logger) *ServiceFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceFactory{
		cfg:    cfg,
		store:  store,
		deps:   deps,
		logger: logger,
	}
}

func (f *ServiceFactory) limiter(name string, rule config.Rule) *ratelimit.Limiter {
	return ratelimit.NewLimiter(name, rule, f.store, f.logger.Named("ratelimit"))
}

// ContactService returns the contact service instance (singleton)
func (f *ServiceFactory) ContactService() *ContactService {
	if f.contactService == nil {
		rl := f.cfg.RateLimit
		f.contactService = NewContactService(
			ContactLimiters{
				Global:    f.limiter("contact_global", rl.ContactGlobal),
				IP:        f.limiter("contact_ip", rl.ContactIP),
				PendingIP: f.limiter("contact_pending_ip", rl.ContactPendingIP),
			},
			f.deps.Verifier,
			f.deps.Mailer,
			f.deps.Forwarder,
			f.deps.Recorder,
			f.cfg.Site,
			f.logger.Named("contact"),
		)
	}
	return f.contactService
}

func (f *ServiceFactory) RequestAccessService() *RequestAccessService {
	if f.requestAccessService == nil {
		rl := f.cfg.RateLimit
		f.requestAccessService = NewRequestAccessService(
			RequestAccessLimiters{
				Global:    f.limiter("request_access_global", rl.RequestAccessGlobal),
				IP:        f.limiter("request_access_ip", rl.RequestAccessIP),
				PendingIP: f.limiter("request_access_pending_ip", rl.RequestAccessPendIP),
			},
			f.deps.Verifier,
			f.deps.Datastore,
			f.deps.Mailer,
			f.deps.Recorder,
			f.cfg.Site,
			f.logger.Named("request_access"),
		)
	}
	return f.requestAccessService
}

func (f *ServiceFactory) SignupService() *SignupService {
	if f.signupService == nil {
		rl := f.cfg.RateLimit
		f.signupService = NewSignupService(
			SignupLimiters{
				Global: f.limiter("signup_global", rl.SignupGlobal),
				IP:     f.limiter("signup_ip", rl.SignupIP),
				Email:  f.limiter("signup_email", rl.SignupEmail),
			},
			f.deps.Verifier,
			f.deps.Datastore,
			f.deps.Mailer,
			f.deps.Recorder,
			f.cfg.Site,
			f.logger.Named("signup"),
		)
	}
	return f.signupService
}

func (f *ServiceFactory) ResendService() *ResendService {
	if f.resendService == nil {
		rl := f.cfg.RateLimit
		f.resendService = NewResendService(
			ResendLimiters{
				Global: f.limiter("resend_global", rl.ResendGlobal),
				IP:     f.limiter("resend_ip", rl.ResendIP),
				Email:  f.limiter("resend_email", rl.ResendEmail),
			},
			f.deps.Verifier,
			f.deps.Datastore,
			f.deps.Mailer,
			f.deps.Recorder,
			f.cfg.Site,
			f.logger.Named("resend"),
		)
	}
	return f.resendService
}

func (f *ServiceFactory) CheckoutService() *CheckoutService {
	if f.checkoutService == nil {
		f.checkoutService = NewCheckoutService(
			f.limiter("checkout_ip", f.cfg.RateLimit.CheckoutIP),
			f.deps.Payments,
			f.deps.Recorder,
			f.cfg.Site,
			f.logger.Named("checkout"),
		)
	}
	return f.checkoutService
}
