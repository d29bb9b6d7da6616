package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	stripeclient "github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"marketing-api/internal/config"
)

var (
	ErrStripeNotConfigured = errors.New("stripe is not configured")
	ErrMissingClientSecret = errors.New("stripe returned no client secret")
)

// CheckoutRequest is the input for an embedded subscription checkout.
type CheckoutRequest struct {
	Email    string
	FullName string
}

// StripeClient creates embedded Checkout sessions for the Pro plan.
type StripeClient struct {
	api       *stripeclient.API
	priceID   string
	trialDays int64
	returnURL string
	logger    *zap.Logger
}

func NewStripeClient(cfg *config.Config, logger *zap.Logger) (*StripeClient, error) {
	return newStripeClient(cfg, nil, logger)
}

// newStripeClient lets tests point the API backend at a local server.
func newStripeClient(cfg *config.Config, backendURL *string, logger *zap.Logger) (*StripeClient, error) {
	sc := cfg.Stripe
	if !sc.Enabled() {
		return nil, ErrStripeNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(1),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelWarn},
		URL:               backendURL,
	}
	api := &stripeclient.API{}
	api.Init(sc.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})

	trialDays := sc.TrialDays
	if trialDays <= 0 {
		trialDays = 14
	}

	logger.Info("Stripe client initialized",
		zap.String("price_id", sc.PriceID),
		zap.Int64("trial_days", trialDays),
	)

	return &StripeClient{
		api:       api,
		priceID:   sc.PriceID,
		trialDays: trialDays,
		returnURL: cfg.Site.SiteURL + "/signup/complete?session_id={CHECKOUT_SESSION_ID}",
		logger:    logger,
	}, nil
}

// CreateEmbeddedCheckout opens a subscription session with a trial and
// returns its client secret for the embedded checkout widget.
func (c *StripeClient) CreateEmbeddedCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		UIMode:        stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		CustomerEmail: stripe.String(req.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(c.trialDays),
		},
		ReturnURL:                stripe.String(c.returnURL),
		CustomerCreation:         stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways)),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
	}
	params.Context = ctx
	params.AddMetadata("full_name", req.FullName)

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if session.ClientSecret == "" {
		return "", ErrMissingClientSecret
	}

	c.logger.Info("Stripe checkout session created", zap.String("session_id", session.ID))
	return session.ClientSecret, nil
}
