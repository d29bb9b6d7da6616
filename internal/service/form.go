package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"marketing-api/internal/client"
	"marketing-api/internal/events"
	"marketing-api/internal/models"
	"marketing-api/internal/ratelimit"
	"marketing-api/internal/util"
	"marketing-api/internal/verification"
)

// ClientMeta is what the transport knows about the caller.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// remoteIP is the address forwarded to the verifier, empty when unknown.
func (m ClientMeta) remoteIP() string {
	return util.RemoteIP(m.IP)
}

// Outcome is a successful (HTTP 200) form response.
type Outcome struct {
	Message       string
	Mailto        string
	EmailDelivery string
	ClientSecret  string
}

// Mailer sends the transactional emails behind each form.
type Mailer interface {
	SendVerification(ctx context.Context, toEmail, toName, actionLink string) error
	SendContactReceipt(ctx context.Context, toEmail, toName, subject string) error
	SendContactNotification(ctx context.Context, n models.ContactNotification) error
	SendRequestAccessConfirmation(ctx context.Context, toEmail, toName, company string) error
	SendRequestAccessNotification(ctx context.Context, lead models.Lead) error
}

// Datastore is the hosted auth and database backend.
type Datastore interface {
	Insert(ctx context.Context, schema, table string, row interface{}) error
	GenerateLink(ctx context.Context, params client.GenerateLinkParams) (string, error)
	UserExists(ctx context.Context, email string) (bool, error)
}

// CheckoutCreator opens payment sessions.
type CheckoutCreator interface {
	CreateEmbeddedCheckout(ctx context.Context, req client.CheckoutRequest) (string, error)
}

// Forwarder hands a contact submission to the support desk.
type Forwarder interface {
	Forward(ctx context.Context, payload interface{}) error
}

// check pairs a counter table with the identifier to count.
type check struct {
	limiter    *ratelimit.Limiter
	identifier string
}

// admitAll evaluates checks in order and stops at the first rejection.
func admitAll(ctx context.Context, checks ...check) bool {
	for _, c := range checks {
		if c.limiter == nil {
			continue
		}
		if !c.limiter.Admit(ctx, c.identifier) {
			return false
		}
	}
	return true
}

// verify runs the bot check and maps a failure to ErrVerificationFailed.
func verify(ctx context.Context, v verification.Verifier, token string, meta ClientMeta) error {
	if v == nil {
		return verificationFailed(verification.UnavailableMessage)
	}
	res := v.Verify(ctx, token, meta.remoteIP())
	if res.Success {
		return nil
	}
	msg := res.Message
	if msg == "" {
		msg = verification.FailureMessage
	}
	return verificationFailed(msg)
}

// rejection queues a terminal non-success outcome without the submitter's
// email. Rejections include floods, so they never wait on the sinks.
func rejection(rec *events.Recorder, form events.Form, meta ClientMeta, err error) {
	outcome := events.OutcomeFailed
	switch {
	case errors.Is(err, ErrRateLimited):
		outcome = events.OutcomeRateLimited
	case errors.Is(err, ErrVerificationFailed):
		outcome = events.OutcomeVerificationFailed
	case errors.Is(err, ErrInvalidInput):
		outcome = events.OutcomeInvalid
		if UserMessage(err, "") == honeypotMessage {
			outcome = events.OutcomeHoneypot
		}
	}
	e := events.New(form, outcome)
	e.IP = meta.IP
	e.UserAgent = meta.UserAgent
	rec.Enqueue(e)
}

// accepted records a submission that reached delegation.
func accepted(ctx context.Context, rec *events.Recorder, form events.Form, outcome events.Outcome, meta ClientMeta, email string, attrs map[string]string) {
	e := events.New(form, outcome)
	e.Email = email
	e.IP = meta.IP
	e.UserAgent = meta.UserAgent
	e.Attributes = attrs
	rec.Record(ctx, e)
}

func logFailures(logger *zap.Logger, msg string, failures []failure) {
	for _, f := range failures {
		logger.Error(msg, zap.String("delegate", f.name), zap.Error(f.err))
	}
}
