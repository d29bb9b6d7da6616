package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketing-api/internal/client"
	"marketing-api/internal/events"
	"marketing-api/internal/models"
)

func newResendService(verifier *fakeVerifier, datastore Datastore, mailer *fakeMailer) (*ResendService, *recordingSink) {
	rec, sink := newTestRecorder()
	svc := NewResendService(
		ResendLimiters{
			Global: testLimiter("resend_global", 100),
			IP:     testLimiter("resend_ip", 10),
			Email:  testLimiter("resend_email", 2),
		},
		verifier, datastore, mailer, rec, testSite, zap.NewNop(),
	)
	return svc, sink
}

func resendAttempts(t *testing.T, ds *fakeDatastore) []models.ResendAttempt {
	t.Helper()
	var out []models.ResendAttempt
	for _, in := range ds.insertsInto("verification_email_resends") {
		assert.Equal(t, "marketing", in.schema)
		out = append(out, in.row.(models.ResendAttempt))
	}
	return out
}

func TestResend_ExistingAndUnknownAccountsLookIdentical(t *testing.T) {
	ds := newFakeDatastore()
	ds.users["known@example.com"] = true
	mailer := newFakeMailer()
	svc, sink := newResendService(passingVerifier(), ds, mailer)
	ctx := context.Background()

	known, err := svc.Submit(ctx, testMeta, ResendRequest{Email: "Known@example.com", TurnstileToken: "tok"})
	require.NoError(t, err)
	unknown, err := svc.Submit(ctx, testMeta, ResendRequest{Email: "ghost@example.com", TurnstileToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, known, unknown)
	assert.Equal(t, ResendGenericMessage, known.Message)
	assert.Equal(t, 1, mailer.total())

	attempts := resendAttempts(t, ds)
	require.Len(t, attempts, 2)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "known@example.com", attempts[0].Email)
	assert.False(t, attempts[1].Success)
	require.NotNil(t, attempts[1].ErrorMessage)
	assert.Equal(t, "user not found", *attempts[1].ErrorMessage)

	for _, e := range sink.all() {
		assert.Empty(t, e.Email)
	}
}

func TestResend_SignupLinkFallsBackToMagicLink(t *testing.T) {
	ds := newFakeDatastore()
	ds.users["known@example.com"] = true
	ds.linkErr[client.LinkSignup] = errBoom
	mailer := newFakeMailer()
	svc, _ := newResendService(passingVerifier(), ds, mailer)

	out, err := svc.Submit(context.Background(), testMeta, ResendRequest{Email: "known@example.com", TurnstileToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, ResendGenericMessage, out.Message)
	require.Len(t, ds.linkCalls, 2)
	assert.Equal(t, client.LinkMagicLink, ds.linkCalls[1].Type)
	assert.Equal(t, "https://listhit.io/signup/verify", ds.linkCalls[1].RedirectTo)
	assert.Empty(t, ds.linkCalls[1].Password)
	require.Len(t, mailer.links, 1)
	assert.Contains(t, mailer.links[0], "magiclink")
	assert.True(t, resendAttempts(t, ds)[0].Success)
}

func TestResend_BothLinksFailingIsStillGeneric(t *testing.T) {
	ds := newFakeDatastore()
	ds.users["known@example.com"] = true
	ds.linkErr[client.LinkSignup] = errBoom
	ds.linkErr[client.LinkMagicLink] = errBoom
	mailer := newFakeMailer()
	svc, sink := newResendService(passingVerifier(), ds, mailer)

	out, err := svc.Submit(context.Background(), testMeta, ResendRequest{Email: "known@example.com", TurnstileToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, ResendGenericMessage, out.Message)
	assert.Zero(t, mailer.total())
	assert.False(t, resendAttempts(t, ds)[0].Success)
	assert.Equal(t, events.OutcomeFailed, sink.last().Outcome)
}

func TestResend_RejectionsStayGeneric(t *testing.T) {
	tt := []struct {
		desc       string
		verifier   *fakeVerifier
		req        ResendRequest
		wantVerify int
		wantError  string
	}{
		{
			desc:      "invalid email",
			verifier:  passingVerifier(),
			req:       ResendRequest{Email: "nope", TurnstileToken: "tok"},
			wantError: "invalid email",
		},
		{
			desc:      "missing token",
			verifier:  passingVerifier(),
			req:       ResendRequest{Email: "known@example.com"},
			wantError: "missing turnstile token",
		},
		{
			desc:       "verification failed",
			verifier:   failingVerifier(),
			req:        ResendRequest{Email: "known@example.com", TurnstileToken: "tok"},
			wantVerify: 1,
			wantError:  "We could not verify your request. Please refresh and try again.",
		},
	}

	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			ds := newFakeDatastore()
			ds.users["known@example.com"] = true
			mailer := newFakeMailer()
			svc, _ := newResendService(tc.verifier, ds, mailer)

			out, err := svc.Submit(context.Background(), testMeta, tc.req)

			require.NoError(t, err)
			assert.Equal(t, svc.Generic(), out)
			assert.Equal(t, tc.wantVerify, tc.verifier.count())
			assert.Zero(t, mailer.total())
			assert.Empty(t, ds.linkCalls)

			attempts := resendAttempts(t, ds)
			require.Len(t, attempts, 1)
			require.NotNil(t, attempts[0].ErrorMessage)
			assert.Equal(t, tc.wantError, *attempts[0].ErrorMessage)
		})
	}
}

func TestResend_NoDatastoreIsGeneric(t *testing.T) {
	svc, _ := newResendService(passingVerifier(), nil, newFakeMailer())

	out, err := svc.Submit(context.Background(), testMeta, ResendRequest{Email: "a@example.com", TurnstileToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, ResendGenericMessage, out.Message)
}

func TestResend_EmailRateLimit(t *testing.T) {
	ds := newFakeDatastore()
	svc, _ := newResendService(passingVerifier(), ds, newFakeMailer())
	ctx := context.Background()
	req := ResendRequest{Email: "someone@example.com", TurnstileToken: "tok"}

	for i := 0; i < 2; i++ {
		_, err := svc.Submit(ctx, testMeta, req)
		require.NoError(t, err)
	}

	out, err := svc.Submit(ctx, ClientMeta{IP: "198.51.100.3"}, req)
	assert.Nil(t, out)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, "Too many requests. Please try again shortly.", UserMessage(err, ""))
	assert.Len(t, resendAttempts(t, ds), 2, "rate-limited requests are not logged")
}

func TestResend_AdmitUsesResendMessage(t *testing.T) {
	svc := NewResendService(
		ResendLimiters{IP: testLimiter("resend_ip", 1)},
		passingVerifier(), nil, newFakeMailer(), nil, testSite, zap.NewNop(),
	)
	ctx := context.Background()

	require.NoError(t, svc.Admit(ctx, testMeta))
	err := svc.Admit(ctx, testMeta)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, ResendRateLimitedMessage, UserMessage(err, ""))
}

func TestResend_ClientDisconnectAfterVerificationStillSends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	verifier := passingVerifier()
	verifier.onVerify = cancel
	ds := newFakeDatastore()
	ds.users["known@example.com"] = true
	mailer := newFakeMailer()
	svc, _ := newResendService(verifier, ds, mailer)

	out, err := svc.Submit(ctx, testMeta, ResendRequest{Email: "known@example.com", TurnstileToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, ResendGenericMessage, out.Message)
	assert.True(t, mailer.called("verification"))
	attempts := resendAttempts(t, ds)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
}
