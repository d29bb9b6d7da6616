package verification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing-api/internal/config"
)

func newVerifier(t *testing.T, handler http.HandlerFunc, secret string, timeout time.Duration) (*TurnstileVerifier, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	v := NewTurnstileVerifier(config.TurnstileConfig{
		SecretKey: secret,
		VerifyURL: server.URL,
		Timeout:   timeout,
	}, nil)
	return v, &calls
}

func TestTurnstileVerifier_Success(t *testing.T) {
	v, calls := newVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret-key", r.PostForm.Get("secret"))
		assert.Equal(t, "token-123", r.PostForm.Get("response"))
		assert.Equal(t, "203.0.113.9", r.PostForm.Get("remoteip"))
		_, _ = w.Write([]byte(`{"success":true,"hostname":"listhit.io"}`))
	}, "secret-key", time.Second)

	res := v.Verify(context.Background(), "token-123", "203.0.113.9")
	assert.True(t, res.Success)
	assert.Empty(t, res.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestTurnstileVerifier_OmitsEmptyRemoteIP(t *testing.T) {
	v, _ := newVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, present := r.PostForm["remoteip"]
		assert.False(t, present)
		_, _ = w.Write([]byte(`{"success":true}`))
	}, "secret-key", time.Second)

	assert.True(t, v.Verify(context.Background(), "token", "").Success)
}

func TestTurnstileVerifier_Failures(t *testing.T) {
	tt := []struct {
		desc    string
		handler http.HandlerFunc
	}{
		{
			desc: "upstream rejects token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
			},
		},
		{
			desc: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			desc: "undecodable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
		},
		{
			desc: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(500 * time.Millisecond):
				}
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			v, _ := newVerifier(t, tc.handler, "secret-key", 50*time.Millisecond)

			res := v.Verify(context.Background(), "token", "198.51.100.1")
			assert.False(t, res.Success)
			assert.Equal(t, FailureMessage, res.Message)
		})
	}
}

func TestTurnstileVerifier_EmptyTokenSkipsUpstream(t *testing.T) {
	v, calls := newVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}, "secret-key", time.Second)

	for _, token := range []string{"", "   "} {
		res := v.Verify(context.Background(), token, "198.51.100.1")
		assert.False(t, res.Success)
		assert.Equal(t, FailureMessage, res.Message)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestTurnstileVerifier_MissingSecret(t *testing.T) {
	v, calls := newVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}, "", time.Second)

	res := v.Verify(context.Background(), "token", "")
	assert.False(t, res.Success)
	assert.Equal(t, UnavailableMessage, res.Message)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}
