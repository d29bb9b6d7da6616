// Package verification redeems bot-challenge tokens against Cloudflare
// Turnstile's siteverify endpoint.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketing-api/internal/config"
)

const (
	// FailureMessage is returned for every failed check. Upstream details
	// stay in the logs.
	FailureMessage = "We could not verify your request. Please refresh and try again."
	// UnavailableMessage is returned when no secret is configured.
	UnavailableMessage = "Verification is temporarily unavailable. Please try again shortly."

	defaultTimeout = 5 * time.Second
)

// Result is the outcome of a single verification. It is never persisted.
type Result struct {
	Success bool
	Message string
}

// Verifier checks a client-supplied challenge token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) Result
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
	Action     string   `json:"action"`
}

type TurnstileVerifier struct {
	secret     string
	verifyURL  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewTurnstileVerifier(cfg config.TurnstileConfig, logger *zap.Logger) *TurnstileVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TurnstileVerifier{
		secret:     cfg.SecretKey,
		verifyURL:  cfg.VerifyURL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) Result {
	if v.secret == "" {
		v.logger.Error("TURNSTILE_SECRET_KEY is not configured")
		return Result{Success: false, Message: UnavailableMessage}
	}
	if strings.TrimSpace(token) == "" {
		return Result{Success: false, Message: FailureMessage}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	out, err := v.siteverify(ctx, token, remoteIP)
	if err != nil {
		v.logger.Warn("Turnstile verification error", zap.Error(err))
		return Result{Success: false, Message: FailureMessage}
	}
	if !out.Success {
		v.logger.Info("Turnstile verification rejected",
			zap.Strings("error_codes", out.ErrorCodes),
			zap.String("hostname", out.Hostname),
		)
		return Result{Success: false, Message: FailureMessage}
	}
	return Result{Success: true}
}

func (v *TurnstileVerifier) siteverify(ctx context.Context, token, remoteIP string) (*siteverifyResponse, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}
	return &out, nil
}
