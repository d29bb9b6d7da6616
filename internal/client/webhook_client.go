package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultWebhookTimeout = 8 * time.Second

// WebhookClient forwards contact submissions to the support desk endpoint.
type WebhookClient struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWebhookClient(endpoint string, logger *zap.Logger) *WebhookClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookClient{
		endpoint:   endpoint,
		timeout:    defaultWebhookTimeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Forward POSTs payload as JSON and treats any non-2xx answer as a failure.
// The call is aborted after the client's timeout.
func (c *WebhookClient) Forward(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("support endpoint responded with status %d", resp.StatusCode)
	}

	c.logger.Debug("Support endpoint accepted submission", zap.Int("status", resp.StatusCode))
	return nil
}
