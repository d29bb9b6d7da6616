package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketing-api/internal/config"
)

var (
	ErrSupabaseNotConfigured = errors.New("supabase is not configured")
	ErrActionLinkMissing     = errors.New("supabase returned no action link")
	ErrUserLookupTruncated   = errors.New("supabase user lookup exceeded page limit")
)

// LinkType is a GoTrue admin generate_link type.
type LinkType string

const (
	LinkSignup    LinkType = "signup"
	LinkMagicLink LinkType = "magiclink"
)

const (
	userLookupPageSize = 50
	userLookupMaxPages = 20
)

// GenerateLinkParams mirrors the body of POST /auth/v1/admin/generate_link.
type GenerateLinkParams struct {
	Type       LinkType               `json:"type"`
	Email      string                 `json:"email"`
	Password   string                 `json:"password,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	RedirectTo string                 `json:"redirect_to,omitempty"`
}

// SupabaseError is a non-2xx answer from PostgREST or GoTrue.
type SupabaseError struct {
	Status  int
	Message string
}

func (e *SupabaseError) Error() string {
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Message)
}

// SupabaseClient talks to the PostgREST and GoTrue admin APIs with the
// service-role key.
type SupabaseClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSupabaseClient(cfg *config.Config, logger *zap.Logger) (*SupabaseClient, error) {
	sb := cfg.Supabase
	if !sb.Enabled() {
		return nil, ErrSupabaseNotConfigured
	}
	if _, err := url.ParseRequestURI(sb.URL); err != nil {
		return nil, fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := sb.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger.Info("Supabase client initialized", zap.String("url", sb.URL))

	return &SupabaseClient{
		baseURL:    strings.TrimRight(sb.URL, "/"),
		serviceKey: sb.ServiceRoleKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Insert writes one row. An empty schema means public.
func (c *SupabaseClient) Insert(ctx context.Context, schema, table string, row interface{}) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", table, err)
	}

	headers := map[string]string{"Prefer": "return=minimal"}
	if schema != "" && schema != "public" {
		headers["Content-Profile"] = schema
	}

	if err := c.do(ctx, http.MethodPost, "/rest/v1/"+url.PathEscape(table), body, headers, nil); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// GenerateLink asks GoTrue for an action link without sending GoTrue's own email.
func (c *SupabaseClient) GenerateLink(ctx context.Context, params GenerateLinkParams) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode generate_link: %w", err)
	}

	var out struct {
		ActionLink string `json:"action_link"`
		Properties struct {
			ActionLink string `json:"action_link"`
		} `json:"properties"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/admin/generate_link", body, nil, &out); err != nil {
		return "", fmt.Errorf("generate %s link: %w", params.Type, err)
	}

	link := out.ActionLink
	if link == "" {
		link = out.Properties.ActionLink
	}
	if link == "" {
		return "", ErrActionLinkMissing
	}
	return link, nil
}

// UserExists looks an account up by email through the admin users endpoint.
// The filter is a substring match, so results are compared exactly and pages
// are walked until a match or a short page.
func (c *SupabaseClient) UserExists(ctx context.Context, email string) (bool, error) {
	for page := 1; page <= userLookupMaxPages; page++ {
		var out struct {
			Users []struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"users"`
		}

		query := url.Values{
			"filter":   {email},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(userLookupPageSize)},
		}
		if err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users?"+query.Encode(), nil, nil, &out); err != nil {
			return false, fmt.Errorf("lookup user page %d: %w", page, err)
		}

		for _, u := range out.Users {
			if strings.EqualFold(u.Email, email) {
				return true, nil
			}
		}
		if len(out.Users) < userLookupPageSize {
			return false, nil
		}
	}
	return false, ErrUserLookupTruncated
}

func (c *SupabaseClient) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/auth/v1/health", nil, nil, nil)
}

func (c *SupabaseClient) do(ctx context.Context, method, path string, body []byte, headers map[string]string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SupabaseError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readErrorMessage pulls the most useful field out of a PostgREST or GoTrue
// error body.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))

	var body struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, s := range []string{body.Message, body.Msg, body.ErrorDescription, body.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
