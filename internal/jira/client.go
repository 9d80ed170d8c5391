// Package jira is the Jira REST adapter behind hierarchy.Source.
package jira

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strings"

	"github.com/antigravity-dev/sprintreport/internal/config"
)

var (
	// ErrMissingCredential means no token was available to authenticate.
	ErrMissingCredential = errors.New("missing jira credential")
	// ErrUnauthorized means Jira rejected the credential.
	ErrUnauthorized = errors.New("jira rejected the credential")
	// ErrTooManyIssues means a search matched more than max_issues issues.
	ErrTooManyIssues = errors.New("search exceeds jira.max_issues")
)

// Client talks to the Jira REST API.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
	cfg     config.Jira
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client for cfg.URL. The token is either a personal
// access token (sent as Bearer) or "email:api-token" (sent as Basic).
func NewClient(cfg config.Jira, token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: set the %s environment variable to your Jira personal access token", ErrMissingCredential, cfg.TokenEnv)
	}

	base := strings.TrimSpace(cfg.URL)
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid jira url %q", cfg.URL)
	}

	c := &Client{
		client:  &http.Client{Timeout: cfg.Timeout.Duration},
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BrowseURL returns the web URL of an issue.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

func (c *Client) authorize(req *http.Request) {
	if strings.Contains(c.token, ":") {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.token)))
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// get issues a GET against path with query parameters and returns the body.
func (c *Client) get(ctx context.Context, path string, params neturl.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build jira request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		out, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("jira API returned status %d: %s", resp.StatusCode, compactOutput(out))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read jira response: %w", err)
	}
	return body, nil
}

func compactOutput(out []byte) string {
	s := strings.Join(strings.Fields(string(out)), " ")
	if s == "" {
		return "<empty body>"
	}
	return s
}
