package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/offerwatch/internal/auth"
)

// DefaultBaseURL is the public Web API host.
const DefaultBaseURL = "https://api.steampowered.com"

// DefaultLanguage is used for item descriptions when none is configured.
const DefaultLanguage = "english"

// Client provides access to the trade offer Web API for one account.
type Client struct {
	account    string
	baseURL    string
	creds      *auth.Credentials
	language   string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new Web API client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, creds *auth.Credentials, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  baseURL,
		creds:    creds,
		language: DefaultLanguage,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.account != "" {
		c.logger = c.logger.With("account", c.account)
	}

	return c
}

// Credentials returns the account handle the client signs requests with.
func (c *Client) Credentials() *auth.Credentials {
	return c.creds
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration. A non-positive backoff keeps
// the current one.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAccount names the account the client acts for. The key appears on
// the client's log lines and on errors that exhaust retries.
func WithAccount(key string) ClientOption {
	return func(c *Client) {
		c.account = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLanguage sets the language requested for item descriptions.
func WithLanguage(lang string) ClientOption {
	return func(c *Client) {
		if lang != "" {
			c.language = lang
		}
	}
}
