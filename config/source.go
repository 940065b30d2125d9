package config

import (
	"strings"
	"time"
)

const defaultUserAgent = "jobsync/1.0"

// SourceConfig contains configuration for the paginated HTTP JSON listing source.
type SourceConfig struct {
	// BaseURL is the listing endpoint, e.g. https://careers.example.com/api/jobs.
	BaseURL string `env:"BASE_URL"`

	// Query is the raw query string appended to every page request (without the page parameter).
	Query string `env:"QUERY" envDefault:""`

	// FeaturedQuery, when set, is requested once before the numbered pages.
	FeaturedQuery string `env:"FEATURED_QUERY" envDefault:""`

	// PageParam is the query parameter carrying the page number.
	PageParam string `env:"PAGE_PARAM" envDefault:"page"`

	// FirstPage is the number of the first numbered page.
	FirstPage int `env:"FIRST_PAGE" envDefault:"1"`

	// ListingsPath is a JMESPath expression selecting the listings array in a page payload.
	ListingsPath string `env:"LISTINGS_PATH" envDefault:"jobs"`

	// EmptyPageConfirmations is how many times an empty page is requested before it is treated as exhaustion.
	EmptyPageConfirmations int `env:"EMPTY_PAGE_CONFIRMATIONS" envDefault:"1"`

	// Timeout bounds a single page request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`

	// MaxRetries is how many times a failed page fetch is retried before the pass aborts.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`

	// RetryBackoff is the initial backoff between page retries; it doubles after every attempt.
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"1s"`

	UserAgent string `env:"USER_AGENT" envDefault:"jobsync/1.0"`

	// OAuth client-credentials settings; enabled when TokenURL is set.
	OAuthTokenURL     string   `env:"OAUTH_TOKEN_URL"`
	OAuthClientID     string   `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string   `env:"OAUTH_CLIENT_SECRET"`
	OAuthScopes       []string `env:"OAUTH_SCOPES"`
}

// Sanitize applies guardrails to source configuration values.
func (c *SourceConfig) Sanitize() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Query = strings.TrimPrefix(strings.TrimSpace(c.Query), "?")
	c.FeaturedQuery = strings.TrimPrefix(strings.TrimSpace(c.FeaturedQuery), "?")
	if c.PageParam = strings.TrimSpace(c.PageParam); c.PageParam == "" {
		c.PageParam = "page"
	}
	if c.FirstPage < 0 {
		c.FirstPage = 0
	}
	if c.ListingsPath = strings.TrimSpace(c.ListingsPath); c.ListingsPath == "" {
		c.ListingsPath = "jobs"
	}
	if c.EmptyPageConfirmations < 1 {
		c.EmptyPageConfirmations = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.UserAgent = strings.TrimSpace(c.UserAgent); c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	c.OAuthTokenURL = strings.TrimSpace(c.OAuthTokenURL)
}

// OAuthEnabled reports whether requests are authorized with client credentials.
func (c *SourceConfig) OAuthEnabled() bool {
	return c.OAuthTokenURL != "" && c.OAuthClientID != ""
}
