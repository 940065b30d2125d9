// Package source implements core.Source over a paginated HTTP JSON listing endpoint.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/jobsync/config"
	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/model"
)

const maxErrorBodyBytes = 1 << 10

// FetchError reports a page request that did not produce a usable payload. It is always
// transient from the crawler's point of view and never signals exhaustion.
type FetchError struct {
	Page       int
	Featured   bool
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	label := "page " + strconv.Itoa(e.Page)
	if e.Featured {
		label = "featured page"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d: %v", label, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", label, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options groups dependencies for HTTPSource.
type Options struct {
	Config     config.SourceConfig // Required: BaseURL must be set
	HTTPClient *http.Client        // Optional: built from Config when nil
	Logger     *slog.Logger        // Optional
}

// HTTPSource walks page=N requests until an empty page is confirmed.
// It is not safe for concurrent NextPage calls; the coordinator fetches pages sequentially.
type HTTPSource struct {
	cfg         config.SourceConfig
	baseURL     *url.URL
	client      *http.Client
	logger      *slog.Logger
	hasFeatured bool

	mu            sync.Mutex
	featuredDone  bool
	next          int
	emptyStreak   int
	exhaustedPage int
	exhausted     bool
}

var _ core.Source = (*HTTPSource)(nil)

// New constructs an HTTPSource.
func New(opts Options) (*HTTPSource, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("source base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse source base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("source base URL must be http or https, got %q", base.Scheme)
	}
	if _, err := jmespath.Compile(cfg.ListingsPath); err != nil {
		return nil, fmt.Errorf("compile listings path %q: %w", cfg.ListingsPath, err)
	}

	client := opts.HTTPClient
	if client == nil {
		client, err = newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &HTTPSource{
		cfg:         cfg,
		baseURL:     base,
		client:      client,
		logger:      logger.With("component", "listing_source", "host", base.Host),
		hasFeatured: cfg.FeaturedQuery != "",
	}
	s.Reset()
	return s, nil
}

// newHTTPClient builds a client with a public-suffix-aware cookie jar and, when configured,
// an OAuth2 client-credentials transport.
func newHTTPClient(cfg config.SourceConfig) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	base := &http.Client{Timeout: cfg.Timeout, Jar: jar}
	if !cfg.OAuthEnabled() {
		return base, nil
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		TokenURL:     cfg.OAuthTokenURL,
		Scopes:       cfg.OAuthScopes,
	}
	// Token requests reuse the bounded client.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout
	client.Jar = jar
	return client, nil
}

// Reset rewinds the cursor to the featured prelude (if any) and the first page.
func (s *HTTPSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.featuredDone = !s.hasFeatured
	s.next = s.cfg.FirstPage
	s.emptyStreak = 0
	s.exhausted = false
	s.exhaustedPage = 0
}

// NextPage fetches the next page. On error the cursor stays put.
func (s *HTTPSource) NextPage(ctx context.Context) (core.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted {
		return core.Page{Number: s.exhaustedPage}, nil
	}

	if !s.featuredDone {
		listings, err := s.fetch(ctx, mergeQuery(s.cfg.Query, s.cfg.FeaturedQuery), s.cfg.FirstPage, true)
		if err != nil {
			return core.Page{}, err
		}
		s.featuredDone = true
		return core.Page{Number: s.cfg.FirstPage, Featured: true, Listings: listings}, nil
	}

	number := s.next
	query := joinQuery(s.cfg.Query, s.cfg.PageParam, number)
	for {
		listings, err := s.fetch(ctx, query, number, false)
		if err != nil {
			return core.Page{}, err
		}
		if len(listings) > 0 {
			s.emptyStreak = 0
			s.next++
			return core.Page{Number: number, Listings: listings}, nil
		}

		s.emptyStreak++
		if s.emptyStreak >= s.cfg.EmptyPageConfirmations {
			s.exhausted = true
			s.exhaustedPage = number
			s.logger.InfoContext(ctx, "listing source exhausted", "page", number, "confirmations", s.emptyStreak)
			return core.Page{Number: number}, nil
		}
		s.logger.DebugContext(ctx, "empty page, confirming", "page", number, "attempt", s.emptyStreak)
	}
}

func (s *HTTPSource) fetch(ctx context.Context, rawQuery string, page int, featured bool) ([]model.RawListing, error) {
	fail := func(status int, err error) error {
		return &FetchError{Page: page, Featured: featured, StatusCode: status, Err: err}
	}

	u := *s.baseURL
	u.RawQuery = mergeQuery(u.RawQuery, rawQuery)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fail(0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer func() {
		// body close failure is best-effort and ignored
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fail(resp.StatusCode, errors.New(strings.TrimSpace(string(snippet))))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(0, fmt.Errorf("read body: %w", err))
	}

	listings, err := s.extract(body)
	if err != nil {
		return nil, fail(0, err)
	}

	s.logger.DebugContext(ctx, "page fetched",
		"page", page,
		"featured", featured,
		"listings", len(listings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return listings, nil
}

// extract decodes the payload keeping numbers as json.Number and selects the listings array.
func (s *HTTPSource) extract(body []byte) ([]model.RawListing, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	found, err := jmespath.Search(s.cfg.ListingsPath, payload)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", s.cfg.ListingsPath, err)
	}
	// Only an actual empty array is an empty page; a payload without the listings
	// (an error envelope, null) must never read as exhaustion.
	if found == nil {
		return nil, fmt.Errorf("listings path %q not found in payload", s.cfg.ListingsPath)
	}
	items, ok := found.([]any)
	if !ok {
		return nil, fmt.Errorf("listings path %q selected %T, want array", s.cfg.ListingsPath, found)
	}

	listings := make([]model.RawListing, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			s.logger.Warn("skipping non-object listing", "type", fmt.Sprintf("%T", item))
			continue
		}
		listings = append(listings, model.RawListing(obj))
	}
	return listings, nil
}

func joinQuery(query, param string, page int) string {
	values := url.Values{}
	values.Set(param, strconv.Itoa(page))
	return mergeQuery(query, values.Encode())
}

func mergeQuery(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "&")
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p)
	}
	return b.String()
}
