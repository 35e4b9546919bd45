// Package jira is a read-only client for the tracker REST API. It fetches
// issues by key and by JQL search and maps them onto types.Issue.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/steveyegge/stepview/internal/metrics"
	"github.com/steveyegge/stepview/internal/types"
)

// Fields requested by the recently-updated alert query
var recentFields = []string{"summary", "updated", "status"}

// Base fields requested when fetching an issue for grouping
var baseIssueFields = []string{"summary", "labels", "issuelinks", "status", "project", "components", "updated"}

// Config holds client configuration
type Config struct {
	BaseURL string

	// User and Token select basic auth. Token alone is sent as a bearer token.
	User  string
	Token string

	// RequestsPerSecond bounds outgoing requests (burst of the same size)
	RequestsPerSecond float64

	// Concurrency bounds parallel issue fetches in FetchIssues
	Concurrency int

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the tracker
type Client struct {
	mu      sync.RWMutex
	baseURL string

	user        string
	token       string
	concurrency int
	http        *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a client. An empty BaseURL is allowed; requests fail
// until SetBaseURL is called.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 6
	}
	return &Client{
		baseURL:     normalizeBaseURL(cfg.BaseURL),
		user:        cfg.User,
		token:       cfg.Token,
		concurrency: concurrency,
		http:        httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}
}

// SetBaseURL points the client at another site (settings reload)
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = normalizeBaseURL(baseURL)
}

// BaseURL returns the current site
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// BrowseURL returns the web link of an issue
func (c *Client) BrowseURL(key string) string {
	return BrowseURL(c.BaseURL(), key)
}

// BrowseURL builds the web link of an issue on the given site
func BrowseURL(baseURL, key string) string {
	return normalizeBaseURL(baseURL) + "/browse/" + url.PathEscape(key)
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// IssueFields returns the field list requested for grouping, including the
// configured product and step custom fields
func IssueFields(s types.Settings) []string {
	fields := append([]string(nil), baseIssueFields...)
	if s.ProductFieldID != "" {
		fields = append(fields, s.ProductFieldID)
	}
	if s.StepFieldID != "" && s.StepFieldID != s.ProductFieldID {
		fields = append(fields, s.StepFieldID)
	}
	return fields
}

// RecentJQL is the query used by the alert poller
func RecentJQL(lookbackMin int) string {
	return "(assignee = currentUser() OR reporter = currentUser() OR watcher = currentUser()) " +
		"AND updated >= -" + strconv.Itoa(lookbackMin) + "m ORDER BY updated DESC"
}

// GetIssue fetches one issue by key
func (c *Client) GetIssue(ctx context.Context, key string, s types.Settings) (types.Issue, error) {
	endpoint, err := c.endpoint(c.siteFor(s), "/rest/api/3/issue/"+url.PathEscape(key))
	if err != nil {
		return types.Issue{}, err
	}
	q := endpoint.Query()
	q.Set("fields", strings.Join(IssueFields(s), ","))
	endpoint.RawQuery = q.Encode()

	var raw rawIssue
	if err := c.getJSON(ctx, key, "issue", endpoint, &raw); err != nil {
		return types.Issue{}, err
	}
	return raw.toIssue(), nil
}

// Search runs a JQL query and returns at most maxResults issues
func (c *Client) Search(ctx context.Context, jql string, maxResults int, fields []string) ([]types.Issue, error) {
	return c.search(ctx, c.BaseURL(), jql, maxResults, fields)
}

func (c *Client) search(ctx context.Context, site, jql string, maxResults int, fields []string) ([]types.Issue, error) {
	endpoint, err := c.endpoint(site, "/rest/api/3/search")
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("jql", jql)
	q.Set("maxResults", strconv.Itoa(maxResults))
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	endpoint.RawQuery = q.Encode()

	var resp searchResponse
	if err := c.getJSON(ctx, "Search", "search", endpoint, &resp); err != nil {
		return nil, err
	}
	issues := make([]types.Issue, 0, len(resp.Issues))
	for _, raw := range resp.Issues {
		issues = append(issues, raw.toIssue())
	}
	return issues, nil
}

// SearchRecent returns issues involving the current user updated within the
// configured lookback, most recent first. The site comes from s, so a base
// URL stored after startup takes effect on the next poll.
func (c *Client) SearchRecent(ctx context.Context, s types.Settings) ([]types.Issue, error) {
	return c.search(ctx, c.siteFor(s), RecentJQL(s.AlertLookbackMin), types.AlertPageSize, recentFields)
}

// FetchIssues fetches keys in parallel, bounded by the configured
// concurrency. The result keeps the order of keys. Any failure cancels the
// remaining fetches and is returned.
func (c *Client) FetchIssues(ctx context.Context, keys []string, s types.Settings) ([]types.Issue, error) {
	issues := make([]types.Issue, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			issue, err := c.GetIssue(gctx, key, s)
			if err != nil {
				return err
			}
			issues[i] = issue
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return issues, nil
}

// siteFor prefers the base URL of the resolved settings over the one the
// client was built with
func (c *Client) siteFor(s types.Settings) string {
	if site := normalizeBaseURL(s.BaseURL); site != "" {
		return site
	}
	return c.BaseURL()
}

func (c *Client) endpoint(base, path string) (*url.URL, error) {
	if base == "" {
		return nil, fmt.Errorf("failed to build request: no base URL configured")
	}
	u, err := url.Parse(base + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL %q: %w", base, err)
	}
	return u, nil
}

// getJSON performs a rate-limited GET and decodes a 2xx body into out.
// label names the request in UpstreamError ("Search", or the issue key).
func (c *Client) getJSON(ctx context.Context, label, op string, endpoint *url.URL, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &types.UpstreamError{Op: label, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.user != "" && c.token != "":
		req.SetBasicAuth(c.user, c.token)
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstream(op, 0)
		return &types.UpstreamError{Op: label, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordUpstream(op, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.Debug("tracker request failed", "op", op, "target", label, "status", resp.StatusCode)
		return &types.UpstreamError{Op: label, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.UpstreamError{Op: label, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
