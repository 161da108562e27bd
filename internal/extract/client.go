package extract

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-intel/internal/permit"
	"github.com/sells-group/permit-intel/internal/resilience"
)

// Client fetches permit records from a Socrata-style listing API using
// offset pagination. Every request passes through the shared rolling-window
// rate limiter first, and response rate-limit headers feed back into it.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appToken   string
	pageSize   int
	limiter    *resilience.WindowLimiter
	log        *zap.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithClientHTTP sets a custom HTTP client.
func WithClientHTTP(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAppToken sets the application token sent on every request.
func WithAppToken(token string) ClientOption {
	return func(c *Client) {
		c.appToken = token
	}
}

// WithPageSize sets records per page. Default 1000.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient creates a Client for the given endpoint, sharing the provided
// window limiter across all its requests.
func NewClient(baseURL string, limiter *resilience.WindowLimiter, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		pageSize:   1000,
		limiter:    limiter,
		log:        zap.L().With(zap.String("component", "extract_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageSize returns the configured records-per-page.
func (c *Client) PageSize() int { return c.pageSize }

// FetchPage retrieves one page of raw records, newest status date first.
// where filters server-side (the incremental cursor predicate); empty
// means the full dataset.
func (c *Client) FetchPage(ctx context.Context, where string, offset int) ([]permit.RawRecord, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, eris.Wrap(err, "extract: rate limit acquire")
		}
	}

	params := url.Values{
		"$limit":  {strconv.Itoa(c.pageSize)},
		"$offset": {strconv.Itoa(offset)},
		"$order":  {"status_date DESC, permit_number"},
	}
	if where != "" {
		params.Set("$where", where)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "extract: build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extract: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	c.reportHeaders(resp.Header)

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extract: read body"), resp.StatusCode)
	}

	var records []permit.RawRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, eris.Wrap(err, "extract: parse response")
	}

	c.log.Debug("fetched page",
		zap.Int("offset", offset),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// checkStatus maps HTTP status codes onto the error taxonomy: 401/403 are
// fatal auth errors, 429 carries the mandatory retry-after wait, 5xx and
// 408 are transient.
func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resilience.NewAuthError(
			eris.Errorf("extract: source rejected credentials (status %d)", resp.StatusCode),
			resp.StatusCode,
		)
	case resp.StatusCode == http.StatusTooManyRequests:
		return resilience.NewRateLimitError(
			eris.New("extract: source throttled request"),
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(
			eris.Errorf("extract: source returned status %d", resp.StatusCode),
			resp.StatusCode,
		)
	}
	return eris.Errorf("extract: source returned status %d", resp.StatusCode)
}

// reportHeaders feeds x-ratelimit-* response headers into the window
// limiter so it can throttle down before the source starts rejecting.
func (c *Client) reportHeaders(h http.Header) {
	if c.limiter == nil {
		return
	}
	remaining, err1 := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	limit, err2 := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	if err1 != nil || err2 != nil {
		return
	}
	c.limiter.ReportThrottled(remaining, limit)
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
