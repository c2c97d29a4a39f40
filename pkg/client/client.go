// Package client provides the resilient transport for the upstream
// project-management API: per-attempt timeouts, retry with backoff,
// rate-limit handling, pacing and pagination aggregation.
//
// The transport issues one logical call per Fetch. It does not cache and
// knows nothing about the records it moves.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
	"github.com/Sternrassler/pm-orchestrator/pkg/pagination"
	"github.com/Sternrassler/pm-orchestrator/pkg/ratelimit"
)

// Prometheus metrics for upstream operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_upstream_requests_total",
		Help: "Total upstream attempts by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_upstream_request_duration_seconds",
		Help:    "Upstream logical call duration in seconds by endpoint, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_upstream_errors_total",
		Help: "Total upstream attempt errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the versioned upstream API root.
const DefaultBaseURL = "https://3.basecampapi.com"

// TokenSource supplies the bearer token for each request. Session and OAuth
// handling live outside this package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config holds the transport configuration.
type Config struct {
	// BaseURL is the versioned API root, without the account segment.
	BaseURL string

	// AccountID is the tenant path segment. Relative targets require it.
	AccountID string

	// Token supplies the bearer token.
	Token TokenSource

	// UserAgent header (REQUIRED by the upstream).
	// Format: "AppName (contact@example.com)"
	UserAgent string

	// Timeout bounds each attempt.
	Timeout time.Duration

	// Retry
	Retry RetryConfig

	// Pacing applied once before the first attempt of every call.
	Pacing ratelimit.Pacer

	// Pagination limits for FetchAll.
	Pagination pagination.Config
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(accountID string, token TokenSource, userAgent string) Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		AccountID:  accountID,
		Token:      token,
		UserAgent:  userAgent,
		Timeout:    30 * time.Second,
		Retry:      DefaultRetryConfig(),
		Pacing:     ratelimit.DefaultPacer(),
		Pagination: pagination.DefaultConfig(),
	}
}

// Options modify a single call.
type Options struct {
	// Method defaults to GET.
	Method string

	// Query is merged into the target's query string.
	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	// Headers are added to the request.
	Headers http.Header
}

// Payload is the decoded result of one call.
type Payload struct {
	// Body is the decoded JSON document (numbers as json.Number).
	Body any

	// NoContent is true for 204 or empty responses. An empty collection is
	// a non-nil empty slice with NoContent false.
	NoContent bool

	// StatusCode of the final attempt.
	StatusCode int

	// Header of the final attempt.
	Header http.Header

	// URL that was requested.
	URL string
}

// Client is the resilient upstream transport.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new transport.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	logger := log.With().Str("component", "transport").Logger()

	return &Client{
		httpClient: &http.Client{},
		config:     cfg,
		logger:     logger,
	}, nil
}

// Fetch performs one logical call: pacing, then up to Retry.Attempts()
// attempts, each under Timeout.
func (c *Client) Fetch(ctx context.Context, target string, opts Options) (*Payload, error) {
	u, err := c.Resolve(target, opts.Query)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, u, opts)
}

// Collection is the result of a paginated fetch.
type Collection struct {
	Items []any

	// NoContent is set when the first page came back 204 or empty, so
	// callers can tell "nothing there" from an empty JSON array.
	NoContent bool
}

// FetchAll performs a call and follows rel="next" links, concatenating every
// page. A non-collection response is returned as the single element.
func (c *Client) FetchAll(ctx context.Context, target string, opts Options) ([]any, error) {
	col, err := c.Collect(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	return col.Items, nil
}

// Collect is FetchAll that also reports whether the upstream had no content.
// Items is never nil.
func (c *Client) Collect(ctx context.Context, target string, opts Options) (*Collection, error) {
	u, err := c.Resolve(target, opts.Query)
	if err != nil {
		return nil, err
	}

	pages := 0
	noContent := false
	fetcher := pagination.PageFetcherFunc(func(ctx context.Context, pageURL string) (pagination.Page, error) {
		payload, err := c.do(ctx, pageURL, opts)
		if err != nil {
			return pagination.Page{}, err
		}
		if pages == 0 {
			noContent = payload.NoContent
		}
		pages++
		return pagination.Page{
			Body: payload.Body,
			Next: pagination.NextLink(payload.Header),
		}, nil
	})

	items, err := pagination.Collect(ctx, fetcher, u, c.config.Pagination)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []any{}
	}
	return &Collection{Items: items, NoContent: noContent && len(items) == 0}, nil
}

// FetchPage implements pagination.PageFetcher with plain GETs.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (pagination.Page, error) {
	payload, err := c.do(ctx, pageURL, Options{})
	if err != nil {
		return pagination.Page{}, err
	}
	return pagination.Page{Body: payload.Body, Next: pagination.NextLink(payload.Header)}, nil
}

// Resolve turns a target into an absolute URL. Absolute http(s) URLs are used
// as-is; relative paths are joined to BaseURL and AccountID.
func (c *Client) Resolve(target string, query url.Values) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.New(errors.CodeInvalidInput, "empty request target")
	}

	var raw string
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		raw = target
	} else {
		if c.config.AccountID == "" {
			return "", errors.WithContext(
				errors.New(CodeNoAccountID, "relative target requires an account id"),
				"target", target,
			)
		}
		raw = strings.TrimRight(c.config.BaseURL, "/") + "/" +
			url.PathEscape(c.config.AccountID) + "/" +
			strings.TrimLeft(target, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput, "invalid request target")
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// do executes one logical call against an absolute URL.
func (c *Client) do(ctx context.Context, target string, opts Options) (*Payload, error) {
	endpoint := endpointLabel(target)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var body []byte
	if opts.Body != nil {
		body, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "encode request body")
		}
	}

	if err := c.config.Pacing.Wait(ctx); err != nil {
		return nil, newTransportError(err, target, ErrorClassCancelled)
	}

	var payload *Payload
	err = retryWithBackoff(ctx, c.config.Retry, c.logger.With().Str("endpoint", endpoint).Logger(), func(attempt int) error {
		p, err := c.attempt(ctx, target, token, body, opts)
		if err != nil {
			class := ClassOf(err)
			errorsTotal.WithLabelValues(string(class)).Inc()
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// attempt performs exactly one HTTP exchange under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, target, token string, body []byte, opts Options) (*Payload, error) {
	endpoint := endpointLabel(target)

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "create request")
	}
	for key, values := range opts.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classifyTransport(ctx, attemptCtx)
		requestsTotal.WithLabelValues(endpoint, string(class)).Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Str("error_class", string(class)).Msg("HTTP request failed")
		return nil, newTransportError(err, target, class)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		class := classifyTransport(ctx, attemptCtx)
		requestsTotal.WithLabelValues(endpoint, string(class)).Inc()
		return nil, newTransportError(err, target, class)
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(classifyStatus(resp.StatusCode))).
			Msg("Upstream request error")
		return nil, newStatusError(resp, data, target)
	}

	payload := &Payload{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		URL:        target,
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		payload.NoContent = true
		return payload, nil
	}

	decoded, err := entity.Decode(data)
	if err != nil {
		return nil, errors.WrapWithContext(err, CodeUpstreamAPI, "upstream returned invalid JSON", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    target,
		})
	}
	payload.Body = decoded
	return payload, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.config.Token == nil {
		return "", errors.New(CodeNotAuthenticated, "no access token configured")
	}
	token, err := c.config.Token.Token(ctx)
	if err != nil {
		return "", errors.Wrap(err, CodeNotAuthenticated, "obtain access token")
	}
	if token == "" {
		return "", errors.New(CodeNotAuthenticated, "no access token available")
	}
	return token, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var numericSegment = regexp.MustCompile(`/\d+(\.json)?(/|$)`)

// endpointLabel reduces a URL to a low-cardinality metrics label by
// replacing numeric path segments with ":id".
func endpointLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	path := u.Path
	for {
		next := numericSegment.ReplaceAllString(path, "/:id$1$2")
		if next == path {
			return path
		}
		path = next
	}
}
