// Package client implements the upstream query interface against the VK API
// (wall.search): one request per page window, with request pacing and error
// classification.
package client

import (
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

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/logging"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_upstream_requests_total",
		Help: "Total upstream requests by API method and status",
	}, []string{"method", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by API method",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
	}, []string{"method"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Defaults for the VK API.
const (
	DefaultBaseURL    = "https://api.vk.com/method"
	DefaultMethod     = "wall.search"
	DefaultAPIVersion = "5.122"
)

// Client queries one VK API method.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string

	// Method is the API method, e.g. "wall.search".
	Method string

	// AccessToken is sent with every request. It is never logged.
	AccessToken string

	// APIVersion is sent as the "v" parameter.
	APIVersion string

	// UserAgent header (optional)
	UserAgent string

	// Rate limiting shared by all requests of this client
	RateLimit ratelimit.Config

	// HTTPTimeout bounds a single HTTP exchange; page timeouts set by the
	// caller's context apply as well.
	HTTPTimeout time.Duration
}

// DefaultConfig returns a configuration for wall.search.
func DefaultConfig(accessToken string) Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Method:      DefaultMethod,
		AccessToken: accessToken,
		APIVersion:  DefaultAPIVersion,
		UserAgent:   "vk-bilingual-corpus/0.1.0",
		RateLimit:   ratelimit.DefaultConfig(),
		HTTPTimeout: 30 * time.Second,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if cfg.Method == "" {
		return nil, fmt.Errorf("api method is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	logger := logging.NewLogger("vk-client")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		limiter: ratelimit.NewLimiter(cfg.RateLimit, logger),
		config:  cfg,
		logger:  logger,
	}, nil
}

// URL returns the method endpoint.
func (c *Client) URL() string {
	return c.config.BaseURL + "/" + c.config.Method
}

// Method returns the configured API method.
func (c *Client) Method() string {
	return c.config.Method
}

// envelope is the VK reply: exactly one of Response and Error is set.
type envelope struct {
	Response *struct {
		Count *int   `json:"count"`
		Items []item `json:"items"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_msg"`
	} `json:"error"`
}

type item struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Date    int64  `json:"date"`
	Text    string `json:"text"`
}

// FetchPage requests count items starting at offset. query carries the
// method parameters (e.g. domain, query); offset, count, v and access_token
// are set by the client.
func (c *Client) FetchPage(ctx context.Context, query url.Values, offset, count int) (*corpus.Page, error) {
	method := c.config.Method

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.fail(&UpstreamError{
			ErrorClass: ErrorClassNetwork,
			Message:    "waiting for rate limiter",
			Err:        err,
		}, "rate_limited")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(query, offset, count), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("method", method).
		Int("offset", offset).
		Int("count", count).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			// The request URL carries the access token.
			urlErr.URL = c.URL()
		}
		return nil, c.fail(&UpstreamError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}, "network_error")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(&UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}, strconv.Itoa(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(&UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}, "network_error")
	}

	page, err := decodePage(body)
	if err != nil {
		if ue, ok := err.(*UpstreamError); ok {
			ue.StatusCode = resp.StatusCode
		}
		return nil, c.fail(err, "api_error")
	}

	upstreamRequestsTotal.WithLabelValues(method, "200").Inc()
	c.logger.Debug().
		Str("method", method).
		Int("offset", offset).
		Int("items", len(page.Items)).
		Int("total", page.Total).
		Msg("Upstream page received")

	return page, nil
}

// decodePage turns a reply body into a Page. An error envelope is never
// treated as an empty page.
func decodePage(body []byte) (*corpus.Page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &UpstreamError{
			ErrorClass: ErrorClassProtocol,
			Message:    "decode response",
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}

	if env.Error != nil {
		return nil, &UpstreamError{
			ErrorClass: classifyAPICode(env.Error.Code),
			Code:       env.Error.Code,
			Message:    env.Error.Message,
		}
	}

	if env.Response == nil || env.Response.Count == nil {
		return nil, &UpstreamError{
			ErrorClass: ErrorClassProtocol,
			Message:    "reply has no response.count",
			Err:        ErrMalformedResponse,
		}
	}
	if *env.Response.Count < 0 {
		return nil, &UpstreamError{
			ErrorClass: ErrorClassProtocol,
			Message:    fmt.Sprintf("negative result count %d", *env.Response.Count),
			Err:        ErrMalformedResponse,
		}
	}

	page := &corpus.Page{
		Total: *env.Response.Count,
		Items: make([]corpus.RawPost, 0, len(env.Response.Items)),
	}
	for _, it := range env.Response.Items {
		page.Items = append(page.Items, corpus.RawPost{
			ID:        fmt.Sprintf("%d_%d", it.OwnerID, it.ID),
			CreatedAt: time.Unix(it.Date, 0).UTC(),
			Text:      it.Text,
		})
	}
	return page, nil
}

// requestURL builds the request URL without mutating query.
func (c *Client) requestURL(query url.Values, offset, count int) string {
	params := url.Values{}
	for key, values := range query {
		params[key] = append([]string(nil), values...)
	}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("count", strconv.Itoa(count))
	params.Set("v", c.config.APIVersion)
	params.Set("access_token", c.config.AccessToken)

	return c.URL() + "?" + params.Encode()
}

// fail records metrics and logs for a failed request and returns err.
func (c *Client) fail(err error, status string) error {
	class := ErrorClassProtocol
	if ue, ok := err.(*UpstreamError); ok {
		class = ue.ErrorClass
	}

	upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
	upstreamRequestsTotal.WithLabelValues(c.config.Method, status).Inc()

	c.logger.Warn().
		Err(err).
		Str("method", c.config.Method).
		Str("error_class", string(class)).
		Msg("Upstream request error")

	return err
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
