package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/perplext/bountyscope/internal/version"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/jsonutil"
	"github.com/perplext/bountyscope/pkg/metrics"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/utils"
)

// DefaultTimeout bounds a single HTTP request
const DefaultTimeout = 60 * time.Second

// Fetcher performs one logical GET against a platform API
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) (Result, error)
}

// Result is the outcome of a Fetch. Degraded is set when every attempt
// failed and Body was replaced by an empty object.
type Result struct {
	Body       models.RawPage
	Degraded   bool
	StatusCode int
	Attempts   int
}

// HTTPClient is an HTTP client with built-in rate limiting and retry logic.
// One instance serves exactly one platform.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	platform    string
	auth        models.Auth
	logger      *utils.Logger
	sink        metrics.Sink
}

// HTTPClientConfig holds configuration for the HTTP client
type HTTPClientConfig struct {
	Platform    string            // Platform name used in logs and metrics
	Timeout     time.Duration     // HTTP client timeout
	RetryConfig RetryConfig       // Retry configuration
	Auth        models.Auth       // Credentials applied to every request
	Transport   http.RoundTripper // Optional transport override
	Logger      *utils.Logger     // Logger instance
	Sink        metrics.Sink      // Retry events
}

// NewHTTPClient creates a new HTTP client with rate limiting and retry logic
func NewHTTPClient(rateLimiter *RateLimiter, config HTTPClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RetryConfig.MaxAttempts == 0 {
		config.RetryConfig = DefaultRetryConfig()
	}
	if config.RetryConfig.RetryableErrors == nil {
		config.RetryConfig.RetryableErrors = IsTransient
	}
	if config.Logger == nil {
		config.Logger = utils.NewNopLogger()
	}
	if config.Sink == nil {
		config.Sink = metrics.Nop{}
	}
	if rateLimiter == nil {
		rateLimiter = New(DefaultConfig())
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rateLimiter,
		retryConfig: config.RetryConfig,
		platform:    config.Platform,
		auth:        config.Auth,
		logger:      config.Logger,
		sink:        config.Sink,
	}
}

// Fetch GETs endpoint with params merged into its query and decodes the
// JSON object it returns.
//
// Transient failures are retried. Once the attempts are exhausted Fetch
// returns an empty degraded Result and a nil error. Any other failure
// (4xx, cancellation) is returned as an error.
func (c *HTTPClient) Fetch(ctx context.Context, endpoint string, params url.Values) (Result, error) {
	target, err := buildURL(endpoint, params)
	if err != nil {
		return Result{Body: models.RawPage{}}, bserrors.FatalError("invalid endpoint", err).
			WithContext("endpoint", endpoint)
	}

	var page models.RawPage
	var status int

	fn := func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}

		if c.logger.IsLevelEnabled(utils.DEBUG) {
			c.logger.Debug("GET %s", target)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return bserrors.FatalError("failed to build request", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		c.auth.Apply(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return bserrors.TransientError("request failed", err).WithContext("endpoint", target)
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			statusErr := bserrors.HTTPStatusError(target, resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
				if wait := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); wait > 0 {
					c.logger.Warn("Rate limited by %s, retry after %s", c.platform, wait)
					statusErr.WithContext(retryAfterKey, wait)
				}
			}
			return statusErr
		}

		body, err := jsonutil.DecodeObject(resp.Body)
		if err != nil {
			return bserrors.TransientError("invalid JSON response", err).WithContext("endpoint", target)
		}
		page = body
		return nil
	}

	cfg := c.retryConfig
	cfg.OnAttemptFailed = func(attempt int, err error) {
		c.sink.RetryAttempt(c.platform, target, attempt, err)
	}
	cfg.DelayFloor = RetryAfter

	result, err := RetryWithBackoffAndMetrics(ctx, cfg, fn)
	if err == nil {
		return Result{Body: page, StatusCode: status, Attempts: result.Attempts}, nil
	}

	if errors.Is(err, ErrRetriesExhausted) {
		c.sink.RetryExhausted(c.platform, target, result.Attempts, result.LastError)
		return Result{
			Body:       models.RawPage{},
			Degraded:   true,
			StatusCode: status,
			Attempts:   result.Attempts,
		}, nil
	}

	return Result{Body: models.RawPage{}, StatusCode: status, Attempts: result.Attempts}, err
}

// Platform returns the platform this client serves
func (c *HTTPClient) Platform() string {
	return c.platform
}

const retryAfterKey = "retry_after"

// RetryAfter returns the wait a rate-limited response asked for, or 0
func RetryAfter(err error) time.Duration {
	if wait, ok := bserrors.GetContext(err)[retryAfterKey].(time.Duration); ok {
		return wait
	}
	return 0
}

// parseRetryAfter reads a Retry-After value in delta-seconds or HTTP-date form
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}

func buildURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q is not absolute", endpoint)
	}
	if len(params) == 0 {
		return u.String(), nil
	}

	query := u.Query()
	for key, values := range params {
		query.Del(key)
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// HTTPClientFactory builds one client per platform, each with its own
// rate limiter.
type HTTPClientFactory struct {
	retryConfig RetryConfig
	timeout     time.Duration
	transport   http.RoundTripper
	logger      *utils.Logger
	sink        metrics.Sink
}

// NewHTTPClientFactory creates a new HTTP client factory
func NewHTTPClientFactory(retryConfig RetryConfig, timeout time.Duration, logger *utils.Logger, sink metrics.Sink) *HTTPClientFactory {
	return &HTTPClientFactory{
		retryConfig: retryConfig,
		timeout:     timeout,
		logger:      logger,
		sink:        sink,
	}
}

// WithTransport sets the transport used by every client created afterwards
func (f *HTTPClientFactory) WithTransport(rt http.RoundTripper) *HTTPClientFactory {
	f.transport = rt
	return f
}

// CreateClient creates a new HTTP client for a platform
func (f *HTTPClientFactory) CreateClient(src models.PlatformSource) *HTTPClient {
	limiter := New(Config{
		RPS:          src.RPS,
		Burst:        src.Burst,
		RequestDelay: src.RequestDelay,
	})

	logger := f.logger
	if logger != nil {
		logger = logger.Named(src.Name)
		logger.Debug("Pacing %s", limiter.Stats())
	}

	return NewHTTPClient(limiter, HTTPClientConfig{
		Platform:    src.Name,
		Timeout:     f.timeout,
		RetryConfig: f.retryConfig,
		Auth:        src.Auth,
		Transport:   f.transport,
		Logger:      logger,
		Sink:        f.sink,
	})
}
