// Package fetch performs origin retrieval for intercepted requests.
// It contains no caching logic: transport failures are returned as
// *NetworkError and HTTP statuses are passed through untouched.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swcache_fetch_requests_total",
		Help: "Total origin fetches by method and status",
	}, []string{"method", "status"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swcache_fetch_duration_seconds",
		Help:    "Origin fetch duration in seconds by method",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swcache_fetch_errors_total",
		Help: "Total fetch errors and error responses by class",
	}, []string{"class"})
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Config holds the client configuration.
type Config struct {
	// UserAgent is sent when the intercepted request has none.
	UserAgent string

	// Timeout bounds one attempt including reading the response body.
	Timeout time.Duration

	// Retry controls retries of transport failures.
	Retry RetryConfig

	// Transport overrides the HTTP transport (for testing).
	Transport http.RoundTripper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches requests from the origin.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new fetch client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
			// Redirects are the caller's business, as for any proxy.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config: cfg,
		logger: log.With().Str("component", "fetch").Logger(),
	}, nil
}

// Fetch performs the request against the origin.
// On success the caller owns the response body.
func (c *Client) Fetch(ctx context.Context, req *request.Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	startTime := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	var resp *http.Response
	attempts, class, err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() *attemptError {
		out, err := c.outbound(ctx, method, req)
		if err != nil {
			return &attemptError{class: ErrorClassCancelled, err: err}
		}

		r, err := c.httpClient.Do(out)
		if err != nil {
			class := classifyError(err)
			fetchErrorsTotal.WithLabelValues(string(class)).Inc()
			fetchRequestsTotal.WithLabelValues(method, string(class)).Inc()
			c.logger.Debug().Err(err).
				Str("url", req.URL.String()).
				Str("error_class", string(class)).
				Msg("Fetch attempt failed")
			return &attemptError{class: class, err: err}
		}

		resp = r
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).
			Str("url", req.URL.String()).
			Str("error_class", string(class)).
			Int("attempts", attempts).
			Msg("Fetch failed")
		return nil, &NetworkError{
			URL:        req.URL.String(),
			ErrorClass: class,
			Attempts:   attempts,
			Err:        err,
		}
	}

	fetchRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	if errClass := classifyStatus(resp.StatusCode); errClass != "" {
		fetchErrorsTotal.WithLabelValues(string(errClass)).Inc()
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Fetched from origin")

	return resp, nil
}

// outbound builds a fresh outgoing request; bodies are re-read on every attempt.
func (c *Client) outbound(ctx context.Context, method string, req *request.Request) (*http.Request, error) {
	var body *bytes.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	var out *http.Request
	var err error
	if body != nil {
		out, err = http.NewRequestWithContext(ctx, method, req.URL.String(), body)
	} else {
		out, err = http.NewRequestWithContext(ctx, method, req.URL.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if req.Header != nil {
		out.Header = req.Header.Clone()
	}
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	if out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.config.UserAgent)
	}

	return out, nil
}
