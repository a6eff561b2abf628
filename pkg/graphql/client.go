// Package graphql provides the low-level query executor for the licensing
// registry endpoint: one POST per query, a shared session, and retry with
// exponential backoff tuned for a service that is known to be slow.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for query execution.
var (
	queryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_queries_total",
		Help: "Total GraphQL queries by operation and outcome",
	}, []string{"operation", "outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_query_duration_seconds",
		Help:    "GraphQL query duration in seconds by operation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
	}, []string{"operation"})

	queryRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_query_retries_total",
		Help: "Total query retry attempts by operation",
	}, []string{"operation"})

	queryRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_query_retry_exhausted_total",
		Help: "Total queries that exhausted all retry attempts",
	}, []string{"operation"})
)

// Response is a GraphQL response envelope. A response may carry Data, an
// Errors list, or both; an Errors list is application-level information and
// is returned to the caller as data, never retried.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []ResponseError `json:"errors,omitempty"`
}

// ResponseError is a single entry of the GraphQL errors list.
type ResponseError struct {
	Message string `json:"message"`
}

// HasErrors reports whether the response carries an application-level
// error list.
func (r *Response) HasErrors() bool {
	return len(r.Errors) > 0
}

// ErrorMessages joins the error list into one printable string.
func (r *Response) ErrorMessages() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Config holds the executor configuration.
type Config struct {
	// Endpoint is the GraphQL endpoint URL.
	Endpoint string

	// UserAgent sent with every request.
	UserAgent string

	// Timeout per request. The registry is slow; the production value is
	// three minutes.
	Timeout time.Duration

	// MaxAttempts is the total attempt ceiling per query, including the
	// first request.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt; it doubles
	// after every failed attempt.
	InitialBackoff time.Duration
}

// DefaultConfig returns the production configuration for an endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		Timeout:        180 * time.Second,
		MaxAttempts:    10,
		InitialBackoff: 2 * time.Second,
	}
}

// Client executes GraphQL queries against a single endpoint. It is stateless
// across invocations except for the shared HTTP session.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a query executor.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}

	logger := log.With().Str("component", "query-executor").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Execute runs one GraphQL query with retry and backoff. Transport failures,
// timeouts, and non-2xx statuses are retried up to the attempt ceiling;
// exhaustion surfaces a QueryError wrapping ErrRetryExhausted. A structurally
// valid response containing a GraphQL errors list is returned as data.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	operation := OperationName(query)

	startTime := time.Now()
	defer func() {
		queryDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	if variables == nil {
		variables = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query payload: %w", err)
	}

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		resp, err := c.post(ctx, payload)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Query succeeded after retry")
			}
			if resp.HasErrors() {
				queryRequestsTotal.WithLabelValues(operation, "graphql_error").Inc()
			} else {
				queryRequestsTotal.WithLabelValues(operation, "ok").Inc()
			}
			return resp, nil
		}

		lastErr = err
		queryRequestsTotal.WithLabelValues(operation, "transport_error").Inc()

		if attempt >= c.config.MaxAttempts {
			break
		}

		queryRetriesTotal.WithLabelValues(operation).Inc()
		c.logger.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", c.config.MaxAttempts).
			Dur("backoff", backoff).
			Msg("Query failed, retrying after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	queryRetryExhaustedTotal.WithLabelValues(operation).Inc()
	c.logger.Error().
		Err(lastErr).
		Str("operation", operation).
		Int("max_attempts", c.config.MaxAttempts).
		Msg("Query retry attempts exhausted")

	return nil, &QueryError{
		Operation: operation,
		Attempts:  c.config.MaxAttempts,
		Err:       fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr),
	}
}

// post sends the payload once and decodes the response envelope.
func (c *Client) post(ctx context.Context, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &envelope, nil
}

// OperationName extracts the operation name from a query document for use as
// a metrics and logging label. Unnamed queries report as "anonymous".
func OperationName(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		if f != "query" && f != "mutation" {
			continue
		}
		if i+1 >= len(fields) {
			break
		}
		name := fields[i+1]
		if idx := strings.IndexAny(name, "({"); idx >= 0 {
			name = name[:idx]
		}
		if name != "" {
			return name
		}
	}
	return "anonymous"
}
