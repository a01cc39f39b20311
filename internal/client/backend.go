// Package client provides the outbound HTTP client used to call backend services.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"api-gateway-go/internal/config"
	"api-gateway-go/internal/metrics"
)

// ErrResponseTooLarge is returned when a backend body exceeds upstream.max_response_bytes.
var ErrResponseTooLarge = errors.New("backend response exceeds size limit")

// Response is a fully buffered backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BackendClient sends requests to backend services. It makes exactly one
// attempt per call; there is no retry.
type BackendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxBody    int64
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable backend metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	timeout := cfg.Upstream.Timeout.Std()

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	maxBody := cfg.Upstream.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}

	return &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			// Backend redirects are relayed to the client, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "backend_client"),
		metrics: m,
		maxBody: maxBody,
	}
}

// Send builds and executes a request against a backend and buffers the response body.
// The provided context bounds the whole exchange, body read included; when it is
// canceled (e.g. client disconnects) the backend request is abandoned.
func (c *BackendClient) Send(ctx context.Context, service, method, url string, header http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	return c.Do(req, service)
}

// Do executes req and reads the response body, bounded by the size limit.
func (c *BackendClient) Do(req *http.Request, service string) (*Response, error) {
	c.logger.Debug("backend request",
		"service", service,
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	method := metrics.NormalizeMethod(req.Method)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(service, method, start)
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	c.observe(service, method, start)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, c.maxBody)
	}

	if c.metrics != nil {
		c.metrics.BackendResponses.WithLabelValues(service, method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *BackendClient) observe(service, method string, start time.Time) {
	if c.metrics != nil {
		c.metrics.BackendDuration.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
	}
}
