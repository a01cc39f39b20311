// Package service implements the gateway's request dispatching logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"api-gateway-go/internal/client"
	"api-gateway-go/internal/config"
	"api-gateway-go/internal/metrics"
	"api-gateway-go/internal/model"
	"api-gateway-go/internal/route"
)

// ErrMethodNotAllowed is matched by every *MethodNotAllowedError.
var ErrMethodNotAllowed = errors.New("method not allowed")

// MethodNotAllowedError reports a verb outside the route's allowed set for the path shape.
type MethodNotAllowedError struct {
	Method  string
	Service string
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("method %s not allowed for %s service (allowed: %s)",
		e.Method, e.Service, strings.Join(e.Allowed, ", "))
}

// Is reports whether target is ErrMethodNotAllowed.
func (e *MethodNotAllowedError) Is(target error) bool {
	return target == ErrMethodNotAllowed
}

// Sender performs one outbound call to a backend.
type Sender interface {
	Send(ctx context.Context, service, method, url string, header http.Header, body []byte) (*client.Response, error)
}

// forwardableRequestHeaders are the only request headers forwarded to backends.
// Accept-Encoding is left to the transport so bodies arrive decoded.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"X-Request-Id",
}

// forwardableResponseHeaders are the only response headers relayed to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":  true,
	"Cache-Control": true,
	"Etag":          true,
	"Last-Modified": true,
	"Location":      true,
}

const userAgent = "api-gateway-go/1.0"

// Dispatcher resolves inbound requests against the route table and forwards
// each one to its backend exactly once.
type Dispatcher struct {
	table   *route.Table
	sender  Sender
	timeout time.Duration
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. The metrics parameter is optional.
func NewDispatcher(table *route.Table, sender *client.BackendClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return newDispatcher(table, sender, cfg, logger, m)
}

func newDispatcher(table *route.Table, sender Sender, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		table:   table,
		sender:  sender,
		timeout: cfg.Upstream.Timeout.Std(),
		metrics: m,
		logger:  logger.With("component", "dispatcher"),
	}
	if d.timeout <= 0 {
		d.timeout = 5 * time.Second
	}
	if cfg.Upstream.MaxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(cfg.Upstream.MaxConcurrent)
	}
	return d
}

// Dispatch forwards pr to the backend owning its resource.
//
// Requests the gateway rejects itself return route.ErrRouteNotFound or a
// *MethodNotAllowedError and make no outbound call. Otherwise exactly one
// outbound call is made and its outcome is returned as a ProxyResult; transport
// failures are a BackendUnavailable result, never an error.
func (d *Dispatcher) Dispatch(ctx context.Context, pr *model.ProxyRequest) (*model.ProxyResult, error) {
	match, err := d.table.Resolve(pr.Path)
	if err != nil {
		d.reject("route_not_found")
		d.logger.Warn("no route for request", "method", pr.Method, "path", pr.Path)
		return nil, fmt.Errorf("resolve %s: %w", pr.Path, err)
	}

	r := match.Route
	if !r.Allows(match.Shape, pr.Method) {
		d.reject("method_not_allowed")
		d.logger.Warn("method not allowed",
			"service", r.Service,
			"method", pr.Method,
			"path", pr.Path,
			"shape", match.Shape.String(),
		)
		return nil, &MethodNotAllowedError{
			Method:  pr.Method,
			Service: r.Service,
			Allowed: r.AllowedMethods(match.Shape),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			// Running out of time while queued means every slot stayed busy.
			reason := classify(err)
			if reason == "timeout" {
				reason = "saturated"
			}
			return d.unavailable(r, reason, fmt.Errorf("acquire backend slot: %w", err)), nil
		}
		defer d.sem.Release(1)
	}

	header := d.outboundHeader(pr.Header)
	var body []byte
	if pr.Method == http.MethodPost || pr.Method == http.MethodPut {
		body = pr.Body
		if body == nil {
			body = []byte{}
		}
		header.Set("Content-Type", "application/json")
	}

	target := r.TargetURL(match.EntityID, pr.RawQuery)
	d.logger.Debug("forwarding request",
		"service", r.Service,
		"method", pr.Method,
		"target", target,
	)

	resp, err := d.sender.Send(ctx, r.Service, pr.Method, target, header, body)
	if err != nil {
		if errors.Is(err, client.ErrResponseTooLarge) {
			return d.invalid(r, err), nil
		}
		return d.unavailable(r, classify(err), err), nil
	}

	if len(bytes.TrimSpace(resp.Body)) > 0 && !json.Valid(resp.Body) {
		return d.invalid(r, fmt.Errorf("backend returned non-JSON body with status %d", resp.StatusCode)), nil
	}

	return model.RelayedResult(r.Service, resp.StatusCode, filterResponseHeaders(resp.Header), resp.Body), nil
}

// Table returns the route table the dispatcher resolves against.
func (d *Dispatcher) Table() *route.Table {
	return d.table
}

func (d *Dispatcher) unavailable(r *route.Route, reason string, err error) *model.ProxyResult {
	d.logger.Error("backend unavailable",
		"service", r.Service,
		"reason", reason,
		"err", err,
	)
	if d.metrics != nil {
		d.metrics.BackendFailures.WithLabelValues(r.Service, reason).Inc()
	}
	return model.UnavailableResult(r.Service, reason)
}

func (d *Dispatcher) invalid(r *route.Route, err error) *model.ProxyResult {
	d.logger.Error("invalid backend response",
		"service", r.Service,
		"err", err,
	)
	if d.metrics != nil {
		d.metrics.BackendFailures.WithLabelValues(r.Service, "invalid_response").Inc()
	}
	return model.InvalidResult(r.Service, err.Error())
}

func (d *Dispatcher) reject(reason string) {
	if d.metrics != nil {
		d.metrics.Rejected.WithLabelValues(reason).Inc()
	}
}

// classify maps a transport error to a bounded reason label.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "connection"
}

func (d *Dispatcher) outboundHeader(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	return dst
}
