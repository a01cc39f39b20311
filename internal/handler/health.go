package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"api-gateway-go/internal/client"
	"api-gateway-go/internal/config"
	"api-gateway-go/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

const serviceName = "api-gateway"

// HealthHandler serves the gateway's own health and index endpoints.
type HealthHandler struct {
	table   *route.Table
	client  *client.BackendClient
	timeout time.Duration
	version Version
	logger  *slog.Logger
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, table *route.Table, bc *client.BackendClient, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		table:   table,
		client:  bc,
		timeout: cfg.Upstream.Timeout.Std(),
		version: v,
		logger:  logger.With("component", "health_handler"),
		now:     time.Now,
	}
}

func (h *HealthHandler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

// Health reports gateway liveness. It never contacts a backend.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": h.timestamp(),
	})
}

// Index describes the gateway and the collection URL of every proxied resource.
func (h *HealthHandler) Index(c echo.Context) error {
	services := make(map[string]string, len(h.table.Routes()))
	for _, r := range h.table.Routes() {
		services[r.Resource] = r.CollectionURL()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message":   "API Gateway - Microservices Platform",
		"version":   string(h.version),
		"services":  services,
		"timestamp": h.timestamp(),
	})
}

// BackendStatus is the probe outcome for one backend.
type BackendStatus struct {
	Service    string          `json:"service"`
	URL        string          `json:"url"`
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Backends probes every backend's /health endpoint concurrently.
// It answers 200 when all backends are healthy and 503 otherwise.
func (h *HealthHandler) Backends(c echo.Context) error {
	routes := h.table.Routes()
	results := make([]BackendStatus, len(routes))

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	var g errgroup.Group
	for i, r := range routes {
		g.Go(func() error {
			results[i] = h.probe(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	byResource := make(map[string]BackendStatus, len(routes))
	for i, r := range routes {
		byResource[r.Resource] = results[i]
		if results[i].Status != "healthy" {
			healthy = false
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status":    status,
		"service":   serviceName,
		"backends":  byResource,
		"timestamp": h.timestamp(),
	})
}

func (h *HealthHandler) probe(ctx context.Context, r *route.Route) BackendStatus {
	url := r.BaseURL + "/health"
	st := BackendStatus{Service: r.Service, URL: url}

	resp, err := h.client.Send(ctx, r.Service, http.MethodGet, url, http.Header{"Accept": {"application/json"}}, nil)
	if err != nil {
		h.logger.Warn("backend health probe failed",
			"service", r.Service,
			"err", err,
		)
		st.Status = "unreachable"
		st.Error = "service unavailable"
		return st
	}

	st.StatusCode = resp.StatusCode
	if json.Valid(resp.Body) {
		st.Detail = resp.Body
	}
	if resp.StatusCode == http.StatusOK {
		st.Status = "healthy"
	} else {
		st.Status = "unhealthy"
	}
	return st
}
