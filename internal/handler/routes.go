package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"api-gateway-go/internal/config"
	"api-gateway-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// Resource routing under /api/ is resolved by the dispatcher, not by echo.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/", health.Index)
	e.GET("/health", health.Health)
	e.GET("/health/backends", health.Backends)

	e.Any("/api/*", proxy.Handle)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
