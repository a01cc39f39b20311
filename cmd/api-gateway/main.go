package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"api-gateway-go/internal/client"
	"api-gateway-go/internal/config"
	"api-gateway-go/internal/handler"
	"api-gateway-go/internal/logging"
	"api-gateway-go/internal/metrics"
	"api-gateway-go/internal/middleware"
	"api-gateway-go/internal/route"
	"api-gateway-go/internal/service"
)

// Set by build ldflags.
var (
	version = "1.0.0"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("api-gateway"),
		kong.Description("HTTP gateway routing /api/<resource> requests to the user, order and product services."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newRouteTable,
			newEcho,
			client.NewBackendClient,
			service.NewDispatcher,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

func newRouteTable(cfg *config.Config, logger *slog.Logger) (*route.Table, error) {
	t, err := route.NewTable(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("route table: %w", err)
	}
	for _, r := range t.Routes() {
		logger.Info("route registered",
			"resource", r.Resource,
			"service", r.Service,
			"base_url", r.BaseURL,
			"collection_methods", r.AllowedMethods(route.Collection),
			"entity_methods", r.AllowedMethods(route.Entity),
		)
	}
	return t, nil
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, table *route.Table) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	// Inbound timeouts to mitigate slow-client attacks. Responses are fully
	// buffered and bounded by the upstream timeout, so a write timeout is safe.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = cfg.Upstream.Timeout.Std() + 30*time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	resources := make([]string, 0, len(table.Routes()))
	for _, r := range table.Routes() {
		resources = append(resources, r.Resource)
	}
	var extra []string
	if cfg.Metrics.Enabled {
		extra = append(extra, cfg.Metrics.Path)
	}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m, metrics.NewPathNormalizer(resources, extra...)))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.CORS.Enabled {
		e.Use(middleware.CORS(cfg.Server.CORS))
		logger.Info("cors enabled", "origins", cfg.Server.CORS.AllowOrigins)
	}

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimit(cfg.Server.RateLimit))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "version", version)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
