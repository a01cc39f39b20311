package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"api-gateway-go/internal/backend"
	"api-gateway-go/internal/config"
	"api-gateway-go/internal/database"
	"api-gateway-go/internal/logging"
	"api-gateway-go/internal/orders"
)

func main() {
	var cli config.PostgresCLI
	kong.Parse(&cli,
		kong.Name("order-service"),
		kong.Description("Order processing service backed by PostgreSQL."),
	)

	fx.New(
		database.LifecycleTimeouts(),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.PostgresCLI { return &cli },
			func() *config.ServiceCLI { return &cli.ServiceCLI },
			newLogger,
			database.OpenPostgres,
			orders.NewRepository,
			fx.Annotate(
				func(r *orders.Repository) *orders.Repository { return r },
				fx.As(new(orders.Store)),
			),
			orders.NewHandler,
			backend.NewRouter,
		),
		fx.Invoke(migrate, registerRoutes, backend.StartServer),
	).Run()
}

func newLogger(cli *config.ServiceCLI) *slog.Logger {
	return logging.New(cli.LogLevel, cli.LogFormat).With("service", orders.ServiceName)
}

func migrate(lc fx.Lifecycle, repo *orders.Repository, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("orders schema ready")
			return nil
		},
	})
}

func registerRoutes(r *chi.Mux, h *orders.Handler, db *sql.DB) {
	r.Get("/health", backend.HealthHandler(orders.ServiceName, db.PingContext))
	h.Routes(r)
}
