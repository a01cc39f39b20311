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
	"api-gateway-go/internal/users"
)

func main() {
	var cli config.PostgresCLI
	kong.Parse(&cli,
		kong.Name("user-service"),
		kong.Description("User management service backed by PostgreSQL."),
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
			users.NewRepository,
			fx.Annotate(
				func(r *users.Repository) *users.Repository { return r },
				fx.As(new(users.Store)),
			),
			users.NewHandler,
			backend.NewRouter,
		),
		fx.Invoke(migrate, registerRoutes, backend.StartServer),
	).Run()
}

func newLogger(cli *config.ServiceCLI) *slog.Logger {
	return logging.New(cli.LogLevel, cli.LogFormat).With("service", users.ServiceName)
}

func migrate(lc fx.Lifecycle, repo *users.Repository, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("users schema ready")
			return nil
		},
	})
}

func registerRoutes(r *chi.Mux, h *users.Handler, db *sql.DB) {
	r.Get("/health", backend.HealthHandler(users.ServiceName, db.PingContext))
	h.Routes(r)
}
