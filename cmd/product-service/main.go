package main

import (
	"context"
	"log/slog"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"api-gateway-go/internal/backend"
	"api-gateway-go/internal/config"
	"api-gateway-go/internal/database"
	"api-gateway-go/internal/logging"
	"api-gateway-go/internal/products"
)

func main() {
	var cli config.MongoCLI
	kong.Parse(&cli,
		kong.Name("product-service"),
		kong.Description("Product catalog service backed by MongoDB."),
	)

	fx.New(
		database.LifecycleTimeouts(),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.MongoCLI { return &cli },
			func() *config.ServiceCLI { return &cli.ServiceCLI },
			newLogger,
			database.ConnectMongo,
			products.NewRepository,
			fx.Annotate(
				func(r *products.Repository) *products.Repository { return r },
				fx.As(new(products.Store)),
			),
			products.NewHandler,
			backend.NewRouter,
		),
		fx.Invoke(ensureIndexes, registerRoutes, backend.StartServer),
	).Run()
}

func newLogger(cli *config.ServiceCLI) *slog.Logger {
	return logging.New(cli.LogLevel, cli.LogFormat).With("service", products.ServiceName)
}

func ensureIndexes(lc fx.Lifecycle, repo *products.Repository, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := repo.EnsureIndexes(ctx); err != nil {
				return err
			}
			logger.Info("products indexes ready")
			return nil
		},
	})
}

func registerRoutes(r *chi.Mux, h *products.Handler, db *mongo.Database) {
	r.Get("/health", backend.HealthHandler(products.ServiceName, database.MongoPinger(db.Client())))
	h.Routes(r)
}
