package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/fx"

	"api-gateway-go/internal/config"
)

// ConnectMongo creates a MongoDB client and returns the configured database.
// The server is pinged on fx start and the client disconnected on stop.
func ConnectMongo(lc fx.Lifecycle, cli *config.MongoCLI, logger *slog.Logger) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cli.URI()).
		SetServerSelectionTimeout(5 * time.Second).
		SetAppName("product-service")

	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	logger = logger.With("component", "mongodb", "uri", cli.Redacted())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := WaitForDB(ctx, MongoPinger(client), ReadyTimeout); err != nil {
				return fmt.Errorf("mongodb not ready: %w", err)
			}
			logger.Info("mongodb connected")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("disconnecting mongodb")
			return client.Disconnect(ctx)
		},
	})

	return client.Database(cli.MongoDB), nil
}

// MongoPinger returns a ping func against the primary.
func MongoPinger(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
}
