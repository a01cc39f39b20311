// Package database opens and supervises the backend services' data stores.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"go.uber.org/fx"

	"api-gateway-go/internal/config"
)

// ReadyTimeout bounds how long startup waits for a data store to answer.
const ReadyTimeout = 30 * time.Second

// StartTimeout is the fx start budget for the backend binaries. It covers the
// ReadyTimeout wait plus migrations and binding the listener.
const StartTimeout = ReadyTimeout + 30*time.Second

// LifecycleTimeouts returns the fx options every backend binary runs with.
// fx's default start timeout is shorter than ReadyTimeout.
func LifecycleTimeouts() fx.Option {
	return fx.Options(
		fx.StartTimeout(StartTimeout),
		fx.StopTimeout(15*time.Second),
	)
}

// OpenPostgres opens a pooled *sql.DB through the pgx driver. The pool is
// verified on fx start and closed on stop.
func OpenPostgres(lc fx.Lifecycle, cli *config.PostgresCLI, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cli.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger = logger.With("component", "postgres", "host", cli.DBHost, "database", cli.DBName)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := WaitForDB(ctx, db.PingContext, ReadyTimeout); err != nil {
				return fmt.Errorf("postgres not ready: %w", err)
			}
			logger.Info("postgres connected")
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("closing postgres pool")
			return db.Close()
		},
	})

	return db, nil
}

// WaitForDB calls ping once per second until it succeeds, ctx ends or timeout elapses.
func WaitForDB(ctx context.Context, ping func(context.Context) error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		err := ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}
