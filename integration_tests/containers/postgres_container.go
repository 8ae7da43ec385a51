package containers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresDatabase = "guesser"
	postgresUser     = "guesser"
	postgresPassword = "guesser"
)

// SetupPostgresContainer starts an empty Postgres instance. The returned
// DSN has TLS disabled and works with both the pgdriver and pgx drivers.
func SetupPostgresContainer(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	accepting := wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			postgresUser, postgresPassword, host, port.Port(), postgresDatabase)
	}).WithStartupTimeout(time.Minute)

	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase(postgresDatabase),
		postgres.WithUsername(postgresUser),
		postgres.WithPassword(postgresPassword),
		testcontainers.WithWaitStrategy(accepting),
	)
	if err != nil {
		if container != nil {
			_ = testcontainers.TerminateContainer(container)
		}
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	slog.Info("Postgres container ready", slog.String("image", postgresImage))
	return container, dsn, nil
}
