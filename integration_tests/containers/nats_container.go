package containers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"
)

const natsImage = "nats:2.10-alpine"

// SetupNatsContainer starts a NATS server for the feed and presence
// subjects and returns its client URL. The caller terminates it.
func SetupNatsContainer(ctx context.Context) (*nats.NATSContainer, string, error) {
	container, err := nats.Run(ctx, natsImage,
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp").WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		if container != nil {
			_ = testcontainers.TerminateContainer(container)
		}
		return nil, "", fmt.Errorf("failed to start nats container: %w", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, "", fmt.Errorf("failed to get nats connection string: %w", err)
	}

	slog.Info("NATS container ready", slog.String("url", url))
	return container, url, nil
}
